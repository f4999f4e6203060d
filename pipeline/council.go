// Package pipeline implements the council-recording processing task: it runs
// diarization and transcription as concurrent webhook-driven jobs, reconciles
// the two timelines into a speaker-attributed transcript, and optionally
// summarizes the result.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencouncil/scribe/diarization"
	"github.com/opencouncil/scribe/dispatch"
	"github.com/opencouncil/scribe/logger"
	"github.com/opencouncil/scribe/observability"
	"github.com/opencouncil/scribe/scheduler"
	"github.com/opencouncil/scribe/transcription"
)

// TaskType is the task type label the pipeline registers under.
const TaskType = "council-recording"

// Request is the intake payload for one council recording.
type Request struct {
	// MediaURL is the recording to process.
	MediaURL string `json:"media_url" validate:"required,url"`
	// DeliveryURL receives progress and result deliveries.
	DeliveryURL string `json:"delivery_url" validate:"required,url"`
	// Language is the expected language of the recording.
	Language string `json:"language,omitempty"`
	// NumSpeakers is the exact speaker count, if known (0 = auto-detect).
	NumSpeakers int `json:"num_speakers,omitempty" validate:"gte=0"`
	// MinSpeakers and MaxSpeakers bound auto-detection.
	MinSpeakers int `json:"min_speakers,omitempty" validate:"gte=0"`
	MaxSpeakers int `json:"max_speakers,omitempty" validate:"gte=0"`
	// Speakers carries optional display names for raw diarization labels.
	Speakers []diarization.SpeakerMeta `json:"speakers,omitempty"`
	// GenerateSummary requests an AI summary of the attributed transcript.
	GenerateSummary bool `json:"generate_summary,omitempty"`
}

// Result is the final payload delivered for a completed recording.
type Result struct {
	// MediaURL echoes the processed recording.
	MediaURL string `json:"media_url"`
	// Language is the detected or requested language.
	Language string `json:"language,omitempty"`
	// Duration is the audio duration in seconds.
	Duration float64 `json:"duration,omitempty"`
	// Text is the full unattributed transcript.
	Text string `json:"text"`
	// Utterances is the speaker-attributed timeline.
	Utterances []diarization.AttributedUtterance `json:"utterances"`
	// NumSpeakers is the number of speakers detected.
	NumSpeakers int `json:"num_speakers"`
	// DroppedUtterances counts utterances with no acceptable attribution.
	DroppedUtterances int `json:"dropped_utterances"`
	// TotalDriftCost is the cumulative drift of accepted attributions.
	TotalDriftCost float64 `json:"total_drift_cost"`
	// Summary is the AI-generated summary, when requested.
	Summary string `json:"summary,omitempty"`
}

// MediaStore resolves a caller-supplied media URL into an audio URL the
// provider sidecars can fetch. Download and transcoding live behind this
// boundary.
type MediaStore interface {
	Prepare(ctx context.Context, mediaURL string) (audioURL string, err error)
}

// Summarizer produces a summary of an attributed transcript. Prompting and
// response parsing live behind this boundary.
type Summarizer interface {
	Summarize(ctx context.Context, utterances []diarization.AttributedUtterance) (string, error)
}

// Pipeline wires the dispatchers, reconciler, and collaborators for the
// council-recording task.
type Pipeline struct {
	diarize    *dispatch.Dispatcher[diarization.Request, diarization.JobPayload]
	transcribe *dispatch.Dispatcher[transcription.Request, transcription.JobPayload]
	reconcile  diarization.ReconcilerConfig
	media      MediaStore
	summarizer Summarizer
	log        *logger.Logger
	metrics    *observability.Metrics
}

// New creates a pipeline. media and summarizer may be nil; a nil media store
// passes the caller's URL through untouched, and a nil summarizer disables
// summaries.
func New(
	diarize *dispatch.Dispatcher[diarization.Request, diarization.JobPayload],
	transcribe *dispatch.Dispatcher[transcription.Request, transcription.JobPayload],
	reconcile diarization.ReconcilerConfig,
	media MediaStore,
	summarizer Summarizer,
	log *logger.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		diarize:    diarize,
		transcribe: transcribe,
		reconcile:  reconcile,
		media:      media,
		summarizer: summarizer,
		log:        log.WithComponent("pipeline"),
		metrics:    metrics,
	}
}

// Task adapts one request into a scheduler task function.
func (p *Pipeline) Task(req Request) scheduler.TaskFunc {
	return func(ctx context.Context, progress scheduler.Progress) (any, error) {
		return p.run(ctx, req, progress)
	}
}

func (p *Pipeline) run(ctx context.Context, req Request, progress scheduler.Progress) (*Result, error) {
	started := time.Now()
	log := p.log.WithFields(logger.Fields("media_url", req.MediaURL))

	progress("fetching media", 10)
	audioURL := req.MediaURL
	if p.media != nil {
		var err error
		audioURL, err = p.media.Prepare(ctx, req.MediaURL)
		if err != nil {
			return nil, fmt.Errorf("prepare media: %w", err)
		}
	}

	progress("diarization and transcription", 20)
	diarized, transcript, err := p.runJobs(ctx, req, audioURL)
	if err != nil {
		return nil, err
	}
	progress("jobs complete", 60)

	progress("reconciling speakers", 80)
	rec := diarization.NewReconciler(p.reconcile, diarized.Segments, p.log, p.metrics)
	attributed := rec.AssignSpeakers(transcript.Utterances, req.Speakers)

	result := &Result{
		MediaURL:          req.MediaURL,
		Language:          transcript.Language,
		Duration:          transcript.Duration,
		Text:              transcript.Text,
		Utterances:        attributed,
		NumSpeakers:       diarized.NumSpeakers,
		DroppedUtterances: rec.Dropped(),
		TotalDriftCost:    rec.DriftCost(),
	}

	if req.GenerateSummary && p.summarizer != nil {
		progress("summarizing", 95)
		summary, err := p.summarizer.Summarize(ctx, attributed)
		if err != nil {
			// A missing summary does not void the transcript.
			log.WithError(err).Warn("summarization failed")
		} else {
			result.Summary = summary
		}
	}

	log.Info("recording processed", logger.Fields(
		logger.FieldDuration, time.Since(started).String(),
		"utterances", len(attributed),
		"dropped", rec.Dropped(),
		"speakers", diarized.NumSpeakers,
	))
	return result, nil
}

// runJobs submits the diarization and transcription jobs concurrently and
// waits for both webhook deliveries.
func (p *Pipeline) runJobs(ctx context.Context, req Request, audioURL string) (*diarization.Result, *transcription.Result, error) {
	var (
		wg            sync.WaitGroup
		diarized      diarization.JobPayload
		transcript    transcription.JobPayload
		diarizeErr    error
		transcribeErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		diarized, diarizeErr = p.diarize.Submit(ctx, diarization.Request{
			AudioURL:    audioURL,
			NumSpeakers: req.NumSpeakers,
			MinSpeakers: req.MinSpeakers,
			MaxSpeakers: req.MaxSpeakers,
		})
	}()
	go func() {
		defer wg.Done()
		transcript, transcribeErr = p.transcribe.Submit(ctx, transcription.Request{
			AudioURL: audioURL,
			Language: req.Language,
		})
	}()
	wg.Wait()

	if diarizeErr != nil {
		return nil, nil, fmt.Errorf("diarization: %w", diarizeErr)
	}
	if transcribeErr != nil {
		return nil, nil, fmt.Errorf("transcription: %w", transcribeErr)
	}
	return &diarized.Result, &transcript.Result, nil
}
