package diarization

import (
	"context"
	"math"

	"github.com/opencouncil/scribe/logger"
	"github.com/opencouncil/scribe/observability"
	"github.com/opencouncil/scribe/transcription"
)

// ReconcilerConfig configures speaker assignment.
type ReconcilerConfig struct {
	// MaxDriftCost rejects an ambiguous assignment whose best candidate
	// drifts further than this. A value <= 0 disables the threshold.
	MaxDriftCost float64 `mapstructure:"max_drift_cost"`
}

// AttributedUtterance is an utterance with a resolved speaker identity.
type AttributedUtterance struct {
	transcription.Utterance

	// Speaker is the sequential numeric speaker id.
	Speaker int `json:"speaker"`
	// SpeakerName is the display name from speaker metadata, if supplied.
	SpeakerName string `json:"speaker_name,omitempty"`
	// DriftCost measures how far the assignment drifted from exact interval
	// containment. Zero for unambiguous assignments.
	DriftCost float64 `json:"drift_cost"`
}

// Reconciler assigns a stable numeric speaker identity to transcript
// utterances from independently timestamped diarization segments.
//
// Numeric ids are assigned to raw labels in first-seen order over the
// segments, so the mapping is stable across runs with the same segment set.
type Reconciler struct {
	cfg     ReconcilerConfig
	log     *logger.Logger
	metrics *observability.Metrics

	segments  []Segment
	ids       map[string]int
	bySpeaker map[string][]Segment

	totalDrift float64
	dropped    int
}

// NewReconciler creates a reconciler for one segment set.
func NewReconciler(cfg ReconcilerConfig, segments []Segment, log *logger.Logger, metrics *observability.Metrics) *Reconciler {
	r := &Reconciler{
		cfg:       cfg,
		log:       log.WithComponent("reconcile"),
		metrics:   metrics,
		segments:  segments,
		ids:       make(map[string]int),
		bySpeaker: make(map[string][]Segment),
	}
	for _, s := range segments {
		if _, seen := r.ids[s.Speaker]; !seen {
			r.ids[s.Speaker] = len(r.ids) + 1
		}
		r.bySpeaker[s.Speaker] = append(r.bySpeaker[s.Speaker], s)
	}
	return r
}

// SpeakerID returns the numeric id assigned to a raw label.
func (r *Reconciler) SpeakerID(label string) (int, bool) {
	id, ok := r.ids[label]
	return id, ok
}

// DriftCost returns the cumulative drift cost of all accepted assignments.
func (r *Reconciler) DriftCost() float64 { return r.totalDrift }

// Dropped returns the number of utterances discarded so far.
func (r *Reconciler) Dropped() int { return r.dropped }

// AssignSpeakers resolves a speaker for every utterance. Utterances with no
// acceptable attribution are dropped with a logged reason; the remainder is
// still a usable partial result.
func (r *Reconciler) AssignSpeakers(utterances []transcription.Utterance, meta []SpeakerMeta) []AttributedUtterance {
	names := make(map[string]string, len(meta))
	for _, m := range meta {
		names[m.Label] = m.Name
	}

	out := make([]AttributedUtterance, 0, len(utterances))
	for _, u := range utterances {
		label, cost, ok := r.resolve(u)
		if !ok {
			continue
		}
		r.totalDrift += cost
		r.metrics.DriftCostObserved(context.Background(), cost)
		out = append(out, AttributedUtterance{
			Utterance:   u,
			Speaker:     r.ids[label],
			SpeakerName: names[label],
			DriftCost:   cost,
		})
	}

	r.log.Info("speaker assignment finished", logger.Fields(
		"utterances", len(utterances),
		"assigned", len(out),
		"dropped", r.dropped,
		"total_drift_cost", r.totalDrift,
	))
	return out
}

// resolve picks the speaker label for one utterance, or reports a drop.
func (r *Reconciler) resolve(u transcription.Utterance) (string, float64, bool) {
	overlapping := r.overlappingSegments(u)

	if len(overlapping) == 0 {
		r.drop(u, "no overlapping segments")
		return "", 0, false
	}
	if len(overlapping) == 1 {
		return overlapping[0].Speaker, 0, true
	}

	candidates := r.coverageCandidates(u, overlapping)
	if len(candidates) == 0 {
		r.drop(u, "no segment fully contains any word")
		return "", 0, false
	}

	best, bestCost := "", math.Inf(1)
	for _, label := range candidates {
		if cost := r.driftCost(u, label); cost < bestCost {
			best, bestCost = label, cost
		}
	}

	if len(candidates) > 1 && r.cfg.MaxDriftCost > 0 && bestCost > r.cfg.MaxDriftCost {
		r.drop(u, "best candidate exceeds drift threshold")
		return "", 0, false
	}
	return best, bestCost, true
}

// overlappingSegments returns segments intersecting the utterance interval:
// the segment starts inside it, ends inside it, or fully contains it.
func (r *Reconciler) overlappingSegments(u transcription.Utterance) []Segment {
	var out []Segment
	for _, s := range r.segments {
		startsInside := s.Start >= u.Start && s.Start <= u.End
		endsInside := s.End >= u.Start && s.End <= u.End
		contains := s.Start <= u.Start && s.End >= u.End
		if startsInside || endsInside || contains {
			out = append(out, s)
		}
	}
	return out
}

// coverageCandidates returns, in first-seen segment order, the speakers that
// fully contain at least one word of the utterance.
func (r *Reconciler) coverageCandidates(u transcription.Utterance, overlapping []Segment) []string {
	words := r.words(u)
	seen := make(map[string]bool)
	var out []string
	for _, s := range overlapping {
		if seen[s.Speaker] {
			continue
		}
		for _, w := range words {
			if s.Start <= w.Start && s.End >= w.End {
				seen[s.Speaker] = true
				out = append(out, s.Speaker)
				break
			}
		}
	}
	return out
}

// driftCost accumulates, per word, the squared start/end deviation to the
// candidate speaker's closest segment (zero when a segment contains the
// word), and returns the Euclidean norm of the sum.
func (r *Reconciler) driftCost(u transcription.Utterance, label string) float64 {
	segs := r.bySpeaker[label]
	var sum float64
	for _, w := range r.words(u) {
		contained := false
		closest := math.Inf(1)
		for _, s := range segs {
			if s.Start <= w.Start && s.End >= w.End {
				contained = true
				break
			}
			d := (s.Start-w.Start)*(s.Start-w.Start) + (s.End-w.End)*(s.End-w.End)
			if d < closest {
				closest = d
			}
		}
		if !contained {
			sum += closest
		}
	}
	return math.Sqrt(sum)
}

// words returns the utterance's word alignments, falling back to the
// utterance interval itself when word timestamps are missing.
func (r *Reconciler) words(u transcription.Utterance) []transcription.Word {
	if len(u.Words) > 0 {
		return u.Words
	}
	return []transcription.Word{{Start: u.Start, End: u.End, Text: u.Text}}
}

func (r *Reconciler) drop(u transcription.Utterance, reason string) {
	r.dropped++
	r.metrics.UtteranceDropped(context.Background())
	r.log.Warn("utterance dropped", logger.Fields(
		"reason", reason,
		"start", u.Start,
		"end", u.End,
		"text", u.Text,
	))
}
