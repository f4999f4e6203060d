// Package diarization defines the diarization provider contract and the
// reconciler that merges speaker-turn segments with a transcript.
package diarization

// Request holds parameters for a diarization job.
type Request struct {
	// AudioURL is the publicly fetchable location of the audio to diarize.
	AudioURL string `json:"audio_url"`
	// NumSpeakers is the exact number of speakers (0 = auto-detect).
	NumSpeakers int `json:"num_speakers,omitempty"`
	// MinSpeakers is the minimum expected number of speakers.
	MinSpeakers int `json:"min_speakers,omitempty"`
	// MaxSpeakers is the maximum expected number of speakers.
	MaxSpeakers int `json:"max_speakers,omitempty"`
}

// Segment is a speaker-attributed time range. Segments may overlap and may
// leave gaps; multiple segments share a speaker label.
type Segment struct {
	// Speaker is the provider's raw speaker label.
	Speaker string `json:"speaker"`
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`
	// End is the segment end time in seconds.
	End float64 `json:"end"`
}

// Result holds the outcome of a diarization job.
type Result struct {
	// Segments contains speaker-attributed time segments.
	Segments []Segment `json:"segments"`
	// NumSpeakers is the number of speakers detected.
	NumSpeakers int `json:"num_speakers"`
}

// SpeakerMeta carries optional caller-supplied display information for a raw
// speaker label.
type SpeakerMeta struct {
	// Label is the raw provider label (e.g. "SPEAKER_00").
	Label string `json:"label"`
	// Name is the human display name for the speaker.
	Name string `json:"name"`
}
