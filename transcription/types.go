// Package transcription defines the transcription provider contract and the
// transcript data types shared across the pipeline.
package transcription

// Request holds parameters for a transcription job.
type Request struct {
	// AudioURL is the publicly fetchable location of the audio to transcribe.
	AudioURL string `json:"audio_url"`
	// Language is the expected language of the audio (e.g. "en").
	Language string `json:"language,omitempty"`
	// Model is the transcription model to use.
	Model string `json:"model,omitempty"`
}

// Word is a single word with its time alignment.
type Word struct {
	// Start is the word start time in seconds.
	Start float64 `json:"start"`
	// End is the word end time in seconds.
	End float64 `json:"end"`
	// Text is the word itself.
	Text string `json:"text,omitempty"`
}

// Utterance is a time-aligned portion of a transcript with word-level
// timestamps.
type Utterance struct {
	// Start is the utterance start time in seconds.
	Start float64 `json:"start"`
	// End is the utterance end time in seconds.
	End float64 `json:"end"`
	// Text is the transcribed text.
	Text string `json:"text"`
	// Words are the word-level alignments within the utterance.
	Words []Word `json:"words,omitempty"`
}

// Result holds the outcome of a transcription job.
type Result struct {
	// Text is the full transcript text.
	Text string `json:"text"`
	// Utterances contains the time-aligned utterances.
	Utterances []Utterance `json:"utterances,omitempty"`
	// Duration is the audio duration in seconds.
	Duration float64 `json:"duration,omitempty"`
	// Language is the detected or specified language.
	Language string `json:"language,omitempty"`
}
