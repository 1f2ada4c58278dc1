package session

import "github.com/starcoach/starcoach/internal/star"

// Event names pushed to the client. One session, one client; publishes are
// fire-and-forget.
const (
	EventStatus                = "status"
	EventError                 = "error"
	EventRecordingProgress     = "recording_progress"
	EventRecordingComplete     = "recording_complete"
	EventTranscriptionComplete = "transcription_complete"
	EventLiveTranscript        = "live_transcript"
	EventQuestionDetected      = "question_detected"
	EventLiveAnswer            = "live_answer"
	EventLiveSessionComplete   = "live_session_complete"
	EventAutoAnswer            = "auto_answer"
	EventAnswerReady           = "answer_ready"
)

// Publisher is the outbound half of the event transport. Publish must never
// block session progress and must be a no-op once the client is gone.
type Publisher interface {
	Publish(event string, payload any)
}

type StatusPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"` // success|info|warning
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type RecordingProgressPayload struct {
	Elapsed  int `json:"elapsed"`
	Duration int `json:"duration"`
}

type RecordingCompletePayload struct {
	Filename string  `json:"filename"`
	Filepath string  `json:"filepath"`
	Duration float64 `json:"duration"`
}

type TranscriptionCompletePayload struct {
	Text              string   `json:"text"`
	TimeMS            int64    `json:"time_ms"`
	QuestionsDetected []string `json:"questions_detected"`
}

type LiveTranscriptPayload struct {
	Chunk string `json:"chunk"`
	Full  string `json:"full"`
}

type QuestionDetectedPayload struct {
	Question string `json:"question"`
}

type LiveAnswerPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	TimeMS   int64  `json:"time_ms"`
}

type AutoAnswerPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	TimeMS   int64  `json:"time_ms"`
}

type AnswerReadyPayload struct {
	Question   string      `json:"question"`
	Answer     string      `json:"answer"`
	Components star.Answer `json:"components"`
	TimeMS     int64       `json:"time_ms"`
	Provider   string      `json:"provider"`
	FormatType string      `json:"format_type"`
}

type LiveSessionCompletePayload struct {
	FullTranscript string     `json:"full_transcript"`
	Statistics     Statistics `json:"statistics"`
}

type Statistics struct {
	ChunksProcessed       int     `json:"chunks_processed"`
	QuestionsDetected     int     `json:"questions_detected"`
	DurationSeconds       float64 `json:"duration_seconds"`
	TotalTranscriptLength int     `json:"total_transcript_length"`
}
