package relay

import "encoding/json"

// Client to server message types.
const (
	TypeAudioChunk    = "audio_chunk"
	TypeTextInput     = "text_input"
	TypeStopInterview = "stop_interview"
)

// Server to client message types.
const (
	TypeInterviewStarted   = "interview_started"
	TypeLiveTranscript     = "live_transcript"
	TypeAudioStreamStart   = "audio_stream_start"
	TypeAudioChunkResponse = "audio_chunk_response"
	TypeAudioStreamEnd     = "audio_stream_end"
	TypeInterviewEnded     = "interview_ended"
)

// ClientMessage is the envelope for everything the browser sends. Audio is
// base64 PCM; the json codec handles the base64 for []byte automatically.
type ClientMessage struct {
	Type  string `json:"type"`
	Audio []byte `json:"audio,omitempty"`
	Text  string `json:"text,omitempty"`
}

// ParseClientMessage decodes one inbound frame. Unknown types decode fine
// and are dropped by the caller; malformed JSON returns an error.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

type InterviewStarted struct {
	Type        string `json:"type"`
	InterviewID string `json:"interview_id"`
}

type LiveTranscript struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type AudioStreamStart struct {
	Type       string `json:"type"`
	StreamID   string `json:"stream_id"`
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
}

type AudioChunkResponse struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	Audio    []byte `json:"audio"`
	MIMEType string `json:"mime_type"`
}

type AudioStreamEnd struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
}

type InterviewEnded struct {
	Type             string `json:"type"`
	InterviewID      string `json:"interview_id"`
	Duration         string `json:"duration"`
	Summary          string `json:"summary"`
	TotalTranscripts int    `json:"total_transcripts"`
	Error            string `json:"error,omitempty"`
}
