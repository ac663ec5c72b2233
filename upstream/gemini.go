package upstream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the native audio dialog model the relay converses with.
	DefaultModel = "gemini-2.5-flash-preview-native-audio-dialog"

	// DefaultSystemInstruction sets the interviewer persona.
	DefaultSystemInstruction = "You are a professional interviewer conducting a job interview. " +
		"Ask thoughtful questions about the candidate's background, experience, and skills. " +
		"Keep your responses concise and conversational. Ask one question at a time and " +
		"listen carefully to the answers before following up."
)

// GeminiDialer opens live audio sessions against the Gemini API.
type GeminiDialer struct {
	APIKey            string
	Model             string
	SystemInstruction string
	Logger            *log.Logger
}

func (d *GeminiDialer) Dial(ctx context.Context) (Session, error) {
	if d.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	model := d.Model
	if model == "" {
		model = DefaultModel
	}
	instruction := d.SystemInstruction
	if instruction == "" {
		instruction = DefaultSystemInstruction
	}

	session, err := client.Live.Connect(ctx, model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: instruction}},
		},
		InputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	d.Logger.Info("live session connected", "model", model)
	return &geminiSession{session: session, logger: d.Logger}, nil
}

// liveConn is the slice of *genai.Session the session adapter touches,
// narrowed so tests can stand in for the SDK.
type liveConn interface {
	SendRealtimeInput(genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type geminiSession struct {
	session liveConn
	logger  *log.Logger

	sendMu sync.Mutex
	closed atomic.Bool

	// Events already decoded from the current server message but not yet
	// delivered. Receive drains this before reading from the wire.
	pending []Event
}

func (s *geminiSession) SendAudio(_ context.Context, data []byte, mimeType string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

func (s *geminiSession) SendText(_ context.Context, text string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{Text: text})
}

func (s *geminiSession) SendStreamEnd(_ context.Context) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
}

func (s *geminiSession) Receive(ctx context.Context) (Event, error) {
	for {
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending = s.pending[1:]
			return event, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		message, err := s.session.Receive()
		if err != nil {
			return nil, err
		}
		s.pending = classify(message)
	}
}

// Close is serialized with the send path so an in-flight send cannot race
// the SDK teardown.
func (s *geminiSession) Close() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.session.Close()
}

// classify flattens one server message into relay events, preserving the
// order parts arrive in. A single message can carry transcription, model
// text, several audio parts, and a turn boundary at once.
func classify(message *genai.LiveServerMessage) []Event {
	content := message.ServerContent
	if content == nil {
		return nil
	}

	var events []Event
	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		events = append(events, UserSpeech{Text: content.InputTranscription.Text})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				events = append(events, AIText{Text: part.Text})
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				events = append(events, AIAudio{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				})
			}
		}
	}
	if content.Interrupted {
		events = append(events, Interrupted{})
	}
	if content.TurnComplete {
		events = append(events, TurnComplete{})
	}
	return events
}
