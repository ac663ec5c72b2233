// Package upstream abstracts the bidirectional speech model connection. The
// relay talks to a Session and never to a provider SDK directly, so tests can
// substitute a scripted session and a provider swap stays contained here.
package upstream

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the provider cannot be dialed at all, e.g. a
// missing API key. The relay fails the interview immediately in that case.
var ErrUnavailable = errors.New("upstream unavailable")

// Event is one item of upstream output. The concrete types below form a
// closed union; a receive loop switches on them.
type Event interface {
	isEvent()
}

// UserSpeech is the provider's transcription of the user's audio.
type UserSpeech struct {
	Text string
}

// AIText is spoken-content text from the model, shown as a live transcript.
type AIText struct {
	Text string
}

// AIAudio is one chunk of synthesized speech.
type AIAudio struct {
	Data     []byte
	MIMEType string
}

// TurnComplete marks the end of a model response turn.
type TurnComplete struct{}

// Interrupted means the user barged in and the model abandoned its turn.
type Interrupted struct{}

func (UserSpeech) isEvent()   {}
func (AIText) isEvent()       {}
func (AIAudio) isEvent()      {}
func (TurnComplete) isEvent() {}
func (Interrupted) isEvent()  {}

// Session is one live conversation with the speech model. Send methods are
// safe for concurrent use; Receive is called from a single goroutine and
// blocks until an event arrives, the session closes, or ctx is done.
type Session interface {
	SendAudio(ctx context.Context, data []byte, mimeType string) error
	SendText(ctx context.Context, text string) error
	SendStreamEnd(ctx context.Context) error
	Receive(ctx context.Context) (Event, error)
	Close() error
}

// Dialer opens sessions. Dial failures wrapped with ErrUnavailable mean the
// provider is unreachable rather than a transient session error.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}
