package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"parley/db"
)

// recorder assigns sequence numbers to utterances, persists them, and
// mirrors each one to the client as a live transcript. Sequence numbers are
// strictly increasing from zero with no gaps; a failed persist is logged but
// still consumes the number so the live view and the store agree on order.
type recorder struct {
	interviewID string
	store       db.Store
	client      ClientConn
	logger      *log.Logger

	mu   sync.Mutex
	next int
}

func newRecorder(interviewID string, store db.Store, client ClientConn, logger *log.Logger) *recorder {
	return &recorder{
		interviewID: interviewID,
		store:       store,
		client:      client,
		logger:      logger,
	}
}

// Record persists one utterance and pushes it to the client. Empty or
// whitespace-only text is skipped entirely and consumes no sequence number.
func (r *recorder) Record(ctx context.Context, speaker db.Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	r.mu.Lock()
	sequence := r.next
	r.next++
	r.mu.Unlock()

	err := r.store.AppendUtterance(ctx, db.AppendUtteranceParams{
		InterviewID: r.interviewID,
		Speaker:     speaker,
		Text:        text,
		Sequence:    sequence,
	})
	if err != nil {
		r.logger.Error("failed to persist utterance",
			"interview", r.interviewID, "sequence", sequence, "err", err)
	}

	err = r.client.Send(LiveTranscript{
		Type:    TypeLiveTranscript,
		Speaker: string(speaker),
		Text:    text,
	})
	if err != nil {
		r.logger.Debug("failed to push live transcript", "err", err)
	}
}

// Count reports how many utterances were recorded.
func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}
