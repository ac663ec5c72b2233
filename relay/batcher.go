package relay

import (
	"bytes"
	"context"
	"time"

	"github.com/charmbracelet/log"

	"parley/upstream"
)

// batcher accumulates inbound microphone frames and forwards them upstream
// in larger batches. Forwarding waits for a short lull after the last frame,
// which coalesces the browser's rapid small frames into one send. A longer
// lull with nothing pending is treated as end-of-speech and signaled
// upstream exactly once per silent stretch.
type batcher struct {
	session upstream.Session
	cfg     Config
	logger  *log.Logger
	now     func() time.Time

	frames chan []byte

	// Loop-local state, touched only by Run/tick.
	pending   bytes.Buffer
	lastFrame time.Time
	speaking  bool
}

func newBatcher(session upstream.Session, cfg Config, logger *log.Logger, now func() time.Time) *batcher {
	if now == nil {
		now = time.Now
	}
	return &batcher{
		session: session,
		cfg:     cfg,
		logger:  logger,
		now:     now,
		frames:  make(chan []byte, cfg.QueueSize),
	}
}

// Push hands one inbound audio frame to the batching loop. Drops the frame
// if the loop has fallen behind rather than stalling the reader.
func (b *batcher) Push(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(data) > LargeChunkWarnBytes {
		b.logger.Warn("unusually large audio frame", "bytes", len(data))
	}
	select {
	case b.frames <- data:
	default:
		b.logger.Warn("audio frame dropped, batcher backlogged", "bytes", len(data))
	}
}

func (b *batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.BatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-b.frames:
			b.pending.Write(frame)
			b.lastFrame = b.now()
			b.speaking = true
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *batcher) tick(ctx context.Context) {
	// Drain any frames that raced with the tick.
	for {
		select {
		case frame := <-b.frames:
			b.pending.Write(frame)
			b.lastFrame = b.now()
			b.speaking = true
			continue
		default:
		}
		break
	}

	if b.lastFrame.IsZero() {
		return
	}
	gap := b.now().Sub(b.lastFrame)

	if b.pending.Len() > 0 {
		if gap < b.cfg.BatchFlushDelay {
			return
		}
		batch := append([]byte(nil), b.pending.Bytes()...)
		b.pending.Reset()
		if err := b.session.SendAudio(ctx, batch, InputMIMEType); err != nil {
			b.logger.Error("failed to forward audio", "err", err)
			return
		}
		b.logger.Debug("forwarded audio batch", "bytes", len(batch))
		return
	}

	if b.speaking && gap > b.cfg.SilenceThreshold {
		b.speaking = false
		if err := b.session.SendStreamEnd(ctx); err != nil {
			b.logger.Error("failed to signal end of speech", "err", err)
			return
		}
		b.logger.Debug("signaled end of speech", "silence", gap)
	}
}
