package relay

import (
	"context"

	"github.com/charmbracelet/log"

	"parley/etc"
)

type fragment struct {
	data     []byte
	mimeType string
	// boundary marks a turn edge instead of audio. The open stream, if any,
	// is closed; the next audio fragment opens a fresh one.
	boundary bool
}

// streamer relays synthesized audio to the client inside stream framing:
// every chunk is preceded by exactly one audio_stream_start for its stream,
// and audio_stream_end fires only for a stream that was opened. Turn
// boundaries and interruptions close the open stream.
type streamer struct {
	client ClientConn
	cfg    Config
	logger *log.Logger

	queue chan fragment

	// Owned by the Run goroutine.
	streamID string
}

func newStreamer(client ClientConn, cfg Config, logger *log.Logger) *streamer {
	return &streamer{
		client: client,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan fragment, cfg.QueueSize),
	}
}

// Enqueue queues one audio chunk for delivery, dropping it when the client
// cannot keep up. Dropped audio degrades playback but never blocks the
// upstream receive loop.
func (s *streamer) Enqueue(data []byte, mimeType string) {
	if len(data) == 0 {
		return
	}
	select {
	case s.queue <- fragment{data: data, mimeType: mimeType}:
	default:
		s.logger.Warn("audio chunk dropped, client backlogged", "bytes", len(data))
	}
}

// EnqueueBoundary queues a turn edge. Boundaries must not be dropped or the
// client would splice unrelated turns into one stream, so this blocks if the
// queue is momentarily full.
func (s *streamer) EnqueueBoundary(ctx context.Context) {
	select {
	case s.queue <- fragment{boundary: true}:
	case <-ctx.Done():
	}
}

func (s *streamer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case frag := <-s.queue:
			s.emit(frag)
		}
	}
}

func (s *streamer) emit(frag fragment) {
	if frag.boundary {
		s.CloseOpenStream()
		return
	}

	if s.streamID == "" {
		s.streamID = etc.NewFreshID()
		err := s.client.Send(AudioStreamStart{
			Type:       TypeAudioStreamStart,
			StreamID:   s.streamID,
			SampleRate: OutputSampleRate,
			Format:     OutputFormat,
		})
		if err != nil {
			s.logger.Debug("failed to open audio stream", "err", err)
			s.streamID = ""
			return
		}
	}

	err := s.client.Send(AudioChunkResponse{
		Type:     TypeAudioChunkResponse,
		StreamID: s.streamID,
		Audio:    frag.data,
		MIMEType: frag.mimeType,
	})
	if err != nil {
		s.logger.Debug("failed to send audio chunk", "err", err)
	}
}

// CloseOpenStream ends the in-flight stream if one is open. Safe to call
// when no stream is open; used by boundaries and final teardown.
func (s *streamer) CloseOpenStream() {
	if s.streamID == "" {
		return
	}
	err := s.client.Send(AudioStreamEnd{Type: TypeAudioStreamEnd, StreamID: s.streamID})
	if err != nil {
		s.logger.Debug("failed to close audio stream", "err", err)
	}
	s.streamID = ""
}

// DiscardPending throws away queued audio that has not reached the client.
// Called on interruption: the model is about to produce a new turn that
// supersedes anything still waiting.
func (s *streamer) DiscardPending() {
	discarded := 0
	for {
		select {
		case frag := <-s.queue:
			if !frag.boundary {
				discarded++
			}
		default:
			if discarded > 0 {
				s.logger.Debug("discarded superseded audio", "chunks", discarded)
			}
			return
		}
	}
}

// drain discards queued fragments so producers blocked on EnqueueBoundary
// can finish during shutdown.
func (s *streamer) drain() {
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}
