package relay

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"parley/upstream"
)

type recordingSession struct {
	mu         sync.Mutex
	audio      [][]byte
	texts      []string
	streamEnds int
}

func (s *recordingSession) SendAudio(_ context.Context, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, data)
	return nil
}

func (s *recordingSession) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSession) SendStreamEnd(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamEnds++
	return nil
}

func (s *recordingSession) Receive(ctx context.Context) (upstream.Event, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *recordingSession) Close() error { return nil }

func (s *recordingSession) sentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

func (s *recordingSession) streamEndCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamEnds
}

func newTestBatcher(session upstream.Session, now *fakeNow) *batcher {
	cfg := Config{}.WithDefaults()
	return newBatcher(session, cfg, log.New(io.Discard), now.Now)
}

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestBatcherFlushesAfterLull(t *testing.T) {
	ctx := context.Background()
	session := &recordingSession{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	b := newTestBatcher(session, now)

	b.Push([]byte("aaa"))
	b.Push([]byte("bbb"))
	b.tick(ctx) // drains frames, lull too short to flush
	if got := session.sentAudio(); len(got) != 0 {
		t.Fatalf("flushed too early: %d batches", len(got))
	}

	now.Advance(100 * time.Millisecond)
	b.tick(ctx)
	if got := session.sentAudio(); len(got) != 0 {
		t.Fatalf("flushed before flush delay: %d batches", len(got))
	}

	now.Advance(150 * time.Millisecond)
	b.tick(ctx)
	got := session.sentAudio()
	if len(got) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(got))
	}
	if !bytes.Equal(got[0], []byte("aaabbb")) {
		t.Errorf("batch = %q, want frames concatenated in order", got[0])
	}
}

func TestBatcherSignalsSilenceOnce(t *testing.T) {
	ctx := context.Background()
	session := &recordingSession{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	b := newTestBatcher(session, now)

	b.Push([]byte("aaa"))
	b.tick(ctx)
	now.Advance(300 * time.Millisecond)
	b.tick(ctx) // flush
	if len(session.sentAudio()) != 1 {
		t.Fatal("expected flush before silence detection")
	}

	// Pending is empty now; ticks before the threshold stay quiet.
	now.Advance(time.Second)
	b.tick(ctx)
	if n := session.streamEndCount(); n != 0 {
		t.Fatalf("signaled silence too early: %d", n)
	}

	// Past the threshold: exactly one end-of-speech, however many ticks.
	now.Advance(time.Second)
	b.tick(ctx)
	b.tick(ctx)
	now.Advance(time.Second)
	b.tick(ctx)
	if n := session.streamEndCount(); n != 1 {
		t.Fatalf("expected exactly one end-of-speech, got %d", n)
	}

	// New speech re-arms the detector.
	b.Push([]byte("ccc"))
	b.tick(ctx)
	now.Advance(300 * time.Millisecond)
	b.tick(ctx) // flush
	now.Advance(2 * time.Second)
	b.tick(ctx)
	if n := session.streamEndCount(); n != 2 {
		t.Fatalf("expected second end-of-speech after new speech, got %d", n)
	}
}

func TestBatcherDropsEmptyFrames(t *testing.T) {
	ctx := context.Background()
	session := &recordingSession{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	b := newTestBatcher(session, now)

	b.Push(nil)
	b.Push([]byte{})
	now.Advance(time.Second)
	b.tick(ctx)

	if len(session.sentAudio()) != 0 {
		t.Error("empty frames should not produce a batch")
	}
	if session.streamEndCount() != 0 {
		t.Error("empty frames should not arm silence detection")
	}
}
