package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"parley/db"
	"parley/upstream"
)

type scriptedSession struct {
	recordingSession
	events    chan upstream.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newScriptedSession(events ...upstream.Event) *scriptedSession {
	s := &scriptedSession{
		events: make(chan upstream.Event, 16),
		done:   make(chan struct{}),
	}
	for _, e := range events {
		s.events <- e
	}
	return s
}

func (s *scriptedSession) Receive(ctx context.Context) (upstream.Event, error) {
	select {
	case e := <-s.events:
		return e, nil
	case <-s.done:
		return nil, errors.New("session closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

type fakeDialer struct {
	session upstream.Session
	err     error
}

func (d *fakeDialer) Dial(context.Context) (upstream.Session, error) {
	return d.session, d.err
}

type fakeSummarizer struct {
	text string
	err  error
}

func (f *fakeSummarizer) Summarize(context.Context, []db.Utterance) (string, error) {
	return f.text, f.err
}

func newTestOrchestrator(client ClientConn, store db.Store, dialer upstream.Dialer) *Orchestrator {
	return &Orchestrator{
		Client:     client,
		Store:      store,
		Dialer:     dialer,
		Summarizer: &fakeSummarizer{text: "A brief chat."},
		Config: Config{
			BatchTick: time.Millisecond,
			Greeting:  DefaultGreeting,
		},
		Logger: log.New(io.Discard),
	}
}

func clientJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func endedMessages(client *fakeClient) []InterviewEnded {
	var ended []InterviewEnded
	for _, msg := range client.messages() {
		if e, ok := msg.(InterviewEnded); ok {
			ended = append(ended, e)
		}
	}
	return ended
}

func TestOrchestratorUserStop(t *testing.T) {
	client := newFakeClient()
	store := db.NewMemoryStore()
	session := newScriptedSession(upstream.AIText{Text: "Hello! Tell me about yourself."})
	o := newTestOrchestrator(client, store, &fakeDialer{session: session})

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	// The model's opening line must reach the client before we respond.
	waitFor(t, "live transcript", func() bool {
		for _, msg := range client.messages() {
			if _, ok := msg.(LiveTranscript); ok {
				return true
			}
		}
		return false
	})

	client.incoming <- clientJSON(t, ClientMessage{Type: TypeTextInput, Text: "I build backends."})
	waitFor(t, "text forwarded upstream", func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return len(session.texts) >= 2 // greeting plus the typed answer
	})

	client.incoming <- clientJSON(t, ClientMessage{Type: TypeStopInterview})

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := client.messages()
	if _, ok := msgs[0].(InterviewStarted); !ok {
		t.Errorf("first message is %T, want InterviewStarted", msgs[0])
	}

	ended := endedMessages(client)
	if len(ended) != 1 {
		t.Fatalf("got %d interview_ended messages, want exactly 1", len(ended))
	}
	if _, ok := msgs[len(msgs)-1].(InterviewEnded); !ok {
		t.Errorf("last message is %T, want InterviewEnded", msgs[len(msgs)-1])
	}
	if ended[0].Summary != "A brief chat." {
		t.Errorf("summary = %q", ended[0].Summary)
	}
	if ended[0].TotalTranscripts != 2 {
		t.Errorf("total_transcripts = %d, want 2", ended[0].TotalTranscripts)
	}
	if ended[0].Error != "" {
		t.Errorf("unexpected error field %q", ended[0].Error)
	}

	interviews, err := store.ListInterviews(context.Background())
	if err != nil || len(interviews) != 1 {
		t.Fatalf("ListInterviews: %v, %d", err, len(interviews))
	}
	if interviews[0].Status != db.StatusCompleted {
		t.Errorf("status = %q, want completed", interviews[0].Status)
	}

	utterances, err := store.ListUtterances(context.Background(), interviews[0].ID)
	if err != nil {
		t.Fatalf("ListUtterances: %v", err)
	}
	for i, u := range utterances {
		if u.Sequence != i {
			t.Errorf("utterance %d has sequence %d, want gapless order", i, u.Sequence)
		}
	}

	session.mu.Lock()
	greeting := session.texts[0]
	session.mu.Unlock()
	if greeting != DefaultGreeting {
		t.Errorf("greeting = %q", greeting)
	}
}

func TestOrchestratorUpstreamClose(t *testing.T) {
	client := newFakeClient()
	store := db.NewMemoryStore()
	session := newScriptedSession()
	o := newTestOrchestrator(client, store, &fakeDialer{session: session})

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, "interview start", func() bool { return len(client.messages()) >= 1 })
	session.Close()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ended := endedMessages(client); len(ended) != 1 {
		t.Fatalf("got %d interview_ended messages, want 1", len(ended))
	}
	if o.endReason() != EndUpstreamClosed {
		t.Errorf("end reason = %q, want %q", o.endReason(), EndUpstreamClosed)
	}
}

func TestOrchestratorDialFailure(t *testing.T) {
	client := newFakeClient()
	store := db.NewMemoryStore()
	o := newTestOrchestrator(client, store, &fakeDialer{err: upstream.ErrUnavailable})

	if err := o.Run(context.Background()); !errors.Is(err, upstream.ErrUnavailable) {
		t.Fatalf("Run: %v, want ErrUnavailable", err)
	}

	ended := endedMessages(client)
	if len(ended) != 1 {
		t.Fatalf("got %d interview_ended messages, want 1", len(ended))
	}
	if ended[0].Error == "" {
		t.Error("expected error field on failed start")
	}

	interviews, _ := store.ListInterviews(context.Background())
	if len(interviews) != 1 || interviews[0].Status != db.StatusFailed {
		t.Fatalf("expected one failed interview, got %+v", interviews)
	}
}

func TestOrchestratorDropsMalformedMessages(t *testing.T) {
	client := newFakeClient()
	store := db.NewMemoryStore()
	session := newScriptedSession()
	o := newTestOrchestrator(client, store, &fakeDialer{session: session})

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, "interview start", func() bool { return len(client.messages()) >= 1 })
	client.incoming <- []byte("{not json")
	client.incoming <- clientJSON(t, ClientMessage{Type: "bogus_type"})
	client.incoming <- clientJSON(t, ClientMessage{Type: TypeStopInterview})

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ended := endedMessages(client); len(ended) != 1 {
		t.Fatalf("got %d interview_ended messages, want 1", len(ended))
	}

	interviews, _ := store.ListInterviews(context.Background())
	if len(interviews) != 1 || interviews[0].Status != db.StatusCompleted {
		t.Fatalf("malformed frames must not fail the interview: %+v", interviews)
	}
}

func TestOrchestratorRacingTriggers(t *testing.T) {
	client := newFakeClient()
	store := db.NewMemoryStore()
	session := newScriptedSession()
	o := newTestOrchestrator(client, store, &fakeDialer{session: session})

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, "interview start", func() bool { return len(client.messages()) >= 1 })

	// Fire a client stop and an upstream close at the same time; whichever
	// wins, the client must see a single terminal message.
	stopMsg := clientJSON(t, ClientMessage{Type: TypeStopInterview})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		client.incoming <- stopMsg
	}()
	go func() {
		defer wg.Done()
		session.Close()
	}()
	wg.Wait()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ended := endedMessages(client); len(ended) != 1 {
		t.Fatalf("got %d interview_ended messages, want exactly 1", len(ended))
	}
	reason := o.endReason()
	if reason != EndUserStop && reason != EndUpstreamClosed {
		t.Errorf("end reason = %q, want one of the racing triggers", reason)
	}

	interviews, err := store.ListInterviews(context.Background())
	if err != nil || len(interviews) != 1 {
		t.Fatalf("ListInterviews: %v, %d", err, len(interviews))
	}
	if interviews[0].Status != db.StatusCompleted {
		t.Errorf("status = %q, want completed", interviews[0].Status)
	}
}

func TestOrchestratorStampsInjectedTime(t *testing.T) {
	client := newFakeClient()
	store := db.NewMemoryStore()
	session := newScriptedSession()
	o := newTestOrchestrator(client, store, &fakeDialer{session: session})
	now := &fakeNow{t: time.Unix(5000, 0)}
	o.Now = now.Now

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, "interview start", func() bool { return len(client.messages()) >= 1 })
	now.Advance(83 * time.Second)
	client.incoming <- clientJSON(t, ClientMessage{Type: TypeStopInterview})

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	interviews, err := store.ListInterviews(context.Background())
	if err != nil || len(interviews) != 1 {
		t.Fatalf("ListInterviews: %v, %d", err, len(interviews))
	}
	if interviews[0].DurationSeconds != 83 {
		t.Errorf("duration = %d, want 83", interviews[0].DurationSeconds)
	}
	if interviews[0].EndedAt == nil || !interviews[0].EndedAt.Equal(time.Unix(5083, 0)) {
		t.Errorf("ended_at = %v, want the injected clock's time", interviews[0].EndedAt)
	}

	ended := endedMessages(client)
	if len(ended) != 1 || ended[0].Duration != "1:23" {
		t.Errorf("terminal duration = %+v, want 1:23", ended)
	}
}

func TestEndRecordsOnlyFirstTrigger(t *testing.T) {
	canceled := 0
	o := &Orchestrator{Logger: log.New(io.Discard)}
	o.cancel = func() { canceled++ }

	o.end(EndUserStop)
	o.end(EndInactivity)
	o.end(EndUpstreamClosed)

	if o.endReason() != EndUserStop {
		t.Errorf("end reason = %q, want the first trigger to win", o.endReason())
	}
	if canceled != 1 {
		t.Errorf("cancel ran %d times, want 1", canceled)
	}
}

func TestOrchestratorClosingRemarks(t *testing.T) {
	client := newFakeClient()
	store := db.NewMemoryStore()
	session := newScriptedSession(
		upstream.AIText{Text: "Thank you for your time, goodbye!"},
	)
	o := newTestOrchestrator(client, store, &fakeDialer{session: session})
	o.Config.EndOnClosingRemarks = true

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.endReason() != EndClosingRemarks {
		t.Errorf("end reason = %q, want %q", o.endReason(), EndClosingRemarks)
	}
	if ended := endedMessages(client); len(ended) != 1 {
		t.Fatalf("got %d interview_ended messages, want 1", len(ended))
	}
}
