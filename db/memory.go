package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"parley/etc"
)

// MemoryStore keeps interviews in process memory. It backs standalone mode
// and the test suite; PostgresStore is the durable implementation.
type MemoryStore struct {
	mu         sync.Mutex
	interviews map[string]Interview
	utterances map[string][]Utterance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interviews: make(map[string]Interview),
		utterances: make(map[string][]Utterance),
	}
}

func (s *MemoryStore) CreateInterview(_ context.Context) (Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	interview := Interview{
		ID:        etc.NewFreshID(),
		Status:    StatusActive,
		StartedAt: time.Now(),
	}
	s.interviews[interview.ID] = interview
	return interview, nil
}

func (s *MemoryStore) GetInterview(_ context.Context, id string) (Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	interview, ok := s.interviews[id]
	if !ok {
		return Interview{}, ErrNotFound
	}
	return interview, nil
}

func (s *MemoryStore) ListInterviews(_ context.Context) ([]Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	interviews := make([]Interview, 0, len(s.interviews))
	for _, interview := range s.interviews {
		interviews = append(interviews, interview)
	}
	sort.Slice(interviews, func(i, j int) bool {
		return interviews[i].StartedAt.After(interviews[j].StartedAt)
	})
	return interviews, nil
}

func (s *MemoryStore) AppendUtterance(_ context.Context, params AppendUtteranceParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.interviews[params.InterviewID]; !ok {
		return ErrNotFound
	}
	s.utterances[params.InterviewID] = append(
		s.utterances[params.InterviewID],
		Utterance{
			ID:          etc.NewFreshID(),
			InterviewID: params.InterviewID,
			Speaker:     params.Speaker,
			Text:        params.Text,
			Sequence:    params.Sequence,
			CreatedAt:   time.Now(),
		},
	)
	return nil
}

func (s *MemoryStore) ListUtterances(_ context.Context, interviewID string) ([]Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	utterances := append([]Utterance(nil), s.utterances[interviewID]...)
	sort.Slice(utterances, func(i, j int) bool {
		return utterances[i].Sequence < utterances[j].Sequence
	})
	return utterances, nil
}

func (s *MemoryStore) FinishInterview(_ context.Context, params FinishInterviewParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	interview, ok := s.interviews[params.ID]
	if !ok {
		return ErrNotFound
	}
	if interview.Status != StatusActive {
		// Terminal interviews are immutable.
		return nil
	}

	endedAt := params.EndedAt
	interview.Status = params.Status
	interview.EndedAt = &endedAt
	interview.DurationSeconds = params.DurationSeconds
	interview.FullTranscript = params.FullTranscript
	interview.Summary = params.Summary
	s.interviews[params.ID] = interview
	return nil
}
