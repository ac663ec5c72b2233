package db

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an interview does not exist.
var ErrNotFound = errors.New("interview not found")

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

// Interview is one end-to-end conversation from connect to terminal
// notification. It is mutated only through FinishInterview and is immutable
// once its status leaves StatusActive.
type Interview struct {
	ID              string
	Status          Status
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	FullTranscript  string
	Summary         string
}

// Utterance is one recorded spoken or typed contribution. Sequence order is
// the authoritative conversation order; timestamps are informational only.
type Utterance struct {
	ID          string
	InterviewID string
	Speaker     Speaker
	Text        string
	Sequence    int
	CreatedAt   time.Time
}

type AppendUtteranceParams struct {
	InterviewID string
	Speaker     Speaker
	Text        string
	Sequence    int
}

type FinishInterviewParams struct {
	ID              string
	Status          Status
	EndedAt         time.Time
	DurationSeconds int
	FullTranscript  string
	Summary         string
}

// Store persists interviews and their transcripts. Implementations must
// serialize appends within an interview so sequence order is preserved.
type Store interface {
	CreateInterview(ctx context.Context) (Interview, error)
	GetInterview(ctx context.Context, id string) (Interview, error)
	ListInterviews(ctx context.Context) ([]Interview, error)
	AppendUtterance(ctx context.Context, params AppendUtteranceParams) error
	ListUtterances(ctx context.Context, interviewID string) ([]Utterance, error)
	FinishInterview(ctx context.Context, params FinishInterviewParams) error
}
