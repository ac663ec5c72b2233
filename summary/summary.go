// Package summary produces the post-interview conversation summary.
package summary

import (
	"context"

	"parley/db"
)

const (
	// NothingToSummarize is stored when the interview produced no utterances.
	NothingToSummarize = "No conversation content to summarize."

	// Fallback is stored when summary generation fails. Termination proceeds
	// regardless; a missing summary never blocks the interview from closing.
	Fallback = "Summary could not be generated."
)

// Summarizer turns an ordered transcript into a short prose summary.
type Summarizer interface {
	Summarize(ctx context.Context, utterances []db.Utterance) (string, error)
}
