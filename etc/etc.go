package etc

import (
	"fmt"

	"github.com/google/uuid"
)

// NewFreshID returns an opaque unique identifier, used for interviews,
// utterances, and outbound audio streams.
func NewFreshID() string {
	return uuid.NewString()
}

// FormatDuration renders a second count as M:SS, e.g. 83 -> "1:23".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
