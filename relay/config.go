package relay

import "time"

// Audio contract. Input is what the browser captures; output is what the
// speech model synthesizes. Both are raw PCM16, no container.
const (
	InputMIMEType    = "audio/pcm;rate=16000"
	OutputSampleRate = 24000
	OutputFormat     = "pcm_16"
)

// LargeChunkWarnBytes is the inbound frame size above which we log a
// warning. Browsers normally send a few KiB per frame; anything this big
// suggests a misconfigured capture loop.
const LargeChunkWarnBytes = 64 * 1024

// Config carries the relay timing knobs. Zero values are filled in by
// WithDefaults; tests shrink the intervals to keep runs fast.
type Config struct {
	// BatchTick is how often the batcher wakes to consider a flush.
	BatchTick time.Duration
	// BatchFlushDelay is how long the batcher waits after the last inbound
	// frame before forwarding the accumulated audio upstream.
	BatchFlushDelay time.Duration
	// SilenceThreshold is how long after the last frame the batcher signals
	// end-of-speech upstream. Sent once per silent stretch.
	SilenceThreshold time.Duration
	// InactivityPollInterval is how often the monitor checks for staleness.
	InactivityPollInterval time.Duration
	// InactivityThreshold ends the interview when neither side has produced
	// anything for this long.
	InactivityThreshold time.Duration
	// QueueSize bounds the outbound audio queue. Full queue drops chunks.
	QueueSize int
	// Greeting is spoken-intent text sent upstream right after connecting so
	// the model opens the conversation. Empty disables it.
	Greeting string
	// EndOnClosingRemarks ends the interview when the model's transcript
	// looks like a goodbye. Off by default; inactivity handles the common
	// case without false positives.
	EndOnClosingRemarks bool
}

func (c Config) WithDefaults() Config {
	if c.BatchTick == 0 {
		c.BatchTick = 50 * time.Millisecond
	}
	if c.BatchFlushDelay == 0 {
		c.BatchFlushDelay = 200 * time.Millisecond
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = 1500 * time.Millisecond
	}
	if c.InactivityPollInterval == 0 {
		c.InactivityPollInterval = 5 * time.Second
	}
	if c.InactivityThreshold == 0 {
		c.InactivityThreshold = 60 * time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	return c
}

// DefaultGreeting nudges the model to speak first so the user hears a
// question instead of silence after connecting.
const DefaultGreeting = "Hello! I'm ready to start the interview. Please introduce yourself and ask me your first question."
