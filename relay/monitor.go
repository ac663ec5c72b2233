package relay

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// monitor watches the shared activity clock and fires once when the
// conversation has been idle past the threshold. The clock starts touched,
// so the monitor can never fire before any exchange has had a chance to
// happen.
type monitor struct {
	clock  *clock
	cfg    Config
	logger *log.Logger
	fire   func()
}

func newMonitor(clock *clock, cfg Config, logger *log.Logger, fire func()) *monitor {
	return &monitor{clock: clock, cfg: cfg, logger: logger, fire: fire}
}

func (m *monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.InactivityPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := m.clock.SinceActivity()
			if idle >= m.cfg.InactivityThreshold {
				m.logger.Info("interview idle past threshold", "idle", idle)
				m.fire()
				return
			}
		}
	}
}
