package sink

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/ptyio"
)

// PTY publishes updates as lines on a pseudo-terminal, so another program
// can read the live values from the slave device path.
type PTY struct {
	*Lines
	pty ptyio.PTY
}

// NewPTY creates the pseudo-terminal and a line writer on it
func NewPTY(opts *LinesOptions, logger *logrus.Logger) (*PTY, error) {
	if logger == nil {
		logger = logrus.New()
	}

	p, err := ptyio.NewPty(&ptyio.Options{
		Logger: logger,
		OnError: func(err error) {
			logger.WithError(err).Error("PTY sink stopped")
		},
	})
	if err != nil {
		return nil, err
	}

	o := LinesOptions{}
	if opts != nil {
		o = *opts
	}
	o.CRLF = true

	return &PTY{Lines: NewLines(p, &o, logger), pty: p}, nil
}

// Path returns the slave device path, e.g. /dev/pts/4
func (p *PTY) Path() string {
	return p.pty.TTYName()
}

// Stats returns the PTY queue counters
func (p *PTY) Stats() ptyio.Stats {
	return p.pty.Stats()
}

// Close closes the pseudo-terminal
func (p *PTY) Close() error {
	return p.pty.Close()
}
