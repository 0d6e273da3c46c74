package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// LinesOptions configures a Lines writer. Zero values are filled from the default tags.
type LinesOptions struct {
	Separator  string `default:"="`
	Timestamps bool   `default:"false"`
	CRLF       bool   `default:"false"` // terminate lines with \r\n, for raw terminals
}

// Lines writes every update as one "name=value" line.
// Writes from different sources are serialized so lines never interleave.
type Lines struct {
	mu     sync.Mutex
	w      io.Writer
	opts   LinesOptions
	logger *logrus.Logger
	now    func() time.Time
	errs   int64
}

// NewLines creates a line writer on w
func NewLines(w io.Writer, opts *LinesOptions, logger *logrus.Logger) *Lines {
	o := LinesOptions{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)

	if logger == nil {
		logger = logrus.New()
	}
	return &Lines{w: w, opts: o, logger: logger, now: time.Now}
}

// Sink returns the sink of one named source
func (l *Lines) Sink(name string) Sink {
	return Func(func(text string) {
		l.write(name, text)
	})
}

func (l *Lines) write(name, text string) {
	var b strings.Builder
	if l.opts.Timestamps {
		b.WriteString(l.now().Format(time.RFC3339Nano))
		b.WriteByte(' ')
	}
	b.WriteString(name)
	b.WriteString(l.opts.Separator)
	b.WriteString(text)
	if l.opts.CRLF {
		b.WriteString("\r\n")
	} else {
		b.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := io.WriteString(l.w, b.String()); err != nil {
		l.errs++
		// one warning, then debug, so a vanished reader does not flood the log
		entry := l.logger.WithFields(logrus.Fields{"source": name, "error": err})
		if l.errs == 1 {
			entry.Warn("Failed to write line")
		} else {
			entry.Debug("Failed to write line")
		}
	}
}

// WriteComment writes a "# ..." line, used for headers
func (l *Lines) WriteComment(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	eol := "\n"
	if l.opts.CRLF {
		eol = "\r\n"
	}
	_, _ = fmt.Fprintf(l.w, "# "+format+eol, args...)
}
