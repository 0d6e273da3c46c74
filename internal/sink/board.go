package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/fatih/color"
	"github.com/mcuadros/go-defaults"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"
)

// Placeholder is shown for a source that has not received a value yet
const Placeholder = "--"

// BoardOptions configures a Board. Zero values are filled from the default tags.
type BoardOptions struct {
	Color    string        `default:"auto"` // auto, always, never
	Interval time.Duration `default:"200ms"`
	Title    string
}

type boardRow struct {
	label   string
	history *History
	updates atomic.Int64
}

// Board is a live terminal table with one row per source, in registration order.
//
// Sources write concurrently into a lock-free map of latest values; a single
// renderer redraws the table at a fixed interval when something changed.
// On a terminal the table is redrawn in place; otherwise each frame is appended.
type Board struct {
	out  io.Writer
	opts BoardOptions

	mu      sync.Mutex // guards rows and the drawn frame
	rows    *orderedmap.OrderedMap[string, *boardRow]
	values  *hashmap.Map[string, string]
	dirty   atomic.Bool
	drawn   int
	inPlace bool

	labelColor *color.Color
	valueColor *color.Color
	dimColor   *color.Color
}

// NewBoard creates a board rendering to out
func NewBoard(out io.Writer, opts *BoardOptions) *Board {
	o := BoardOptions{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)

	tty := isTerminal(out)
	b := &Board{
		out:        out,
		opts:       o,
		rows:       orderedmap.New[string, *boardRow](),
		values:     hashmap.New[string, string](),
		inPlace:    tty,
		labelColor: color.New(color.FgCyan, color.Bold),
		valueColor: color.New(color.FgGreen),
		dimColor:   color.New(color.Faint),
	}

	useColor := o.Color == "always" || (o.Color == "auto" && tty)
	for _, c := range []*color.Color{b.labelColor, b.valueColor, b.dimColor} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return b
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Add registers a row and returns its sink. history may be nil.
// Adding the same name twice creates a second row, labelled name#2.
func (b *Board) Add(name string, history *History) Sink {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := name
	for i := 2; ; i++ {
		if _, exists := b.rows.Get(key); !exists {
			break
		}
		key = fmt.Sprintf("%s#%d", name, i)
	}

	row := &boardRow{label: key, history: history}
	b.rows.Set(key, row)
	b.dirty.Store(true)

	return Func(func(text string) {
		b.values.Set(key, text)
		row.updates.Add(1)
		b.dirty.Store(true)
	})
}

// Value returns the latest value of a row
func (b *Board) Value(name string) (string, bool) {
	return b.values.Get(name)
}

// Render returns the current table without writing it
func (b *Board) Render() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.renderInternal(), "\n") + "\n"
}

func (b *Board) renderInternal() []string {
	width := 0
	for pair := b.rows.Oldest(); pair != nil; pair = pair.Next() {
		width = max(width, len(pair.Key))
	}

	lines := make([]string, 0, b.rows.Len()+1)
	if b.opts.Title != "" {
		lines = append(lines, b.labelColor.Sprint(b.opts.Title))
	}

	for pair := b.rows.Oldest(); pair != nil; pair = pair.Next() {
		row := pair.Value
		label := b.labelColor.Sprint(fmt.Sprintf("%-*s", width, row.label))

		value, ok := b.values.Get(pair.Key)
		if !ok {
			lines = append(lines, fmt.Sprintf("%s  %s", label, b.dimColor.Sprint(Placeholder)))
			continue
		}

		line := fmt.Sprintf("%s  %s", label, b.valueColor.Sprint(value))
		if row.history != nil {
			if lo, hi, ok := row.history.Range(); ok {
				line += "  " + b.dimColor.Sprint(fmt.Sprintf("[%s .. %s]", trimFloat(lo), trimFloat(hi)))
			}
		}
		lines = append(lines, line)
	}
	return lines
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Redraw writes the table if anything changed since the last frame
func (b *Board) Redraw() error {
	if !b.dirty.Swap(false) {
		return nil
	}
	return b.draw()
}

func (b *Board) draw() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.renderInternal()
	var sb strings.Builder
	if b.inPlace && b.drawn > 0 {
		// move to the first line of the previous frame
		fmt.Fprintf(&sb, "\x1b[%dA", b.drawn)
	}
	for _, line := range lines {
		if b.inPlace {
			sb.WriteString("\x1b[2K")
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if !b.inPlace {
		sb.WriteByte('\n')
	}

	b.drawn = len(lines)
	_, err := io.WriteString(b.out, sb.String())
	return err
}

// Run redraws on every interval tick until ctx is done, then draws a final frame
func (b *Board) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.dirty.Store(false)
			return b.draw()
		case <-ticker.C:
			if err := b.Redraw(); err != nil {
				return fmt.Errorf("board redraw failed: %w", err)
			}
		}
	}
}
