package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// palette holds the escape codes used for one handler. The zero value prints plain text.
type palette struct {
	reset, dim, bold         string
	debug, info, warn, error string
}

var colourPalette = palette{
	reset: ansiReset, dim: ansiDim, bold: ansiBold,
	debug: ansiCyan, info: ansiGreen, warn: ansiYellow, error: ansiRed,
}

// TerminalHandler formats log records as one line each for humans.
//
// Output format:
//
//	15:04:05.000 INF document added id=3 title=Greeting
//
// Colour is disabled when NO_COLOR is set.
type TerminalHandler struct {
	writer io.Writer
	level  slog.Leveler
	colour palette
	attrs  []slog.Attr
	groups []string
	mu     *sync.Mutex
}

func newTerminalHandler(w io.Writer, opts *slog.HandlerOptions) *TerminalHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	colour := colourPalette
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		colour = palette{}
	}
	return &TerminalHandler{
		writer: w,
		level:  level,
		colour: colour,
		mu:     &sync.Mutex{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle writes one line for the record.
func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.Grow(256)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.styled(&buf, h.colour.dim, ts.Format("15:04:05.000"))
	buf.WriteByte(' ')

	colour, label := h.levelStyle(r.Level)
	h.styled(&buf, colour, label)
	buf.WriteByte(' ')

	h.styled(&buf, h.colour.bold, r.Message)

	for _, a := range h.attrs {
		h.appendAttr(&buf, a, h.groups)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, a, h.groups)
		return true
	})

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

// WithAttrs returns a handler that also prints attrs on every record.
func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a handler that prefixes subsequent attribute keys with name.
func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append(make([]string, 0, len(h.groups)+1), h.groups...), name)
	return &clone
}

func (h *TerminalHandler) styled(buf *bytes.Buffer, code, text string) {
	if code == "" {
		buf.WriteString(text)
		return
	}
	buf.WriteString(code)
	buf.WriteString(text)
	buf.WriteString(h.colour.reset)
}

func (h *TerminalHandler) levelStyle(level slog.Level) (string, string) {
	switch {
	case level < slog.LevelInfo:
		return h.colour.debug, "DBG"
	case level < slog.LevelWarn:
		return h.colour.info, "INF"
	case level < slog.LevelError:
		return h.colour.warn, "WRN"
	default:
		return h.colour.error, "ERR"
	}
}

func (h *TerminalHandler) appendAttr(buf *bytes.Buffer, a slog.Attr, groups []string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		prefix := groups
		if a.Key != "" {
			prefix = append(append(make([]string, 0, len(groups)+1), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(buf, ga, prefix)
		}
		return
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	buf.WriteByte(' ')
	h.styled(buf, h.colour.dim, key+"=")
	buf.WriteString(formatAttrValue(a.Value))
}

func formatAttrValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && (s == "" || strings.ContainsAny(s, " \t\n\"\\=")) {
		return fmt.Sprintf("%q", s)
	}
	return s
}
