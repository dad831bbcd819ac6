package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"grimm.is/portgate/internal/brand"
)

// ConsoleHandler writes one line per record:
//
//	2006-01-02T15:04:05Z portgate[pid]: [level] component: message key=value
//
// Every record is also copied into the recent-log buffer.
type ConsoleHandler struct {
	level slog.Leveler
	out   io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr
}

// NewConsoleHandler creates a ConsoleHandler. Only opts.Level is honored.
func NewConsoleHandler(out io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{out: out, level: slog.LevelInfo, mu: &sync.Mutex{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	// the last component attr wins and moves into the header
	component := ""
	var fields []slog.Attr
	collect := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToLower(a.Value.String())
		} else {
			fields = append(fields, a)
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	var sb strings.Builder
	sb.WriteString(t.Format(time.RFC3339))
	sb.WriteString(" " + brand.Get().BinaryName + "[" + strconv.Itoa(os.Getpid()) + "]: ")
	sb.WriteString("[" + strings.ToLower(r.Level.String()) + "] ")
	if component != "" {
		sb.WriteString(component + ": ")
	}
	sb.WriteString(r.Message)

	extra := make(map[string]string, len(fields))
	for _, a := range fields {
		val := a.Value.String()
		extra[a.Key] = val
		if strings.ContainsAny(val, " \t\n") {
			val = fmt.Sprintf("%q", val)
		}
		sb.WriteString(" " + a.Key + "=" + val)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	_, err := io.WriteString(h.out, sb.String())
	h.mu.Unlock()

	source := component
	if source == "" {
		source = "system"
	}
	GetRecentBuffer().Add(Entry{
		Timestamp: t,
		Level:     LevelName(r.Level),
		Source:    source,
		Message:   r.Message,
		Extra:     extra,
	})
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ConsoleHandler{level: h.level, out: h.out, mu: h.mu, attrs: merged}
}

// WithGroup returns the handler unchanged; console output is flat.
func (h *ConsoleHandler) WithGroup(string) slog.Handler {
	return h
}
