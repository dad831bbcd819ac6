package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})
	require.NotNil(t, logger)

	t.Run("Levels", func(t *testing.T) {
		for _, fn := range []func(string, ...any){logger.Debug, logger.Info, logger.Warn, logger.Error} {
			buf.Reset()
			fn("level msg")
			assert.Contains(t, buf.String(), "level msg")
		}
	})

	t.Run("LevelFilter", func(t *testing.T) {
		var quiet bytes.Buffer
		l := New(Config{Level: LevelError, Output: &quiet, JSON: true})
		l.Info("should not appear")
		assert.Zero(t, quiet.Len())
		l.Error("shown")
		assert.Contains(t, quiet.String(), "shown")
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("activator").Info("msg")
		assert.Contains(t, buf.String(), `"component":"activator"`)
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("add", "tunnel", map[string]any{"ports": "80,443"})
		assert.Contains(t, buf.String(), "AUDIT")
		assert.Contains(t, buf.String(), `"resource":"tunnel"`)
		assert.Contains(t, buf.String(), `"ports":"80,443"`)
	})
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.WithComponent("Store").Info("saved state", "path", "/etc/portgate/tunnels.conf", "note", "two words")
	logger.Debug("filtered")

	line := buf.String()
	assert.Contains(t, line, " portgate[")
	assert.Contains(t, line, "[info] store: saved state")
	assert.Contains(t, line, "path=/etc/portgate/tunnels.conf")
	assert.Contains(t, line, `note="two words"`)
	assert.NotContains(t, line, "filtered")
	assert.Equal(t, 1, strings.Count(line, "\n"))

	last := GetRecentBuffer().Last(1)
	require.Len(t, last, 1)
	assert.Equal(t, "store", last[0].Source)
	assert.Equal(t, "saved state", last[0].Message)
	assert.Equal(t, "two words", last[0].Extra["note"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	require.NotNil(t, Default())

	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(Config{Output: &buf}))
	defer SetDefault(prev)

	WithComponent("comp").Info("comp msg")
	assert.Contains(t, buf.String(), "comp: comp msg")
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)
	if got := rb.Last(5); len(got) != 0 {
		t.Errorf("empty buffer returned %d entries", len(got))
	}

	for _, m := range []string{"1", "2", "3", "4"} {
		rb.Add(Entry{Message: m})
	}

	if rb.Count() != 3 {
		t.Errorf("Count should be capped at 3, got %d", rb.Count())
	}

	last2 := rb.Last(2)
	if len(last2) != 2 || last2[0].Message != "3" || last2[1].Message != "4" {
		t.Errorf("Last(2) = %+v", last2)
	}

	all := rb.Last(0)
	if len(all) != 3 || all[0].Message != "2" {
		t.Errorf("Last(0) should return everything oldest first, got %+v", all)
	}
}
