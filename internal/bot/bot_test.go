package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portgate/internal/clock"
	"grimm.is/portgate/internal/haproxy"
	"grimm.is/portgate/internal/history"
	"grimm.is/portgate/internal/i18n"
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/metrics"
	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/tunnels"
)

type sent struct {
	chatID int64
	text   string
}

type fakeTransport struct {
	batches [][]Update
	offsets []int64
	sent    []sent
}

func (f *fakeTransport) GetUpdates(_ context.Context, offset int64, _ time.Duration) ([]Update, error) {
	f.offsets = append(f.offsets, offset)
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, sent{chatID, text})
	return nil
}

type fakeOps struct {
	set    *state.TunnelSet
	calls  []string
	actors []string
	err    error
}

func newFakeOps() *fakeOps {
	return &fakeOps{set: state.NewTunnelSet()}
}

func (f *fakeOps) List(context.Context) (*state.TunnelSet, error) {
	f.calls = append(f.calls, "list")
	return f.set.Clone(), f.err
}

func (f *fakeOps) Add(_ context.Context, in tunnels.Input) (*tunnels.Outcome, error) {
	f.calls = append(f.calls, fmt.Sprintf("add %s %s %s", in.Addresses, in.Ports, in.Mode))
	if f.err != nil {
		return nil, f.err
	}
	idx := f.set.Append(state.Tunnel{ID: "0badcafe-0000", Addresses: []string{in.Addresses}, Ports: []int{80}, Mode: state.ModeTCP})
	t, _ := f.set.Get(idx)
	return &tunnels.Outcome{Index: idx, Tunnel: t}, nil
}

func (f *fakeOps) Edit(_ context.Context, ref string, in tunnels.Input) (*tunnels.Outcome, error) {
	f.calls = append(f.calls, fmt.Sprintf("edit %s %q %q %q", ref, in.Addresses, in.Ports, in.Mode))
	if f.err != nil {
		return nil, f.err
	}
	return &tunnels.Outcome{Index: 0}, nil
}

func (f *fakeOps) Delete(_ context.Context, ref string) (*tunnels.Outcome, error) {
	f.calls = append(f.calls, "delete "+ref)
	if f.err != nil {
		return nil, f.err
	}
	return &tunnels.Outcome{Index: 0, Tunnel: state.Tunnel{ID: "deadbeef-1111"}}, nil
}

func (f *fakeOps) SetHealthCheckPort(_ context.Context, value string) (*tunnels.Outcome, error) {
	f.calls = append(f.calls, "healthcheck "+value)
	return &tunnels.Outcome{Index: -1}, f.err
}

func (f *fakeOps) Apply(ctx context.Context) (*tunnels.Outcome, error) {
	f.calls = append(f.calls, "apply")
	f.actors = append(f.actors, history.ActorFrom(ctx))
	if f.err != nil {
		return nil, f.err
	}
	return &tunnels.Outcome{Index: -1, Activation: &haproxy.Result{Hash: "abcdef012345"}}, nil
}

func (f *fakeOps) Status(context.Context) (*tunnels.Status, error) {
	f.calls = append(f.calls, "status")
	return &tunnels.Status{
		Service:     haproxy.ServiceStatus{Active: true, State: "active"},
		Tunnels:     1,
		Listeners:   2,
		HealthCheck: "none",
		InSync:      true,
	}, f.err
}

const admin = 42

func newTestBot(t *testing.T, tr Transport, ops Operations) (*Bot, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry()
	b, err := New(tr, ops, Config{
		AdminID: "42",
		Metrics: reg,
		Logger:  logging.New(logging.Config{Output: io.Discard}),
	})
	require.NoError(t, err)
	return b, reg
}

func msg(id int64, from int64, text string) Update {
	return Update{UpdateID: id, Message: &Message{
		MessageID: id,
		From:      &User{ID: from},
		Chat:      Chat{ID: from},
		Text:      text,
	}}
}

func TestNew_RejectsBadAdmin(t *testing.T) {
	_, err := New(&fakeTransport{}, newFakeOps(), Config{AdminID: "boss"})
	assert.Error(t, err)
}

func TestPoll_AdminOnly(t *testing.T) {
	tr := &fakeTransport{batches: [][]Update{{
		msg(10, 7, "/list"),
		msg(11, admin, "/list"),
		{UpdateID: 12},
		msg(13, admin, "just chatting"),
	}}}
	ops := newFakeOps()
	b, reg := newTestBot(t, tr, ops)

	require.NoError(t, b.Poll(context.Background()))
	require.NoError(t, b.Poll(context.Background()))

	assert.Equal(t, []int64{0, 14}, tr.offsets)
	assert.Equal(t, []string{"list"}, ops.calls)
	require.Len(t, tr.sent, 2)
	assert.Equal(t, sent{7, "Unauthorized."}, tr.sent[0])
	assert.Equal(t, int64(admin), tr.sent[1].chatID)
	assert.Contains(t, tr.sent[1].text, "No tunnels configured.")

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.BotCommandsTotal.WithLabelValues("list", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.BotCommandsTotal.WithLabelValues("list", "true")))
}

func TestPoll_RateLimits(t *testing.T) {
	tr := &fakeTransport{batches: [][]Update{{
		msg(1, 7, "/list"),
		msg(2, 7, "/list"),
		msg(3, 7, "/apply"),
		msg(4, admin, "/apply"),
		msg(5, admin, "/apply"),
		msg(6, admin, "/apply"),
	}}}
	ops := newFakeOps()
	b, err := New(tr, ops, Config{
		AdminID:           "42",
		Metrics:           metrics.NewRegistry(),
		Logger:            logging.New(logging.Config{Output: io.Discard}),
		CommandsPerMinute: 2,
	})
	require.NoError(t, err)

	require.NoError(t, b.Poll(context.Background()))

	assert.Equal(t, []string{"apply", "apply"}, ops.calls)
	assert.Equal(t, []string{"bot:42", "bot:42"}, ops.actors)
	require.Len(t, tr.sent, 4)
	assert.Equal(t, sent{7, "Unauthorized."}, tr.sent[0])
	assert.Equal(t, sent{admin, "Too many commands, try again in a minute."}, tr.sent[3])
}

func TestReply_TruncatesOnRuneBoundary(t *testing.T) {
	tr := &fakeTransport{}
	b, _ := newTestBot(t, tr, newFakeOps())

	// the odd prefix puts the byte limit inside a two-byte rune
	long := "x" + strings.Repeat("ä", maxMessage)
	b.reply(context.Background(), admin, long)

	require.Len(t, tr.sent, 1)
	got := tr.sent[0].text
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxMessage+len("\n…"))
	assert.True(t, strings.HasSuffix(got, "ä\n…"))

	b.reply(context.Background(), admin, "kurz")
	assert.Equal(t, "kurz", tr.sent[1].text)
}

func TestRun_PrunesExpiredRateLimits(t *testing.T) {
	mc := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	defer clock.Use(mc)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var b *Bot
	var seen []int
	tr := &scriptedTransport{steps: []func() ([]Update, error){
		func() ([]Update, error) {
			return []Update{msg(1, 7, "/list"), msg(2, 8, "/list"), msg(3, 9, "/list")}, nil
		},
		func() ([]Update, error) {
			seen = append(seen, b.rejections.Len())
			mc.Advance(11 * time.Minute)
			return nil, nil
		},
		func() ([]Update, error) {
			seen = append(seen, b.rejections.Len())
			cancel()
			return nil, ctx.Err()
		},
	}}
	b, _ = newTestBot(t, tr, newFakeOps())

	require.NoError(t, b.Run(ctx))
	assert.Equal(t, []int{3, 0}, seen)
	assert.Zero(t, b.commands.Len())
}

func TestExecute(t *testing.T) {
	p := i18n.ForLanguageCode("en")
	tests := []struct {
		text      string
		wantCall  string
		wantReply string
	}{
		{"/add 10.0.0.1 80", "add 10.0.0.1 80 ", "Tunnel 0 added (0badcafe)."},
		{"/add 10.0.0.1 80,443 http", "add 10.0.0.1 80,443 http", "Tunnel 0 added"},
		{"/add 10.0.0.1", "", "Usage: /add"},
		{"/edit 0 - 8080", `edit 0 "" "8080" ""`, "Tunnel 0 updated."},
		{"/edit 3f2a 10.0.0.9", `edit 3f2a "10.0.0.9" "" ""`, "Tunnel 0 updated."},
		{"/delete 1", "delete 1", "Tunnel 0 deleted (deadbeef)."},
		{"/delete", "", "Usage: /delete"},
		{"/healthcheck none", "healthcheck none", "Health check port set to none."},
		{"/apply", "apply", "Configuration applied (abcdef012345)."},
		{"/status", "status", "haproxy: active"},
		{"/help", "", "/healthcheck <port|none>"},
		{"/frobnicate", "", "Unknown command /frobnicate."},
		{"/list@portgate_bot", "list", "Health check port: none"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ops := newFakeOps()
			b, _ := newTestBot(t, &fakeTransport{}, ops)

			cmd, args := parseCommand(tt.text)
			reply := b.Execute(context.Background(), p, cmd, args)

			assert.Contains(t, reply, tt.wantReply)
			if tt.wantCall == "" {
				for _, c := range ops.calls {
					assert.NotContains(t, c, cmd)
				}
			} else {
				require.Len(t, ops.calls, 1)
				assert.Equal(t, tt.wantCall, ops.calls[0])
			}
		})
	}
}

func TestExecute_Failures(t *testing.T) {
	p := i18n.ForLanguageCode("en")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"checker", &haproxy.ActivationError{Stage: haproxy.StageCheck, Output: "bad", Err: errors.New("exit 1")}, "live configuration unchanged"},
		{"restart", &tunnels.OperationError{Op: "add", Stage: tunnels.StageActivating, Err: &haproxy.ActivationError{Stage: haproxy.StageRestart, Err: errors.New("exit 1")}}, "restart failed"},
		{"out of range", fmt.Errorf("%w: index 9", state.ErrOutOfRange), "No such tunnel"},
		{"other", errors.New("disk full"), "Error: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := newFakeOps()
			ops.err = tt.err
			b, _ := newTestBot(t, &fakeTransport{}, ops)
			assert.Contains(t, b.Execute(context.Background(), p, "delete", []string{"9"}), tt.want)
		})
	}
}

func TestExecute_German(t *testing.T) {
	b, _ := newTestBot(t, &fakeTransport{}, newFakeOps())
	reply := b.Execute(context.Background(), i18n.ForLanguageCode("de"), "list", nil)
	assert.Contains(t, reply, "Keine Tunnel konfiguriert.")
}

func TestExecute_Logs(t *testing.T) {
	logging.GetRecentBuffer().Add(logging.Entry{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     "info",
		Source:    "tunnels",
		Message:   "configuration activated",
	})
	b, _ := newTestBot(t, &fakeTransport{}, newFakeOps())
	reply := b.Execute(context.Background(), i18n.ForLanguageCode("en"), "logs", []string{"1"})
	assert.Equal(t, "03:04:05 [info] tunnels: configuration activated", reply)
}

func TestFormatList(t *testing.T) {
	set := state.NewTunnelSet()
	set.HealthCheck = state.HealthCheck{Port: 8081}
	set.Append(state.Tunnel{ID: "12345678-aaaa", Addresses: []string{"10.0.0.1", "::1"}, Ports: []int{80, 443}, Mode: state.ModeHTTP})

	got := FormatList(i18n.ForLanguageCode("en"), set)
	assert.Equal(t, "Health check port: 8081\n0 [12345678] 80,443 -> 10.0.0.1,::1 (http)", got)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &cancelTransport{cancel: cancel}
	b, _ := newTestBot(t, tr, newFakeOps())

	require.NoError(t, b.Run(ctx))
	assert.Equal(t, 1, tr.calls)
}

type cancelTransport struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancelTransport) GetUpdates(ctx context.Context, _ int64, _ time.Duration) ([]Update, error) {
	c.calls++
	c.cancel()
	return nil, ctx.Err()
}

func (c *cancelTransport) SendMessage(context.Context, int64, string) error { return nil }

type scriptedTransport struct {
	steps []func() ([]Update, error)
}

func (s *scriptedTransport) GetUpdates(context.Context, int64, time.Duration) ([]Update, error) {
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step()
}

func (s *scriptedTransport) SendMessage(context.Context, int64, string) error { return nil }
