package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portgate/internal/haproxy"
	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/tunnels"
)

func TestParseTag(t *testing.T) {
	props := parseTag("title=Ports;desc=comma separated, 1-65535;validate=ports")
	assert.Equal(t, "Ports", props["title"])
	assert.Equal(t, "comma separated, 1-65535", props["desc"])
	assert.Equal(t, "ports", props["validate"])
}

func TestParseOptions(t *testing.T) {
	opts := parseOptions("Keep:,TCP:tcp,http")
	require.Len(t, opts, 3)
	assert.Equal(t, "Keep", opts[0].Key)
	assert.Equal(t, "", opts[0].Value)
	assert.Equal(t, "tcp", opts[1].Value)
	assert.Equal(t, "http", opts[2].Key)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, Validators["addresses"]("10.0.0.1,::1"))
	assert.Error(t, Validators["addresses"](""))
	assert.NoError(t, Validators["addresses_keep"](""))
	assert.Error(t, Validators["ports_keep"]("0"))
	assert.NoError(t, Validators["healthcheck"]("none"))
	assert.Error(t, Validators["required"]("  "))
}

func TestAutoForm(t *testing.T) {
	assert.NotNil(t, AutoForm(&TunnelForm{}))
	assert.NotNil(t, AutoForm(&EditForm{}))
	assert.Panics(t, func() { AutoForm(TunnelForm{}) })
}

func TestTunnelTable(t *testing.T) {
	set := state.NewTunnelSet()
	set.Append(state.Tunnel{ID: "abcdef01-2345", Addresses: []string{"10.0.0.1"}, Ports: []int{80, 443}, Mode: state.ModeHTTP})

	out := TunnelTable(set)
	for _, want := range []string{"BACKENDS", "abcdef01", "10.0.0.1", "80,443", "http"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, HealthCheckLine(state.HealthCheck{}), "basic connectivity")
	assert.Contains(t, HealthCheckLine(state.HealthCheck{Port: 9000}), "9000")
}

type stubOps struct {
	Operations
	set *state.TunnelSet
}

func (s stubOps) List(context.Context) (*state.TunnelSet, error) { return s.set, nil }

func (s stubOps) Apply(context.Context) (*tunnels.Outcome, error) {
	return &tunnels.Outcome{Index: -1, Activation: &haproxy.Result{Hash: "0123456789ab"}}, nil
}

func TestMenuDo_NonInteractive(t *testing.T) {
	set := state.NewTunnelSet()
	set.Append(state.Tunnel{ID: "ffff0000-1", Addresses: []string{"10.1.1.1"}, Ports: []int{22}, Mode: state.ModeTCP})
	var buf bytes.Buffer
	m := NewMenu(stubOps{set: set}, &buf)

	out, err := m.Do(context.Background(), actionList)
	require.NoError(t, err)
	assert.Contains(t, out, "10.1.1.1")

	out, err = m.Do(context.Background(), actionApply)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "0123456789ab"))

	_, err = m.Do(context.Background(), "bogus")
	assert.Error(t, err)
}

func TestPickTunnel_Empty(t *testing.T) {
	var buf bytes.Buffer
	m := NewMenu(stubOps{set: state.NewTunnelSet()}, &buf)

	ref, err := m.pickTunnel(context.Background(), "pick")
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Contains(t, buf.String(), "no tunnels configured")
}
