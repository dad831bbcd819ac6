// Package tunnels is the operation facade: every command loads fresh state,
// validates input, mutates, persists and then activates the rendered
// configuration.
//
// Persistence always precedes activation, so an activation failure never
// loses the edit; Apply re-runs activation for the stored state.
package tunnels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/portgate/internal/clock"
	"grimm.is/portgate/internal/haproxy"
	"grimm.is/portgate/internal/history"
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/metrics"
	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/validation"
)

// Activator validates and deploys a rendered document. *haproxy.Activator
// implements it.
type Activator interface {
	Activate(ctx context.Context, doc haproxy.Document) (*haproxy.Result, error)
	Check(ctx context.Context, doc haproxy.Document) (string, error)
	Restore(ctx context.Context, version int) (*haproxy.Result, error)
	Status(ctx context.Context) haproxy.ServiceStatus
	ReadLive() (string, error)
	LivePath() string
	Backups() *haproxy.BackupManager
}

// Journal records state-changing operations. *history.Journal implements it.
type Journal interface {
	Record(ctx context.Context, e history.Entry) error
	Recent(ctx context.Context, q history.Query) ([]history.Entry, error)
}

// Options configures a Manager. Journal is optional.
type Options struct {
	Store     state.Store
	Activator Activator
	Render    haproxy.RenderOptions
	Journal   Journal
	Metrics   *metrics.Registry
	Logger    *logging.Logger
}

// Manager runs tunnel operations.
type Manager struct {
	store     state.Store
	activator Activator
	render    haproxy.RenderOptions
	journal   Journal
	metrics   *metrics.Registry
	logger    *logging.Logger
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("tunnels")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}
	if opts.Render == (haproxy.RenderOptions{}) {
		opts.Render = haproxy.DefaultRenderOptions()
	}
	return &Manager{
		store:     opts.Store,
		activator: opts.Activator,
		render:    opts.Render,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// Input carries raw, unvalidated tunnel fields as typed by an operator.
// For Edit, a blank field keeps the stored value.
type Input struct {
	Addresses string
	Ports     string
	Mode      string
}

// Outcome describes a completed mutating operation.
type Outcome struct {
	Index      int             `json:"index"`
	Tunnel     state.Tunnel    `json:"tunnel"`
	Activation *haproxy.Result `json:"activation,omitempty"`
}

// Status summarizes service and state consistency.
type Status struct {
	Service       haproxy.ServiceStatus `json:"service" yaml:"service"`
	Tunnels       int                   `json:"tunnels" yaml:"tunnels"`
	Listeners     int                   `json:"listeners" yaml:"listeners"`
	HealthCheck   string                `json:"health_check_port" yaml:"health_check_port"`
	RenderedHash  string                `json:"rendered_hash" yaml:"rendered_hash"`
	InSync        bool                  `json:"in_sync" yaml:"in_sync"`
	BotConfigured bool                  `json:"bot_configured" yaml:"bot_configured"`
}

// op tracks one invocation through the pipeline.
type op struct {
	name  string
	stage Stage
	start time.Time
}

func (m *Manager) begin(name string) *op {
	return &op{name: name, stage: StageIdle, start: clock.Now()}
}

func (o *op) to(s Stage) {
	o.stage = s
}

func (m *Manager) finish(o *op, err error) error {
	if err != nil {
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			err = &OperationError{Op: o.name, Stage: o.stage, Err: err}
		}
		m.logger.Warn("operation failed", "op", o.name, "stage", o.stage, "error", err)
	} else {
		o.to(StageDone)
	}
	m.metrics.ObserveOperation(o.name, resultLabel(err), clock.Since(o.start))
	return err
}

// List returns freshly loaded state.
func (m *Manager) List(ctx context.Context) (*state.TunnelSet, error) {
	o := m.begin("list")
	o.to(StageLoading)
	set, err := m.store.Load(ctx)
	if err != nil {
		return nil, m.finish(o, err)
	}
	return set, m.finish(o, nil)
}

// Add validates in and appends a new tunnel. A blank mode means tcp.
func (m *Manager) Add(ctx context.Context, in Input) (*Outcome, error) {
	var t state.Tunnel
	return m.mutate(ctx, "add",
		func(*state.TunnelSet) (err error) {
			t, err = buildTunnel(in, state.Tunnel{Mode: state.ModeTCP})
			return err
		},
		func(set *state.TunnelSet) (*Outcome, error) {
			idx := set.Append(t)
			stored, err := set.Get(idx)
			return &Outcome{Index: idx, Tunnel: stored}, err
		})
}

// Edit replaces the tunnel ref resolves to. Blank input fields keep the
// stored values; the tunnel id never changes.
func (m *Manager) Edit(ctx context.Context, ref string, in Input) (*Outcome, error) {
	var (
		idx int
		t   state.Tunnel
	)
	return m.mutate(ctx, "edit",
		func(set *state.TunnelSet) error {
			var err error
			if idx, err = set.Resolve(ref); err != nil {
				return err
			}
			current, err := set.Get(idx)
			if err != nil {
				return err
			}
			t, err = buildTunnel(in, current)
			return err
		},
		func(set *state.TunnelSet) (*Outcome, error) {
			if err := set.Replace(idx, t); err != nil {
				return nil, err
			}
			stored, err := set.Get(idx)
			return &Outcome{Index: idx, Tunnel: stored}, err
		})
}

// Delete removes the tunnel ref resolves to. Later tunnels shift down one
// display index.
func (m *Manager) Delete(ctx context.Context, ref string) (*Outcome, error) {
	var idx int
	return m.mutate(ctx, "delete",
		func(set *state.TunnelSet) (err error) {
			idx, err = set.Resolve(ref)
			return err
		},
		func(set *state.TunnelSet) (*Outcome, error) {
			removed, err := set.Remove(idx)
			if err != nil {
				return nil, err
			}
			return &Outcome{Index: idx, Tunnel: removed}, nil
		})
}

// SetHealthCheckPort sets the global health-check port; "none" disables it.
func (m *Manager) SetHealthCheckPort(ctx context.Context, value string) (*Outcome, error) {
	var port int
	return m.mutate(ctx, "health-check",
		func(*state.TunnelSet) (err error) {
			port, err = validation.ParseHealthCheckPort(value)
			return err
		},
		func(set *state.TunnelSet) (*Outcome, error) {
			set.HealthCheck = state.HealthCheck{Port: port}
			return &Outcome{Index: -1}, nil
		})
}

// Apply re-renders and re-activates the persisted state without changing
// it. Ids generated for legacy records are persisted first.
func (m *Manager) Apply(ctx context.Context) (*Outcome, error) {
	o := m.begin("apply")
	out, err := m.locked(ctx, o, func(set *state.TunnelSet) (*Outcome, error) {
		if set.HasGeneratedIDs() {
			o.to(StagePersisting)
			if err := m.store.Save(ctx, set); err != nil {
				return nil, err
			}
		}
		res, err := m.activate(ctx, o, set)
		if err != nil {
			return nil, err
		}
		return &Outcome{Index: -1, Activation: res}, nil
	})
	details := map[string]any{}
	if err == nil {
		details["hash"] = out.Activation.Hash
	}
	m.record(ctx, o, "haproxy", details, err)
	return out, m.finish(o, err)
}

// SetBot stores the Telegram credentials. The rendered configuration does
// not depend on them, so nothing is activated.
func (m *Manager) SetBot(ctx context.Context, token, adminID string) error {
	o := m.begin("set-bot")
	_, err := m.locked(ctx, o, func(set *state.TunnelSet) (*Outcome, error) {
		o.to(StageValidating)
		token, adminID = strings.TrimSpace(token), strings.TrimSpace(adminID)
		if err := validateBot(token, adminID); err != nil {
			return nil, err
		}
		o.to(StageMutating)
		set.Bot = state.BotSettings{Token: token, AdminID: adminID}
		o.to(StagePersisting)
		return nil, m.store.Save(ctx, set)
	})
	m.record(ctx, o, "bot", map[string]any{"admin_id": adminID, "configured": token != ""}, err)
	return m.finish(o, err)
}

// Preview renders the persisted state without activating it.
func (m *Manager) Preview(ctx context.Context) (haproxy.Document, error) {
	o := m.begin("preview")
	o.to(StageLoading)
	set, err := m.store.Load(ctx)
	if err != nil {
		return haproxy.Document{}, m.finish(o, err)
	}
	o.to(StageRendering)
	doc, err := haproxy.Render(set, m.render)
	return doc, m.finish(o, err)
}

// Check renders the persisted state and runs the haproxy syntax check on it.
// It holds the state lock because it writes the shared staging file.
func (m *Manager) Check(ctx context.Context) (string, error) {
	o := m.begin("check")
	var out string
	_, err := m.locked(ctx, o, func(set *state.TunnelSet) (*Outcome, error) {
		o.to(StageRendering)
		doc, err := haproxy.Render(set, m.render)
		if err != nil {
			return nil, err
		}
		o.to(StageActivating)
		out, err = m.activator.Check(ctx, doc)
		return nil, err
	})
	return out, m.finish(o, err)
}

// Diff returns a unified diff from the live configuration to the rendered
// one. An empty string means they match.
func (m *Manager) Diff(ctx context.Context) (string, error) {
	doc, err := m.Preview(ctx)
	if err != nil {
		return "", err
	}
	live, err := m.activator.ReadLive()
	if err != nil {
		return "", fmt.Errorf("read live config: %w", err)
	}
	if live == doc.Text {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(live),
		B:        difflib.SplitLines(doc.Text),
		FromFile: m.activator.LivePath(),
		ToFile:   "rendered",
		Context:  3,
	})
}

// Status reports the service state and whether the live file matches the
// persisted state.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	set, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := haproxy.Render(set, m.render)
	if err != nil {
		return nil, err
	}
	svc := m.activator.Status(ctx)
	return &Status{
		Service:       svc,
		Tunnels:       set.Len(),
		Listeners:     len(doc.Listeners),
		HealthCheck:   set.HealthCheck.String(),
		RenderedHash:  doc.Hash(),
		InSync:        svc.LiveHash == doc.Hash(),
		BotConfigured: set.Bot.Configured(),
	}, nil
}

// History returns journaled operations, newest first. Without a journal it
// returns nothing.
func (m *Manager) History(ctx context.Context, q history.Query) ([]history.Entry, error) {
	if m.journal == nil {
		return nil, nil
	}
	return m.journal.Recent(ctx, q)
}

// Backups lists stored live-config backups, newest first.
func (m *Manager) Backups() ([]haproxy.BackupInfo, error) {
	return m.activator.Backups().ListBackups()
}

// Restore activates a stored backup. Tunnel state is not changed, so the
// next Apply or edit renders from state again.
func (m *Manager) Restore(ctx context.Context, version int) (*haproxy.Result, error) {
	o := m.begin("restore")
	var res *haproxy.Result
	_, err := m.locked(ctx, o, func(*state.TunnelSet) (*Outcome, error) {
		o.to(StageActivating)
		var err error
		res, err = m.activator.Restore(ctx, version)
		m.metrics.RecordActivation(resultLabel(err), clock.Now())
		return nil, err
	})
	details := map[string]any{"version": version}
	if err == nil {
		details["hash"] = res.Hash
	}
	m.record(ctx, o, "haproxy", details, err)
	return res, m.finish(o, err)
}

// mutate runs the full locked pipeline for one edit. validate must not
// change set; apply performs the mutation.
func (m *Manager) mutate(ctx context.Context, name string,
	validate func(*state.TunnelSet) error,
	apply func(*state.TunnelSet) (*Outcome, error),
) (*Outcome, error) {
	o := m.begin(name)
	out, err := m.locked(ctx, o, func(set *state.TunnelSet) (*Outcome, error) {
		o.to(StageValidating)
		if err := validate(set); err != nil {
			return nil, err
		}

		o.to(StageMutating)
		out, err := apply(set)
		if err != nil {
			return nil, err
		}

		o.to(StagePersisting)
		if err := m.store.Save(ctx, set); err != nil {
			return nil, err
		}

		res, err := m.activate(ctx, o, set)
		if err != nil {
			return nil, err
		}
		out.Activation = res
		return out, nil
	})
	details := map[string]any{}
	if err == nil {
		details["hash"] = out.Activation.Hash
		if out.Index >= 0 {
			details["index"] = out.Index
			details["id"] = out.Tunnel.ID
			details["backend_ip"] = out.Tunnel.AddressCSV()
			details["ports"] = out.Tunnel.PortCSV()
			details["mode"] = string(out.Tunnel.Mode)
		}
	}
	m.record(ctx, o, "tunnel", details, err)
	return out, m.finish(o, err)
}

// record writes the audit log line for a successful change and journals
// every attempt, failed ones included.
func (m *Manager) record(ctx context.Context, o *op, resource string, details map[string]any, err error) {
	if err == nil {
		logging.Default().Audit(o.name, resource, details)
	}
	if m.journal == nil {
		return
	}
	e := history.Entry{
		Action:   o.name,
		Resource: resource,
		Result:   history.ResultOK,
		Details:  details,
	}
	if err != nil {
		e.Result = history.ResultFailed
		e.Stage = string(o.stage)
		e.Error = err.Error()
	}
	if jerr := m.journal.Record(ctx, e); jerr != nil {
		m.logger.Warn("history record failed", "op", o.name, "error", jerr)
	}
}

// locked takes the store lock, loads fresh state and runs fn.
func (m *Manager) locked(ctx context.Context, o *op, fn func(*state.TunnelSet) (*Outcome, error)) (*Outcome, error) {
	o.to(StageLoading)
	unlock, err := m.store.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	defer unlock()

	set, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return fn(set)
}

func (m *Manager) activate(ctx context.Context, o *op, set *state.TunnelSet) (*haproxy.Result, error) {
	o.to(StageRendering)
	doc, err := haproxy.Render(set, m.render)
	if err != nil {
		return nil, err
	}
	m.metrics.SetState(set.Len(), len(doc.Listeners), set.HealthCheck.Port)

	o.to(StageActivating)
	res, err := m.activator.Activate(ctx, doc)
	m.metrics.RecordActivation(resultLabel(err), clock.Now())
	return res, err
}

// buildTunnel validates in, taking blank fields from base.
func buildTunnel(in Input, base state.Tunnel) (state.Tunnel, error) {
	t := base
	if s := strings.TrimSpace(in.Addresses); s != "" || base.Addresses == nil {
		addrs, err := validation.ParseAddresses(s)
		if err != nil {
			return t, err
		}
		t.Addresses = addrs
	}
	if s := strings.TrimSpace(in.Ports); s != "" || base.Ports == nil {
		ports, err := validation.ParsePorts(s)
		if err != nil {
			return t, err
		}
		t.Ports = ports
	}
	if s := strings.TrimSpace(in.Mode); s != "" {
		mode, err := validation.ParseMode(s)
		if err != nil {
			return t, err
		}
		t.Mode = state.Mode(mode)
	}
	return t, nil
}

func validateBot(token, adminID string) error {
	if token == "" && adminID == "" {
		return nil
	}
	if token == "" || !strings.Contains(token, ":") {
		return &validation.ValidationError{Field: "token", Value: token, Reason: "expected <bot id>:<secret>"}
	}
	if _, err := strconv.ParseInt(adminID, 10, 64); err != nil {
		return &validation.ValidationError{Field: "admin_id", Value: adminID, Reason: "expected a numeric chat id"}
	}
	return nil
}
