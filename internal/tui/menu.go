package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/tunnels"
)

// Operations is what the menu drives; *tunnels.Manager implements it.
type Operations interface {
	List(ctx context.Context) (*state.TunnelSet, error)
	Add(ctx context.Context, in tunnels.Input) (*tunnels.Outcome, error)
	Edit(ctx context.Context, ref string, in tunnels.Input) (*tunnels.Outcome, error)
	Delete(ctx context.Context, ref string) (*tunnels.Outcome, error)
	SetHealthCheckPort(ctx context.Context, value string) (*tunnels.Outcome, error)
	Apply(ctx context.Context) (*tunnels.Outcome, error)
}

// TunnelForm collects add and edit input.
type TunnelForm struct {
	Addresses string `tui:"title=Backend addresses;desc=IPv4/IPv6, comma separated;placeholder=10.0.0.1,10.0.0.2;validate=addresses"`
	Ports     string `tui:"title=Ports;desc=comma separated, 1-65535;placeholder=80,443;validate=ports"`
	Mode      string `tui:"title=Mode;options=TCP:tcp,HTTP:http"`
}

// EditForm is TunnelForm with every field optional.
type EditForm struct {
	Addresses string `tui:"title=Backend addresses;desc=blank keeps current;validate=addresses_keep"`
	Ports     string `tui:"title=Ports;desc=blank keeps current;validate=ports_keep"`
	Mode      string `tui:"title=Mode;options=Keep:,TCP:tcp,HTTP:http"`
}

// HealthCheckForm collects the health-check port.
type HealthCheckForm struct {
	Port string `tui:"title=Health check port;desc=a port, or none to disable;placeholder=none;validate=healthcheck"`
}

const (
	actionList   = "list"
	actionAdd    = "add"
	actionEdit   = "edit"
	actionDelete = "delete"
	actionHealth = "health"
	actionApply  = "apply"
	actionQuit   = "quit"
)

// Menu is the interactive operator menu.
type Menu struct {
	ops Operations
	out io.Writer
}

// NewMenu creates a menu writing results to out.
func NewMenu(ops Operations, out io.Writer) *Menu {
	return &Menu{ops: ops, out: out}
}

// Run loops until the operator quits or aborts.
func (m *Menu) Run(ctx context.Context) error {
	fmt.Fprintln(m.out, StyleTitle.Render("portgate"))
	for {
		var action string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("What do you want to do?").
				Options(
					huh.NewOption("List tunnels", actionList),
					huh.NewOption("Add tunnel", actionAdd),
					huh.NewOption("Edit tunnel", actionEdit),
					huh.NewOption("Delete tunnel", actionDelete),
					huh.NewOption("Set health check port", actionHealth),
					huh.NewOption("Re-apply configuration", actionApply),
					huh.NewOption("Quit", actionQuit),
				).
				Value(&action),
		)).WithTheme(huh.ThemeBase16())

		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		if action == actionQuit {
			return nil
		}

		msg, err := m.Do(ctx, action)
		if errors.Is(err, huh.ErrUserAborted) {
			continue
		}
		if err != nil {
			fmt.Fprintln(m.out, StyleStatusBad.Render("✗ ")+err.Error())
			continue
		}
		if msg != "" {
			fmt.Fprintln(m.out, msg)
		}
	}
}

// Do runs one menu action, prompting for input as needed.
func (m *Menu) Do(ctx context.Context, action string) (string, error) {
	switch action {
	case actionList:
		set, err := m.ops.List(ctx)
		if err != nil {
			return "", err
		}
		return TunnelTable(set) + "\n" + HealthCheckLine(set.HealthCheck), nil

	case actionAdd:
		in := TunnelForm{Mode: "tcp"}
		if err := AutoForm(&in).RunWithContext(ctx); err != nil {
			return "", err
		}
		out, err := m.ops.Add(ctx, tunnels.Input{Addresses: in.Addresses, Ports: in.Ports, Mode: in.Mode})
		if err != nil {
			return "", err
		}
		return StyleStatusGood.Render("✓ ") + fmt.Sprintf("tunnel %d added", out.Index), nil

	case actionEdit:
		ref, err := m.pickTunnel(ctx, "Edit which tunnel?")
		if err != nil || ref == "" {
			return "", err
		}
		var in EditForm
		if err := AutoForm(&in).RunWithContext(ctx); err != nil {
			return "", err
		}
		out, err := m.ops.Edit(ctx, ref, tunnels.Input{Addresses: in.Addresses, Ports: in.Ports, Mode: in.Mode})
		if err != nil {
			return "", err
		}
		return StyleStatusGood.Render("✓ ") + fmt.Sprintf("tunnel %d updated", out.Index), nil

	case actionDelete:
		ref, err := m.pickTunnel(ctx, "Delete which tunnel?")
		if err != nil || ref == "" {
			return "", err
		}
		confirm := false
		err = huh.NewForm(huh.NewGroup(
			huh.NewConfirm().Title("Delete this tunnel?").Value(&confirm),
		)).WithTheme(huh.ThemeBase16()).RunWithContext(ctx)
		if err != nil {
			return "", err
		}
		if !confirm {
			return "", nil
		}
		out, err := m.ops.Delete(ctx, ref)
		if err != nil {
			return "", err
		}
		return StyleStatusGood.Render("✓ ") + fmt.Sprintf("tunnel %d deleted", out.Index), nil

	case actionHealth:
		var in HealthCheckForm
		if err := AutoForm(&in).RunWithContext(ctx); err != nil {
			return "", err
		}
		if _, err := m.ops.SetHealthCheckPort(ctx, in.Port); err != nil {
			return "", err
		}
		return StyleStatusGood.Render("✓ ") + "health check port set to " + in.Port, nil

	case actionApply:
		out, err := m.ops.Apply(ctx)
		if err != nil {
			return "", err
		}
		return StyleStatusGood.Render("✓ ") + "configuration applied " + out.Activation.Hash, nil
	}
	return "", fmt.Errorf("unknown action %q", action)
}

// pickTunnel asks for a tunnel and returns its stable id, or "" when there
// are none.
func (m *Menu) pickTunnel(ctx context.Context, title string) (string, error) {
	set, err := m.ops.List(ctx)
	if err != nil {
		return "", err
	}
	if set.Len() == 0 {
		fmt.Fprintln(m.out, StyleStatusWarn.Render("no tunnels configured"))
		return "", nil
	}

	opts := make([]huh.Option[string], 0, set.Len())
	for i, t := range set.Tunnels {
		label := fmt.Sprintf("%d  %s -> %s (%s)", i, t.PortCSV(), t.AddressCSV(), t.Mode)
		opts = append(opts, huh.NewOption(label, t.ID))
	}

	var ref string
	err = huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title(title).Options(opts...).Value(&ref),
	)).WithTheme(huh.ThemeBase16()).RunWithContext(ctx)
	return ref, err
}
