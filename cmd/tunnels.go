package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"

	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/tui"
	"grimm.is/portgate/internal/tunnels"
)

// TunnelRecord is the machine-readable form of one tunnel.
type TunnelRecord struct {
	Index     int    `json:"index" yaml:"index"`
	ID        string `json:"id" yaml:"id"`
	BackendIP string `json:"backend_ip" yaml:"backend_ip"`
	Ports     string `json:"ports" yaml:"ports"`
	Mode      string `json:"mode" yaml:"mode"`
}

// ListRecord is the machine-readable output of list.
type ListRecord struct {
	HealthCheckPort string         `json:"health_check_port" yaml:"health_check_port"`
	Tunnels         []TunnelRecord `json:"tunnels" yaml:"tunnels"`
}

// NewListRecord converts a tunnel set for output.
func NewListRecord(set *state.TunnelSet) ListRecord {
	rec := ListRecord{
		HealthCheckPort: set.HealthCheck.String(),
		Tunnels:         make([]TunnelRecord, 0, set.Len()),
	}
	for i, t := range set.Tunnels {
		rec.Tunnels = append(rec.Tunnels, TunnelRecord{
			Index:     i,
			ID:        t.ID,
			BackendIP: t.AddressCSV(),
			Ports:     t.PortCSV(),
			Mode:      string(t.Mode),
		})
	}
	return rec
}

// RunList prints tunnels as a table, JSON or YAML.
func RunList(configFile, format string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		set, err := env.Manager.List(ctx)
		if err != nil {
			return err
		}
		switch format {
		case "json":
			return writeJSON(NewListRecord(set))
		case "yaml":
			return writeYAML(NewListRecord(set))
		default:
			Printer.Fprintln(Stdout, tui.TunnelTable(set))
			Printer.Fprintln(Stdout, tui.HealthCheckLine(set.HealthCheck))
			return nil
		}
	})
}

// RunAdd adds a tunnel and activates the result.
func RunAdd(configFile string, in tunnels.Input) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		out, err := env.Manager.Add(ctx, in)
		if err != nil {
			return err
		}
		Printer.Fprintf(Stdout, "Tunnel %d added (id %s)\n", out.Index, out.Tunnel.ID)
		printActivation(out)
		return nil
	})
}

// RunEdit edits a tunnel by display index or id.
func RunEdit(configFile, ref string, in tunnels.Input) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		out, err := env.Manager.Edit(ctx, ref, in)
		if err != nil {
			return err
		}
		Printer.Fprintf(Stdout, "Tunnel %d updated: %s -> %s (%s)\n",
			out.Index, out.Tunnel.PortCSV(), out.Tunnel.AddressCSV(), out.Tunnel.Mode)
		printActivation(out)
		return nil
	})
}

// RunDelete deletes a tunnel by display index or id.
func RunDelete(configFile, ref string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		out, err := env.Manager.Delete(ctx, ref)
		if err != nil {
			return err
		}
		Printer.Fprintf(Stdout, "Tunnel %d deleted (id %s)\n", out.Index, out.Tunnel.ID)
		printActivation(out)
		return nil
	})
}

// RunHealthCheck sets the global health-check port.
func RunHealthCheck(configFile, value string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		out, err := env.Manager.SetHealthCheckPort(ctx, value)
		if err != nil {
			return err
		}
		Printer.Fprintf(Stdout, "Health check port set to %s\n", value)
		printActivation(out)
		return nil
	})
}

// RunApply re-renders and re-activates the stored state.
func RunApply(configFile string) error {
	return withEnv(configFile, func(ctx context.Context, env *Env) error {
		out, err := env.Manager.Apply(ctx)
		if err != nil {
			return err
		}
		printActivation(out)
		return nil
	})
}

func printActivation(out *tunnels.Outcome) {
	if out == nil || out.Activation == nil {
		return
	}
	res := out.Activation
	Printer.Fprintf(Stdout, "Configuration %s activated (%d listeners", res.Hash, res.Listeners)
	if res.BackupVersion > 0 {
		Printer.Fprintf(Stdout, ", previous saved as backup %d", res.BackupVersion)
	}
	Printer.Fprintf(Stdout, ")\n")
}

func writeJSON(v any) error {
	enc := json.NewEncoder(Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_, err = Stdout.Write(data)
	return err
}
