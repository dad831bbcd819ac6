package bot

import (
	"fmt"
	"strings"

	"golang.org/x/text/message"

	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/tunnels"
)

// FormatList renders tunnels one per line.
func FormatList(p *message.Printer, set *state.TunnelSet) string {
	var sb strings.Builder
	sb.WriteString(p.Sprintf("Health check port: %s", set.HealthCheck.String()))
	sb.WriteString("\n")
	if set.Len() == 0 {
		sb.WriteString(p.Sprintf("No tunnels configured."))
		return sb.String()
	}
	for i, t := range set.Tunnels {
		fmt.Fprintf(&sb, "%d [%s] %s -> %s (%s)\n", i, t.ShortID(), t.PortCSV(), t.AddressCSV(), t.Mode)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatStatus renders the service summary.
func FormatStatus(p *message.Printer, st *tunnels.Status) string {
	live := p.Sprintf("in sync")
	if !st.InSync {
		live = p.Sprintf("out of sync, run /apply")
	}
	return p.Sprintf("haproxy: %s\ntunnels: %d, listeners: %d\nhealth check: %s\nlive config: %s",
		st.Service.State, st.Tunnels, st.Listeners, st.HealthCheck, live)
}

// FormatLogs renders ring buffer entries oldest first.
func FormatLogs(entries []logging.Entry) string {
	if len(entries) == 0 {
		return "(no log entries)"
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s [%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Level, e.Source, e.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}
