package tui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"grimm.is/portgate/internal/state"
)

// TunnelTable renders the tunnel set as a bordered table.
func TunnelTable(set *state.TunnelSet) string {
	rows := make([][]string, 0, set.Len())
	for i, t := range set.Tunnels {
		rows = append(rows, []string{
			strconv.Itoa(i),
			t.ShortID(),
			t.AddressCSV(),
			t.PortCSV(),
			string(t.Mode),
		})
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleBorder).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return StyleTableHeader
			case col == 0:
				return StyleTableIndex
			default:
				return StyleTableRow
			}
		}).
		Headers("#", "ID", "BACKENDS", "PORTS", "MODE").
		Rows(rows...)

	return tbl.String()
}

// HealthCheckLine renders the global health-check policy.
func HealthCheckLine(hc state.HealthCheck) string {
	if !hc.Enabled() {
		return StyleSubtitle.Render("health check: basic connectivity only")
	}
	return StyleSubtitle.Render("health check port: ") + StyleStatusGood.Render(strconv.Itoa(hc.Port))
}
