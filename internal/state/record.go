package state

import (
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/validation"
)

// record is the serialized form of a tunnel shared by every backend.
type record struct {
	BackendIP string `json:"backend_ip"`
	Ports     string `json:"ports"`
	Mode      string `json:"mode"`
	ID        string `json:"id,omitempty"`
}

func toRecord(t Tunnel) record {
	mode := string(t.Mode)
	if mode == "" {
		mode = string(ModeTCP)
	}
	return record{
		BackendIP: t.AddressCSV(),
		Ports:     t.PortCSV(),
		Mode:      mode,
		ID:        t.ID,
	}
}

func (r record) tunnel() (Tunnel, error) {
	addrs, err := validation.ParseAddresses(r.BackendIP)
	if err != nil {
		return Tunnel{}, err
	}
	ports, err := validation.ParsePorts(r.Ports)
	if err != nil {
		return Tunnel{}, err
	}
	mode, err := validation.ParseMode(r.Mode)
	if err != nil {
		return Tunnel{}, err
	}

	id := r.ID
	if id == "" {
		id = NewID()
	}
	return Tunnel{ID: id, Addresses: addrs, Ports: ports, Mode: Mode(mode)}, nil
}

// parseHealthCheck reads the stored health-check port. An unreadable value
// loads as disabled so the set stays usable and the next save repairs it.
func parseHealthCheck(v string) HealthCheck {
	if v == "" {
		return HealthCheck{}
	}
	port, err := validation.ParseHealthCheckPort(v)
	if err != nil {
		logging.WithComponent("state").Warn("ignoring stored health-check port", "key", keyHealthCheckPort, "value", v, "error", err)
		return HealthCheck{}
	}
	return HealthCheck{Port: port}
}

func formatHealthCheck(h HealthCheck) string {
	if !h.Enabled() {
		return ""
	}
	return h.String()
}
