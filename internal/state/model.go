package state

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Mode is the proxy mode of a tunnel.
type Mode string

const (
	ModeTCP  Mode = "tcp"
	ModeHTTP Mode = "http"
)

// ErrOutOfRange is returned when a tunnel reference does not resolve.
var ErrOutOfRange = errors.New("tunnel not found")

// Tunnel is one forwarding rule: every port is forwarded to every backend
// address on the same port number.
type Tunnel struct {
	ID        string
	Addresses []string
	Ports     []int
	Mode      Mode
}

// ShortID returns the first eight characters of the tunnel id.
func (t Tunnel) ShortID() string {
	if len(t.ID) > 8 {
		return t.ID[:8]
	}
	return t.ID
}

// AddressCSV returns the backend addresses joined with commas.
func (t Tunnel) AddressCSV() string {
	return strings.Join(t.Addresses, ",")
}

// PortCSV returns the ports joined with commas.
func (t Tunnel) PortCSV() string {
	parts := make([]string, len(t.Ports))
	for i, p := range t.Ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func (t Tunnel) clone() Tunnel {
	t.Addresses = append([]string(nil), t.Addresses...)
	t.Ports = append([]int(nil), t.Ports...)
	return t
}

// HealthCheck is the global backend health-check policy. Port 0 means disabled.
type HealthCheck struct {
	Port int
}

// Enabled reports whether an explicit health-check port is configured.
func (h HealthCheck) Enabled() bool {
	return h.Port > 0
}

func (h HealthCheck) String() string {
	if !h.Enabled() {
		return "none"
	}
	return strconv.Itoa(h.Port)
}

// BotSettings holds the remote control surface credentials.
type BotSettings struct {
	Token   string
	AdminID string
}

// Configured reports whether both token and admin id are present.
func (b BotSettings) Configured() bool {
	return b.Token != "" && b.AdminID != ""
}

// TunnelSet is the persisted aggregate: ordered tunnels plus global settings.
// A tunnel's position in Tunnels is its display index.
type TunnelSet struct {
	Tunnels     []Tunnel
	HealthCheck HealthCheck
	Bot         BotSettings

	// set by loaders when a stored record had no id and one was generated
	generatedIDs bool
}

// HasGeneratedIDs reports whether loading assigned ids that are not yet persisted.
func (s *TunnelSet) HasGeneratedIDs() bool {
	return s.generatedIDs
}

// NewTunnelSet returns an empty set.
func NewTunnelSet() *TunnelSet {
	return &TunnelSet{}
}

// NewID returns a fresh stable tunnel id.
func NewID() string {
	return uuid.NewString()
}

// Len returns the number of tunnels.
func (s *TunnelSet) Len() int {
	return len(s.Tunnels)
}

// Get returns a copy of the tunnel at index i.
func (s *TunnelSet) Get(i int) (Tunnel, error) {
	if i < 0 || i >= len(s.Tunnels) {
		return Tunnel{}, fmt.Errorf("%w: index %d (have %d)", ErrOutOfRange, i, len(s.Tunnels))
	}
	return s.Tunnels[i].clone(), nil
}

// Append adds t at the end, assigning an id if it has none, and returns its index.
func (s *TunnelSet) Append(t Tunnel) int {
	if t.ID == "" {
		t.ID = NewID()
	}
	s.Tunnels = append(s.Tunnels, t.clone())
	return len(s.Tunnels) - 1
}

// Replace overwrites the tunnel at index i. The stored id is kept when t has none.
func (s *TunnelSet) Replace(i int, t Tunnel) error {
	if i < 0 || i >= len(s.Tunnels) {
		return fmt.Errorf("%w: index %d (have %d)", ErrOutOfRange, i, len(s.Tunnels))
	}
	if t.ID == "" {
		t.ID = s.Tunnels[i].ID
	}
	s.Tunnels[i] = t.clone()
	return nil
}

// Remove deletes the tunnel at index i; later tunnels shift down by one.
func (s *TunnelSet) Remove(i int) (Tunnel, error) {
	if i < 0 || i >= len(s.Tunnels) {
		return Tunnel{}, fmt.Errorf("%w: index %d (have %d)", ErrOutOfRange, i, len(s.Tunnels))
	}
	removed := s.Tunnels[i]
	s.Tunnels = append(s.Tunnels[:i], s.Tunnels[i+1:]...)
	return removed, nil
}

// Resolve maps a reference to an index. All-digit references are display
// indexes; anything else must match a tunnel id or a unique id prefix.
func (s *TunnelSet) Resolve(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return -1, fmt.Errorf("%w: empty reference", ErrOutOfRange)
	}

	if i, err := strconv.Atoi(ref); err == nil && isDigits(ref) {
		if i < 0 || i >= len(s.Tunnels) {
			return -1, fmt.Errorf("%w: index %d (have %d)", ErrOutOfRange, i, len(s.Tunnels))
		}
		return i, nil
	}

	match := -1
	for i, t := range s.Tunnels {
		if t.ID == ref {
			return i, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			if match >= 0 {
				return -1, fmt.Errorf("%w: id prefix %q is ambiguous", ErrOutOfRange, ref)
			}
			match = i
		}
	}
	if match < 0 {
		return -1, fmt.Errorf("%w: id %q", ErrOutOfRange, ref)
	}
	return match, nil
}

// Clone returns a deep copy of the set.
func (s *TunnelSet) Clone() *TunnelSet {
	out := &TunnelSet{
		HealthCheck: s.HealthCheck,
		Bot:         s.Bot,
		Tunnels:     make([]Tunnel, len(s.Tunnels)),
	}
	for i, t := range s.Tunnels {
		out.Tunnels[i] = t.clone()
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
