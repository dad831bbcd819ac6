// Package validation checks operator-supplied tunnel fields before they reach
// the tunnel store. Nothing here has side effects.
package validation

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// HealthCheckDisabled is the sentinel that turns health checking off.
const HealthCheckDisabled = "none"

// Modes lists the accepted proxy modes, default first.
var Modes = []string{"tcp", "http"}

// ValidationError reports a rejected field together with the offending value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func invalid(field, value, format string, args ...any) error {
	return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

func splitCSV(csv string) []string {
	parts := strings.Split(csv, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// ValidateAddresses checks a comma separated list of IPv4/IPv6 literals.
// IPv6 literals may optionally be bracketed. Hostnames, CIDRs and zoned
// addresses are rejected.
func ValidateAddresses(csv string) error {
	_, err := ParseAddresses(csv)
	return err
}

// ParseAddresses validates csv and returns the addresses in input order,
// trimmed and with any IPv6 brackets removed.
func ParseAddresses(csv string) ([]string, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, invalid("address", csv, "at least one address is required")
	}

	var out []string
	for _, tok := range splitCSV(csv) {
		addr, err := parseAddress(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseAddress(tok string) (string, error) {
	if tok == "" {
		return "", invalid("address", tok, "empty entry")
	}

	bare := tok
	bracketed := strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]")
	if bracketed {
		bare = tok[1 : len(tok)-1]
	}

	// net.ParseIP rejects zones, CIDRs and IPv4 octets with leading zeros;
	// haproxy's inet_pton rejects the last as well
	ip := net.ParseIP(bare)
	if ip == nil {
		return "", invalid("address", tok, "not an IPv4 or IPv6 literal")
	}
	isV6 := strings.Contains(bare, ":")
	if bracketed && !isV6 {
		return "", invalid("address", tok, "brackets are only valid around IPv6")
	}
	return bare, nil
}

// ValidatePorts checks a comma separated list of ports in [1,65535].
// Every token must be digits only, so whitespace inside the list is
// rejected. Leading zeros and duplicates are accepted.
func ValidatePorts(csv string) error {
	_, err := ParsePorts(csv)
	return err
}

// ParsePorts validates csv and returns the ports in input order.
func ParsePorts(csv string) ([]int, error) {
	if csv == "" {
		return nil, invalid("port", csv, "at least one port is required")
	}

	var out []int
	for _, tok := range strings.Split(csv, ",") {
		p, err := parsePort(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePort(tok string) (int, error) {
	if tok == "" {
		return 0, invalid("port", tok, "empty entry")
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, invalid("port", tok, "must be digits only")
		}
	}
	p, err := strconv.Atoi(tok)
	if err != nil || p < 1 || p > 65535 {
		return 0, invalid("port", tok, "must be between 1 and 65535")
	}
	return p, nil
}

// ValidatePortNumber validates a single numeric port.
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return invalid("port", strconv.Itoa(port), "must be between 1 and 65535")
	}
	return nil
}

// ValidateMode checks s case-insensitively against Modes.
func ValidateMode(s string) error {
	_, err := ParseMode(s)
	return err
}

// ParseMode returns the canonical lower-case mode. A blank value yields "tcp".
func ParseMode(s string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(s))
	if m == "" {
		return Modes[0], nil
	}
	for _, valid := range Modes {
		if m == valid {
			return m, nil
		}
	}
	return "", invalid("mode", s, "must be one of %s", strings.Join(Modes, ", "))
}

// ValidateHealthCheckPort accepts the case-sensitive sentinel "none" or a
// single valid port.
func ValidateHealthCheckPort(s string) error {
	_, err := ParseHealthCheckPort(s)
	return err
}

// ParseHealthCheckPort returns 0 for "none", otherwise the port.
func ParseHealthCheckPort(s string) (int, error) {
	if s == HealthCheckDisabled {
		return 0, nil
	}
	if strings.Contains(s, ",") {
		return 0, invalid("health check port", s, "exactly one port expected")
	}
	p, err := parsePort(s)
	if err != nil {
		return 0, invalid("health check port", s, "must be %q or a port between 1 and 65535", HealthCheckDisabled)
	}
	return p, nil
}
