package haproxy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"grimm.is/portgate/internal/state"
)

// BlackholeBackend is the name of the trailing discard backend.
const BlackholeBackend = "blackhole"

// RenderOptions holds the static preamble values.
type RenderOptions struct {
	MaxConn        int
	User           string
	Group          string
	Chroot         string
	StatsSocket    string
	TimeoutConnect time.Duration
	TimeoutClient  time.Duration
	TimeoutServer  time.Duration
}

// DefaultRenderOptions returns the stock preamble.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		MaxConn:        4096,
		User:           "haproxy",
		Group:          "haproxy",
		Chroot:         "/var/lib/haproxy",
		StatsSocket:    "/run/haproxy/admin.sock",
		TimeoutConnect: 5 * time.Second,
		TimeoutClient:  50 * time.Second,
		TimeoutServer:  50 * time.Second,
	}
}

// Document is a rendered haproxy.cfg.
type Document struct {
	Text      string
	Listeners []string
}

// Hash returns the first 12 hex chars of the document's SHA-256.
func (d Document) Hash() string {
	sum := sha256.Sum256([]byte(d.Text))
	return hex.EncodeToString(sum[:])[:12]
}

// ListenerName returns the section name for one (tunnel, port) pair. It is
// derived from the stable tunnel id, so deleting or reordering other
// tunnels never renames it.
func ListenerName(t state.Tunnel, port int) string {
	id := strings.ReplaceAll(t.ID, "-", "")
	if id == "" || !nameRegex.MatchString(id) {
		id = "anon"
	}
	return fmt.Sprintf("tunnel_%s_%d", id, port)
}

// ServerAddress joins addr and port, bracketing bare IPv6 literals.
func ServerAddress(addr string, port int) string {
	if strings.Contains(addr, ":") && !strings.HasPrefix(addr, "[") {
		addr = "[" + addr + "]"
	}
	return addr + ":" + strconv.Itoa(port)
}

// Render builds the complete configuration for set.
func Render(set *state.TunnelSet, opts RenderOptions) (Document, error) {
	b := NewConfigBuilder()
	b.AddComment("Generated by portgate. Manual edits are overwritten on the next apply.")

	writeGlobal(b, opts)
	writeDefaults(b, opts)

	doc := Document{}
	seen := make(map[string]int)
	for idx, t := range set.Tunnels {
		for _, port := range t.Ports {
			name := ListenerName(t, port)
			if prev, dup := seen[name]; dup {
				return Document{}, fmt.Errorf("tunnel %d repeats port %d already rendered by tunnel %d", idx, port, prev)
			}
			seen[name] = idx
			if err := writeListener(b, idx, t, port, set.HealthCheck); err != nil {
				return Document{}, err
			}
			doc.Listeners = append(doc.Listeners, name)
		}
	}

	writeBlackhole(b)
	doc.Text = b.Build()
	return doc, nil
}

func writeGlobal(b *ConfigBuilder, opts RenderOptions) {
	_ = b.AddSection("global", "")
	b.AddDirective("log /dev/log local0")
	b.AddDirective("log /dev/log local1 notice")
	if opts.Chroot != "" {
		b.AddDirective("chroot %s", opts.Chroot)
	}
	if opts.StatsSocket != "" {
		b.AddDirective("stats socket %s mode 660 level admin", opts.StatsSocket)
		b.AddDirective("stats timeout 30s")
	}
	if opts.MaxConn > 0 {
		b.AddDirective("maxconn %d", opts.MaxConn)
	}
	b.AddDirective("user %s", opts.User)
	b.AddDirective("group %s", opts.Group)
	b.AddDirective("daemon")
}

func writeDefaults(b *ConfigBuilder, opts RenderOptions) {
	_ = b.AddSection("defaults", "")
	b.AddDirective("log global")
	b.AddDirective("option dontlognull")
	b.AddDirective("timeout connect %s", formatTimeout(opts.TimeoutConnect))
	b.AddDirective("timeout client %s", formatTimeout(opts.TimeoutClient))
	b.AddDirective("timeout server %s", formatTimeout(opts.TimeoutServer))
}

func writeListener(b *ConfigBuilder, idx int, t state.Tunnel, port int, hc state.HealthCheck) error {
	mode := t.Mode
	if mode == "" {
		mode = state.ModeTCP
	}

	if err := b.AddSection("listen", ListenerName(t, port)); err != nil {
		return err
	}
	b.AddDirective("# tunnel %d (%s) port %d", idx, t.ShortID(), port)
	b.AddDirective("bind *:%d", port)
	b.AddDirective("mode %s", mode)
	if mode == state.ModeHTTP {
		b.AddDirective("option httplog")
	} else {
		b.AddDirective("option tcplog")
	}
	b.AddDirective("option dontlognull")

	if len(t.Addresses) > 1 {
		b.AddDirective("balance roundrobin")
	}

	check := "check"
	if hc.Enabled() {
		switch mode {
		case state.ModeHTTP:
			b.AddDirective("option httpchk GET /")
			b.AddDirective("http-check expect status 200")
			check = fmt.Sprintf("check port %d", hc.Port)
		default:
			b.AddDirective("option tcp-check")
			b.AddDirective("tcp-check connect port %d", hc.Port)
		}
	}

	for k, addr := range t.Addresses {
		b.AddDirective("server srv%d %s %s", k+1, ServerAddress(addr, port), check)
	}
	return nil
}

func writeBlackhole(b *ConfigBuilder) {
	_ = b.AddSection("backend", BlackholeBackend)
	b.AddDirective("# unmatched traffic terminates here; no servers")
	b.AddDirective("mode tcp")
	b.AddDirective("tcp-request content reject")
}

func formatTimeout(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
