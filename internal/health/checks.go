package health

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// BinaryCheck verifies name is on PATH.
func BinaryCheck(name string) CheckFunc {
	return func(context.Context) Check {
		path, err := exec.LookPath(name)
		if err != nil {
			return unhealthy(fmt.Sprintf("%s not found in PATH", name))
		}
		return healthy(path)
	}
}

// ServiceCheck reports the proxy unit state. active returns whether the
// unit runs and its systemd state string.
func ServiceCheck(active func(ctx context.Context) (bool, string)) CheckFunc {
	return func(ctx context.Context) Check {
		ok, state := active(ctx)
		if state == "" {
			state = "unknown"
		}
		if !ok {
			return unhealthy("service is " + state)
		}
		return healthy("service is " + state)
	}
}

// ErrorCheck is unhealthy when fn fails.
func ErrorCheck(okMessage string, fn func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		if err := fn(ctx); err != nil {
			return unhealthy(err.Error())
		}
		return healthy(okMessage)
	}
}

// SyncCheck is degraded when the live configuration differs from what the
// stored state renders to.
func SyncCheck(inSync func(ctx context.Context) (bool, error)) CheckFunc {
	return func(ctx context.Context) Check {
		ok, err := inSync(ctx)
		switch {
		case err != nil:
			return unhealthy(err.Error())
		case !ok:
			return degraded("live configuration differs from stored tunnels; run apply")
		default:
			return healthy("live configuration matches stored tunnels")
		}
	}
}

// PortConflictCheck is degraded when a TCP port a tunnel needs is held by
// a process other than proxy. ports returns the ports in use by tunnels.
func PortConflictCheck(proxy string, ports func(ctx context.Context) ([]int, error), scan Scanner) CheckFunc {
	return func(ctx context.Context) Check {
		wanted, err := ports(ctx)
		if err != nil {
			return unhealthy(err.Error())
		}
		owners, err := scan()
		if err != nil {
			return degraded(fmt.Sprintf("cannot scan listeners: %v", err))
		}

		var conflicts []string
		for _, p := range wanted {
			owner, ok := owners[Listener{Proto: "tcp", Port: p}]
			if !ok || owner.Command == proxy {
				continue
			}
			conflicts = append(conflicts, fmt.Sprintf("%d/tcp held by %s (pid %d)", p, owner.Command, owner.PID))
		}
		if len(conflicts) > 0 {
			sort.Strings(conflicts)
			return degraded(strings.Join(conflicts, "; "))
		}
		return healthy(fmt.Sprintf("%d tunnel ports free or held by %s", len(wanted), proxy))
	}
}
