//go:build !linux

package health

import "errors"

// ProcScanner is unsupported off Linux; the scanner always fails.
func ProcScanner(string) Scanner {
	return func() (map[Listener]Owner, error) {
		return nil, errors.New("listener scan requires procfs")
	}
}
