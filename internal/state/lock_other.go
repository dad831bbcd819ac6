//go:build !unix

package state

import (
	"context"
	"sync"
)

var processLock sync.Mutex

// lockFile falls back to an in-process mutex where flock is unavailable.
func lockFile(ctx context.Context, path string) (func(), error) {
	processLock.Lock()
	return processLock.Unlock, nil
}
