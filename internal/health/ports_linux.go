//go:build linux

package health

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcScanner scans listening sockets under a procfs mounted at root
// (normally "/proc"). It walks every process's fd table the way ss does,
// so it needs root to see other users' sockets.
func ProcScanner(root string) Scanner {
	return func() (map[Listener]Owner, error) {
		inodes, err := socketOwners(root)
		if err != nil {
			return nil, err
		}

		owners := make(map[Listener]Owner)
		tables := []struct{ file, proto string }{
			{"tcp", "tcp"}, {"tcp6", "tcp"}, {"udp", "udp"}, {"udp6", "udp"},
		}
		for _, t := range tables {
			f, err := os.Open(filepath.Join(root, "net", t.file))
			if err != nil {
				continue
			}
			for _, s := range parseProcNet(f, t.proto) {
				if owner, ok := inodes[s.inode]; ok {
					owners[Listener{Proto: t.proto, Port: s.port}] = owner
				}
			}
			f.Close()
		}
		return owners, nil
	}
}

// socketOwners maps socket inodes to the process holding them.
func socketOwners(root string) (map[string]Owner, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	owners := make(map[string]Owner)
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		fdDir := filepath.Join(root, e.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		var cmd string
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			inode, ok := socketInode(link)
			if !ok {
				continue
			}
			if cmd == "" {
				cmd = command(root, pid)
			}
			owners[inode] = Owner{PID: pid, Command: cmd}
		}
	}
	return owners, nil
}

// command returns the base name of the process binary.
func command(root string, pid int) string {
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "cmdline"))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("pid %d", pid)
	}
	argv0, _, _ := strings.Cut(string(data), "\x00")
	return filepath.Base(argv0)
}
