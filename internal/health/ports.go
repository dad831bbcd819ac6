package health

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Listener is a bound protocol/port pair.
type Listener struct {
	Proto string
	Port  int
}

// Owner is the process holding a listener.
type Owner struct {
	PID     int
	Command string
}

// Scanner maps listening sockets to their owning processes.
type Scanner func() (map[Listener]Owner, error)

// tcpListen is the st column value of a listening TCP socket.
const tcpListen = "0A"

// procSocket is one row of /proc/net/{tcp,udp}[6].
type procSocket struct {
	port  int
	inode string
}

// parseProcNet reads a /proc/net socket table. For tcp only listening
// sockets are returned.
//
//	sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
//	 0: 00000000:0035 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 123456
func parseProcNet(r io.Reader, proto string) []procSocket {
	var sockets []procSocket
	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		if proto == "tcp" && fields[3] != tcpListen {
			continue
		}
		_, portHex, ok := strings.Cut(fields[1], ":")
		if !ok {
			continue
		}
		port, err := strconv.ParseInt(portHex, 16, 32)
		if err != nil {
			continue
		}
		sockets = append(sockets, procSocket{port: int(port), inode: fields[9]})
	}
	return sockets
}

// socketInode extracts the inode from an fd link target "socket:[123]".
func socketInode(link string) (string, bool) {
	if !strings.HasPrefix(link, "socket:[") || !strings.HasSuffix(link, "]") {
		return "", false
	}
	return link[len("socket:[") : len(link)-1], true
}
