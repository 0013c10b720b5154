package testutil

import (
	"fmt"
	"net"
	"sync"
)

var (
	// recentPorts tracks recently allocated ports to prevent immediate reuse
	recentPorts   []int
	recentPortsMu sync.Mutex
)

// GetFreePort returns an available TCP port on localhost by binding to port 0
// and immediately releasing it. Recently returned ports are never handed out twice.
// Panics if unable to allocate a port.
func GetFreePort() int {
	const maxRetries = 100
	const maxTrackedPorts = 1000

	recentPortsMu.Lock()
	defer recentPortsMu.Unlock()

	for attempt := 0; attempt < maxRetries; attempt++ {
		listener, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			panic(fmt.Sprintf("failed to get free port: %v", err))
		}
		port := listener.Addr().(*net.TCPAddr).Port
		listener.Close()

		isRecent := false
		for _, recentPort := range recentPorts {
			if recentPort == port {
				isRecent = true
				break
			}
		}
		if isRecent {
			continue
		}

		recentPorts = append(recentPorts, port)
		if len(recentPorts) > maxTrackedPorts {
			recentPorts = recentPorts[1:]
		}
		return port
	}

	panic(fmt.Sprintf("failed to get unique free port after %d attempts", maxRetries))
}

// GetFreeAddress returns an available "localhost:port" address.
func GetFreeAddress() string {
	return fmt.Sprintf("localhost:%d", GetFreePort())
}

// UnreachableAddress returns a localhost address nothing listens on, so dialing it
// is refused immediately.
func UnreachableAddress() string {
	return GetFreeAddress()
}
