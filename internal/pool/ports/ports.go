// Package ports implements the node agent's free-port FIFO (spec.md §4.1).
// Grounded on alexdev-tb-CodePortal/internal/executor/container_pool.go's
// buffered-channel-plus-mutex shape, generalized from a fixed name pool to
// a mutable, probe-gated port pool.
package ports

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

// ErrOutOfPorts is returned by NextFree when every configured port is
// either assigned or fails its liveness probe.
var ErrOutOfPorts = errors.New("ports: out of free ports")

// ProbeFunc reports whether a port is currently free to bind. Production
// code binds and immediately closes a listener; tests inject a stub.
type ProbeFunc func(port int) bool

// Allocator is a FIFO of free ports. A nil/empty configuration makes it an
// "unconfigured" allocator: NextFree always returns the sentinel port 0
// ("let the child choose") and Release is a no-op, matching spec.md §4.1.
type Allocator struct {
	mu        sync.Mutex
	queue     []int
	configured bool
	probe     ProbeFunc
}

// New builds an Allocator over the given port list. An empty list produces
// an unconfigured allocator.
func New(portList []int, probe ProbeFunc) *Allocator {
	if probe == nil {
		probe = func(port int) bool {
			ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
			if err != nil {
				return false
			}
			ln.Close()
			return true
		}
	}
	a := &Allocator{probe: probe}
	if len(portList) > 0 {
		a.configured = true
		a.queue = append([]int(nil), portList...)
	}
	return a
}

// NextFree rotates the queue at most current_size times, returning the
// first port whose probe passes. Failing probes are re-enqueued at the
// back so a transiently busy port can be retried later.
func (a *Allocator) NextFree() (types.Port, error) {
	if a == nil || !a.configured {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	size := len(a.queue)
	for i := 0; i < size; i++ {
		port := a.queue[0]
		a.queue = a.queue[1:]
		if a.probe(port) {
			return types.Port(port), nil
		}
		a.queue = append(a.queue, port)
	}
	return 0, ErrOutOfPorts
}

// Release returns a port to the back of the FIFO. No-op for an
// unconfigured allocator or the sentinel port 0.
func (a *Allocator) Release(port types.Port) {
	if a == nil || !a.configured || port == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, int(port))
}

// Snapshot returns the currently free ports, for the /debug/pool dump.
func (a *Allocator) Snapshot() []int {
	if a == nil || !a.configured {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.queue...)
}

// String renders a compact summary used by the debug dump.
func (a *Allocator) String() string {
	if a == nil || !a.configured {
		return "unconfigured (child chooses)"
	}
	ports := a.Snapshot()
	strs := make([]string, len(ports))
	for i, p := range ports {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, ",")
}
