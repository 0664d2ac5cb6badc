package relay

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aura-meet/signaling/internal/meeting"
	"github.com/aura-meet/signaling/internal/registry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeConn is an in-memory transport. onClose lets monitor tests emulate the
// read pump running teardown after a force-close.
type fakeConn struct {
	mu          sync.Mutex
	sent        [][]byte
	open        bool
	pings       int
	failSends   bool
	closeReason string
	onClose     func(reason string)
}

func newFakeConn() *fakeConn { return &fakeConn{open: true} }

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSends {
		return errors.New("broken transport")
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeConn) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConn) CloseWithReason(reason string) {
	f.mu.Lock()
	f.open = false
	f.closeReason = reason
	onClose := f.onClose
	f.mu.Unlock()
	if onClose != nil {
		onClose(reason)
	}
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = string(m)
	}
	return out
}

func (f *fakeConn) countContaining(sub string) int {
	n := 0
	for _, m := range f.messages() {
		if strings.Contains(m, sub) {
			n++
		}
	}
	return n
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

// rig wires a real registry, directory, broadcaster, signaler, and router
// over fake connections.
type rig struct {
	clock  *fakeClock
	reg    *registry.Registry
	dir    *meeting.Directory
	bcast  *Broadcaster
	router *Router
}

func newRig(t *testing.T) *rig {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	reg := registry.NewWithClock(nil, clock)
	dir := meeting.NewDirectory(reg, nil)
	bcast := NewBroadcaster(reg, nil)
	sig := NewSignaler(bcast, nil)
	return &rig{
		clock:  clock,
		reg:    reg,
		dir:    dir,
		bcast:  bcast,
		router: NewRouter(reg, dir, bcast, sig, nil, clock, nil),
	}
}

// connect registers a fake connection claiming the given display name.
func (r *rig) connect(name string) *fakeConn {
	conn := newFakeConn()
	r.reg.Register(conn)
	r.reg.Rename(conn, name)
	return conn
}
