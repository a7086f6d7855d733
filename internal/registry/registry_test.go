package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornelgit/415-ASG3/internal/protocol"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingObserver struct {
	reserved []uint16
	released []uint16
	expired  []uint16
}

func (o *recordingObserver) PortReserved(port uint16) { o.reserved = append(o.reserved, port) }

func (o *recordingObserver) PortReleased(port uint16, expired bool) {
	if expired {
		o.expired = append(o.expired, port)
		return
	}
	o.released = append(o.released, port)
}

func newTestRegistry(t *testing.T, start, end uint16, opts ...Option) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	r, err := New(Config{StartPort: start, EndPort: end, KeepAliveTimeout: 10 * time.Second}, opts...)
	require.NoError(t, err)
	return r, clock
}

// send handles a request and returns the debug rendering of the response
func send(r *Registry, msgType protocol.MessageType, name string, port uint16) string {
	resp := r.HandleMessage(protocol.NewRequest(msgType, name, port))
	if resp == nil {
		return "<nil>"
	}
	return resp.String()
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{StartPort: 40100, EndPort: 40000, KeepAliveTimeout: time.Second})
	assert.ErrorContains(t, err, "invalid port range")

	_, err = New(Config{StartPort: 40000, EndPort: 40100})
	assert.ErrorContains(t, err, "keep-alive timeout must be positive")

	r, err := New(Config{StartPort: 5, EndPort: 5, KeepAliveTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalPorts: 1, AvailablePorts: 1}, r.Stats())
}

func TestRequestKeepAliveClose(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC1", 0))
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.KeepAlive, "SVC1", 40000))
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.ClosePort, "SVC1", 40000))
}

func TestRequestLookupClose(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC1", 0))
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.LookupPort, "SVC1", 0))
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.ClosePort, "SVC1", 40000))
	assert.Equal(t, "{RESPONSE, SVC1, 0, SERVICE_NOT_FOUND}", send(r, protocol.LookupPort, "SVC1", 0))
}

func TestDistinctLowestPorts(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC1", 0))
	assert.Equal(t, "{RESPONSE, SVC2, 40001, SUCCESS}", send(r, protocol.RequestPort, "SVC2", 0))
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.ClosePort, "SVC1", 40000))

	// The freed lower port is handed out before higher ones
	assert.Equal(t, "{RESPONSE, SVC3, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC3", 0))
	assert.Equal(t, "{RESPONSE, SVC4, 40002, SUCCESS}", send(r, protocol.RequestPort, "SVC4", 0))
}

func TestExpiredReservationIsReused(t *testing.T) {
	r, clock := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC1", 0))
	clock.Advance(15 * time.Second)
	assert.Equal(t, "{RESPONSE, SVC2, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC2", 0))
	assert.Equal(t, "{RESPONSE, SVC2, 40000, SUCCESS}", send(r, protocol.ClosePort, "SVC2", 40000))
}

func TestKeepAlivePreventsExpiry(t *testing.T) {
	r, clock := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC1", 0))
	clock.Advance(8 * time.Second)
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.KeepAlive, "SVC1", 40000))
	clock.Advance(8 * time.Second)
	assert.Equal(t, "{RESPONSE, SVC2, 40001, SUCCESS}", send(r, protocol.RequestPort, "SVC2", 0))
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.ClosePort, "SVC1", 40000))
	assert.Equal(t, "{RESPONSE, SVC2, 40001, SUCCESS}", send(r, protocol.ClosePort, "SVC2", 40001))
}

func TestExpiryBoundary(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		expected string
	}{
		{"just under timeout", 10*time.Second - time.Millisecond, "{RESPONSE, SVC2, 40001, SUCCESS}"},
		{"exactly timeout", 10 * time.Second, "{RESPONSE, SVC2, 40001, SUCCESS}"},
		{"just over timeout", 10*time.Second + time.Millisecond, "{RESPONSE, SVC2, 40000, SUCCESS}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, clock := newTestRegistry(t, 40000, 40100)
			send(r, protocol.RequestPort, "SVC1", 0)
			clock.Advance(tt.elapsed)
			assert.Equal(t, tt.expected, send(r, protocol.RequestPort, "SVC2", 0))
		})
	}
}

func TestKeepAliveDoesNotSweep(t *testing.T) {
	r, clock := newTestRegistry(t, 40000, 40100)

	send(r, protocol.RequestPort, "SVC1", 0)
	send(r, protocol.RequestPort, "SVC2", 0)
	clock.Advance(20 * time.Second)

	// SVC1's slot is stale but has not been swept yet, so renewal still succeeds
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.KeepAlive, "SVC1", 40000))
	assert.Equal(t, 2, r.Stats().ReservedPorts)

	// The next allocation sweeps SVC2 only
	assert.Equal(t, "{RESPONSE, SVC3, 40001, SUCCESS}", send(r, protocol.RequestPort, "SVC3", 0))
}

func TestKeepAliveAfterSweep(t *testing.T) {
	r, clock := newTestRegistry(t, 40000, 40001)

	send(r, protocol.RequestPort, "SVC1", 0)
	clock.Advance(11 * time.Second)
	send(r, protocol.RequestPort, "SVC2", 0) // sweeps SVC1, takes 40000

	assert.Equal(t, "{RESPONSE, SVC1, 40001, SERVICE_NOT_FOUND}", send(r, protocol.KeepAlive, "SVC1", 40001))
}

func TestAllPortsBusy(t *testing.T) {
	r, clock := newTestRegistry(t, 40000, 40002)

	for i, name := range []string{"A", "B", "C"} {
		resp := r.HandleMessage(protocol.NewRequest(protocol.RequestPort, name, 0))
		require.Equal(t, protocol.StatusSuccess, resp.Status)
		require.Equal(t, uint16(40000+i), resp.Port)
	}

	assert.Equal(t, "{RESPONSE, D, 0, ALL_PORTS_BUSY}", send(r, protocol.RequestPort, "D", 0))

	clock.Advance(5 * time.Second)
	send(r, protocol.KeepAlive, "B", 40001)
	clock.Advance(6 * time.Second)

	// A and C expired, B was renewed
	assert.Equal(t, "{RESPONSE, D, 40000, SUCCESS}", send(r, protocol.RequestPort, "D", 0))
	assert.Equal(t, "{RESPONSE, E, 40002, SUCCESS}", send(r, protocol.RequestPort, "E", 0))
	assert.Equal(t, "{RESPONSE, F, 0, ALL_PORTS_BUSY}", send(r, protocol.RequestPort, "F", 0))
}

func TestOutOfRangePorts(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)
	send(r, protocol.RequestPort, "SVC1", 0)

	for _, port := range []uint16{0, 1, 39999, 40101, 65535} {
		assert.Equal(t, protocol.StatusServiceNotFound,
			r.HandleMessage(protocol.NewRequest(protocol.KeepAlive, "SVC1", port)).Status, "keep-alive %d", port)
		assert.Equal(t, protocol.StatusServiceNotFound,
			r.HandleMessage(protocol.NewRequest(protocol.ClosePort, "SVC1", port)).Status, "close %d", port)
	}
}

func TestUnreservedPorts(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, SVC1, 40050, SERVICE_NOT_FOUND}", send(r, protocol.KeepAlive, "SVC1", 40050))
	assert.Equal(t, "{RESPONSE, SVC1, 40050, SERVICE_NOT_FOUND}", send(r, protocol.ClosePort, "SVC1", 40050))
}

func TestCloseTwice(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)
	send(r, protocol.RequestPort, "SVC1", 0)

	assert.Equal(t, "{RESPONSE, SVC1, 40000, SUCCESS}", send(r, protocol.ClosePort, "SVC1", 40000))
	assert.Equal(t, "{RESPONSE, SVC1, 40000, SERVICE_NOT_FOUND}", send(r, protocol.ClosePort, "SVC1", 40000))
}

func TestDuplicateServiceNames(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, SVC, 40000, SUCCESS}", send(r, protocol.RequestPort, "SVC", 0))
	assert.Equal(t, "{RESPONSE, SVC, 40001, SUCCESS}", send(r, protocol.RequestPort, "SVC", 0))
	assert.Equal(t, "{RESPONSE, SVC, 40000, SUCCESS}", send(r, protocol.LookupPort, "SVC", 0))

	send(r, protocol.ClosePort, "SVC", 40000)
	assert.Equal(t, "{RESPONSE, SVC, 40001, SUCCESS}", send(r, protocol.LookupPort, "SVC", 0))
}

func TestLookupEchoesRequestPort(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)

	assert.Equal(t, "{RESPONSE, nobody, 1234, SERVICE_NOT_FOUND}", send(r, protocol.LookupPort, "nobody", 1234))
}

func TestStop(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)
	send(r, protocol.RequestPort, "SVC1", 0)
	assert.False(t, r.Stopped())

	assert.Equal(t, "{RESPONSE, , 0, SUCCESS}", send(r, protocol.Stop, "anything", 40000))
	assert.True(t, r.Stopped())
	assert.True(t, r.Stats().Stopped)
}

func TestNonRequestTypesHaveNoResponse(t *testing.T) {
	r, _ := newTestRegistry(t, 40000, 40100)

	assert.Nil(t, r.HandleMessage(protocol.NewResponse("SVC1", 40000, protocol.StatusSuccess)))
	assert.Nil(t, r.HandleMessage(&protocol.Message{Type: protocol.MessageType(0x42)}))
	assert.Equal(t, 0, r.Stats().ReservedPorts)
}

func TestSnapshot(t *testing.T) {
	r, clock := newTestRegistry(t, 40000, 40002)
	reservedAt := clock.Now()
	send(r, protocol.RequestPort, "SVC1", 0)

	slots := r.Snapshot()
	require.Len(t, slots, 3)
	assert.Equal(t, SlotInfo{
		Port:        40000,
		Owner:       "SVC1",
		LastRenewed: reservedAt,
		ExpiresAt:   reservedAt.Add(10 * time.Second),
	}, slots[0])
	assert.Equal(t, SlotInfo{Port: 40001, Available: true}, slots[1])
	assert.Equal(t, SlotInfo{Port: 40002, Available: true}, slots[2])

	assert.Equal(t, Stats{TotalPorts: 3, ReservedPorts: 1, AvailablePorts: 2}, r.Stats())
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	r, clock := newTestRegistry(t, 40000, 40100, WithObserver(obs))

	send(r, protocol.RequestPort, "SVC1", 0)
	send(r, protocol.RequestPort, "SVC2", 0)
	send(r, protocol.ClosePort, "SVC2", 40001)
	clock.Advance(11 * time.Second)
	send(r, protocol.RequestPort, "SVC3", 0)

	assert.Equal(t, []uint16{40000, 40001, 40000}, obs.reserved)
	assert.Equal(t, []uint16{40001}, obs.released)
	assert.Equal(t, []uint16{40000}, obs.expired)
}

func TestIndependentRegistries(t *testing.T) {
	a, _ := newTestRegistry(t, 40000, 40100)
	b, _ := newTestRegistry(t, 40000, 40100)

	send(a, protocol.RequestPort, "SVC1", 0)
	assert.Equal(t, "{RESPONSE, SVC2, 40000, SUCCESS}", send(b, protocol.RequestPort, "SVC2", 0))
}
