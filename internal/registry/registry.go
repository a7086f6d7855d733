package registry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cornelgit/415-ASG3/internal/protocol"
)

// Config holds the reservation pool settings
type Config struct {
	StartPort        uint16
	EndPort          uint16
	KeepAliveTimeout time.Duration
}

// Observer is notified about reservation state changes.
// Calls are made while the registry lock is held and must not call back into the registry.
type Observer interface {
	PortReserved(port uint16)
	PortReleased(port uint16, expired bool)
}

// Option configures a Registry
type Option func(*Registry)

// WithClock replaces the wall clock used for renewals and expiry
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger for reservation events
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithObserver registers an observer for reservation events
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// slot is one reservable port
type slot struct {
	port        uint16
	available   bool
	owner       string
	lastRenewed time.Time
}

func (s *slot) reserve(owner string, now time.Time) {
	s.available = false
	s.owner = owner
	s.lastRenewed = now
}

func (s *slot) release() {
	s.available = true
	s.owner = ""
	s.lastRenewed = time.Time{}
}

func (s *slot) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.lastRenewed) > timeout
}

// Registry owns the port table and applies the reservation policy
type Registry struct {
	config   Config
	slots    []slot // ascending port order
	stopped  bool
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
	mu       sync.Mutex
}

// SlotInfo is a read-only view of one slot
type SlotInfo struct {
	Port        uint16    `json:"port"`
	Available   bool      `json:"available"`
	Owner       string    `json:"owner,omitempty"`
	LastRenewed time.Time `json:"last_renewed,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Stats summarizes table occupancy
type Stats struct {
	TotalPorts     int  `json:"total_ports"`
	ReservedPorts  int  `json:"reserved_ports"`
	AvailablePorts int  `json:"available_ports"`
	Stopped        bool `json:"stopped"`
}

// New creates a registry with one available slot per port in [StartPort, EndPort]
func New(cfg Config, opts ...Option) (*Registry, error) {
	if cfg.StartPort > cfg.EndPort {
		return nil, fmt.Errorf("invalid port range: start %d is greater than end %d", cfg.StartPort, cfg.EndPort)
	}
	if cfg.KeepAliveTimeout <= 0 {
		return nil, fmt.Errorf("keep-alive timeout must be positive, got %s", cfg.KeepAliveTimeout)
	}

	numPorts := int(cfg.EndPort) - int(cfg.StartPort) + 1
	r := &Registry{
		config: cfg,
		slots:  make([]slot, numPorts),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for i := range r.slots {
		r.slots[i] = slot{port: cfg.StartPort + uint16(i), available: true}
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// HandleMessage applies one request to the table and returns its response.
// It returns nil for message types that are not requests.
func (r *Registry) HandleMessage(msg *protocol.Message) *protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Type {
	case protocol.RequestPort:
		r.expirePorts()
		return r.requestPort(msg.ServiceName)
	case protocol.KeepAlive:
		return r.keepAlive(msg)
	case protocol.ClosePort:
		return r.closePort(msg)
	case protocol.LookupPort:
		return r.lookupPort(msg)
	case protocol.Stop:
		r.stopped = true
		r.logger.Info("Registry stopped by client request")
		return protocol.NewResponse("", 0, protocol.StatusSuccess)
	default:
		return nil
	}
}

// Stopped reports whether a STOP request has been handled
func (r *Registry) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Config returns the registry configuration
func (r *Registry) Config() Config {
	return r.config
}

// Snapshot returns the state of every slot in ascending port order
func (r *Registry) Snapshot() []SlotInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SlotInfo, len(r.slots))
	for i, s := range r.slots {
		infos[i] = SlotInfo{Port: s.port, Available: s.available}
		if !s.available {
			infos[i].Owner = s.owner
			infos[i].LastRenewed = s.lastRenewed
			infos[i].ExpiresAt = s.lastRenewed.Add(r.config.KeepAliveTimeout)
		}
	}
	return infos
}

// Stats returns current table occupancy
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{TotalPorts: len(r.slots), Stopped: r.stopped}
	for _, s := range r.slots {
		if !s.available {
			stats.ReservedPorts++
		}
	}
	stats.AvailablePorts = stats.TotalPorts - stats.ReservedPorts
	return stats
}

func (r *Registry) requestPort(serviceName string) *protocol.Message {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.available {
			continue
		}

		s.reserve(serviceName, r.now())
		if r.observer != nil {
			r.observer.PortReserved(s.port)
		}
		r.logger.Debug("Port reserved",
			slog.String("service", serviceName),
			slog.Int("port", int(s.port)),
		)
		return protocol.NewResponse(serviceName, s.port, protocol.StatusSuccess)
	}

	r.logger.Warn("All ports busy", slog.String("service", serviceName))
	return protocol.NewResponse(serviceName, 0, protocol.StatusAllPortsBusy)
}

func (r *Registry) keepAlive(msg *protocol.Message) *protocol.Message {
	s := r.findByPort(msg.Port)
	if s == nil || s.available {
		return protocol.NewResponse(msg.ServiceName, msg.Port, protocol.StatusServiceNotFound)
	}

	s.lastRenewed = r.now()
	return protocol.NewResponse(msg.ServiceName, msg.Port, protocol.StatusSuccess)
}

func (r *Registry) closePort(msg *protocol.Message) *protocol.Message {
	s := r.findByPort(msg.Port)
	if s == nil || s.available {
		return protocol.NewResponse(msg.ServiceName, msg.Port, protocol.StatusServiceNotFound)
	}

	r.logger.Debug("Port closed",
		slog.String("service", s.owner),
		slog.Int("port", int(s.port)),
	)
	s.release()
	if r.observer != nil {
		r.observer.PortReleased(s.port, false)
	}
	return protocol.NewResponse(msg.ServiceName, msg.Port, protocol.StatusSuccess)
}

func (r *Registry) lookupPort(msg *protocol.Message) *protocol.Message {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.available && s.owner == msg.ServiceName {
			return protocol.NewResponse(msg.ServiceName, s.port, protocol.StatusSuccess)
		}
	}
	return protocol.NewResponse(msg.ServiceName, msg.Port, protocol.StatusServiceNotFound)
}

// findByPort returns the slot for port, or nil when it is outside the pool
func (r *Registry) findByPort(port uint16) *slot {
	if port < r.config.StartPort || port > r.config.EndPort {
		return nil
	}
	return &r.slots[port-r.config.StartPort]
}

// expirePorts releases every reservation not renewed within the keep-alive timeout
func (r *Registry) expirePorts() {
	now := r.now()
	for i := range r.slots {
		s := &r.slots[i]
		if s.available || !s.expired(now, r.config.KeepAliveTimeout) {
			continue
		}

		r.logger.Info("Reservation expired",
			slog.String("service", s.owner),
			slog.Int("port", int(s.port)),
			slog.Duration("idle", now.Sub(s.lastRenewed)),
		)
		s.release()
		if r.observer != nil {
			r.observer.PortReleased(s.port, true)
		}
	}
}
