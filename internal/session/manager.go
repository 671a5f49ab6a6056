package session

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/p-arndt/leethack/internal/challenge"
	"github.com/p-arndt/leethack/internal/config"
	"github.com/p-arndt/leethack/internal/runtime"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultPollAttempts = 20
	defaultExecTimeout  = 30 * time.Second
	defaultStartupGrace = 3 * time.Second

	execUser = "root"
)

type Manager struct {
	cfg      *config.Config
	catalog  *challenge.Catalog
	registry *Registry
	runtime  runtime.Driver
	history  HistoryStore
	logger   *slog.Logger

	// provisioning goroutines
	tasks sync.WaitGroup

	now           func() time.Time
	pollInterval  time.Duration
	pollAttempts  int
	execTimeout   time.Duration
	startupGrace  time.Duration
	allocatePorts func(hostIP string) (PortPair, error)
}

// NewManager wires the session engine. history may be nil, in which case
// commands are not journaled.
func NewManager(cfg *config.Config, catalog *challenge.Catalog, registry *Registry, rt runtime.Driver, history HistoryStore, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:           cfg,
		catalog:       catalog,
		registry:      registry,
		runtime:       rt,
		history:       history,
		logger:        logger,
		now:           time.Now,
		pollInterval:  defaultPollInterval,
		pollAttempts:  defaultPollAttempts,
		execTimeout:   defaultExecTimeout,
		startupGrace:  defaultStartupGrace,
		allocatePorts: allocatePortPair,
	}
}

// Wait blocks until every in-flight provisioning task has settled.
func (m *Manager) Wait() {
	m.tasks.Wait()
}

// Challenges lists the catalog sessions can be created from.
func (m *Manager) Challenges() []challenge.Config {
	return m.catalog.List()
}

func containerName(sessionID string) string {
	return "leethack-vm-" + sessionID
}

// allocatePortPair probes two free host ports by binding and releasing them.
// Another process may grab a port before the container binds it.
func allocatePortPair(hostIP string) (PortPair, error) {
	var listeners []net.Listener
	defer func() {
		for _, l := range listeners {
			l.Close()
		}
	}()
	for i := 0; i < 2; i++ {
		l, err := net.Listen("tcp", net.JoinHostPort(hostIP, "0"))
		if err != nil {
			return PortPair{}, fmt.Errorf("allocate host port: %w", err)
		}
		listeners = append(listeners, l)
	}
	return PortPair{
		SSH: listeners[0].Addr().(*net.TCPAddr).Port,
		Web: listeners[1].Addr().(*net.TCPAddr).Port,
	}, nil
}
