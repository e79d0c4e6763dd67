package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
)

// Pinger checks reachability of the remote.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ProberConfig holds prober configuration.
type ProberConfig struct {
	Interval time.Duration // How often to probe (default: 15 seconds)
	Timeout  time.Duration // Per-probe timeout (default: 5 seconds)
	Logger   *logging.Logger
}

// DefaultProberConfig returns default prober configuration.
func DefaultProberConfig() *ProberConfig {
	return &ProberConfig{
		Interval: 15 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Prober is an Observer driven by periodic health probes. It starts offline
// and goes online after the first successful probe.
type Prober struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger
	b        *broadcaster

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

var _ Observer = (*Prober)(nil)

// NewProber creates a Prober. A nil config uses DefaultProberConfig.
func NewProber(pinger Pinger, config *ProberConfig) *Prober {
	defaults := DefaultProberConfig()
	if config == nil {
		config = defaults
	}
	p := &Prober{
		pinger:   pinger,
		interval: config.Interval,
		timeout:  config.Timeout,
		logger:   config.Logger,
		b:        newBroadcaster(false),
	}
	if p.interval <= 0 {
		p.interval = defaults.Interval
	}
	if p.timeout <= 0 {
		p.timeout = defaults.Timeout
	}
	if p.logger == nil {
		p.logger = logging.Get()
	}
	p.logger = p.logger.With(map[string]interface{}{"component": "connectivity"})
	return p
}

// Online implements Observer.
func (p *Prober) Online() bool { return p.b.get() }

// Subscribe implements Observer.
func (p *Prober) Subscribe() (<-chan bool, func()) { return p.b.subscribe() }

// Start probes once synchronously, then keeps probing in the background
// until Stop is called or ctx is done. A stopped Prober can be started again.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	p.Probe(ctx)

	p.wg.Add(1)
	go p.probeLoop(ctx, stopCh)

	p.logger.Info("Connectivity prober started", map[string]interface{}{
		"interval": p.interval.String(),
		"online":   p.Online(),
	})
}

// Stop stops the background probe loop gracefully.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	stopCh := p.stopCh
	p.mu.Unlock()

	close(stopCh)
	p.wg.Wait()

	p.logger.Info("Connectivity prober stopped", nil)
}

// Probe runs one health check, updates the state and returns it.
func (p *Prober) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(probeCtx)
	online := err == nil
	if p.b.set(online) {
		fields := map[string]interface{}{"is_online": online}
		if err != nil {
			fields["error"] = err.Error()
		}
		p.logger.Info("Online status changed", fields)
	}
	return online
}

func (p *Prober) probeLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
