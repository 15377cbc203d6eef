package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/ark-network/watchtower/internal/core/monitor"
	"github.com/sirupsen/logrus"
)

const forceExitGrace = 60 * time.Second

// network bundles a Monitor with its own cycle cadence.
type network struct {
	id       string
	monitor  *monitor.Monitor
	interval time.Duration
}

// Supervisor starts one goroutine per enabled network, each running an
// interruptible loop of (run cycle, sleep). Stop cancels the sleep
// immediately and awaits the in-flight cycle, guarded by a force-exit
// timer.
type Supervisor struct {
	networks []network
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New() *Supervisor {
	return &Supervisor{stopCh: make(chan struct{})}
}

// Register adds a network to be started by Start. Must be called before
// Start.
func (s *Supervisor) Register(networkID string, m *monitor.Monitor, interval time.Duration) {
	s.networks = append(s.networks, network{id: networkID, monitor: m, interval: interval})
}

func (s *Supervisor) Start(ctx context.Context) {
	for _, n := range s.networks {
		s.wg.Add(1)
		go s.run(ctx, n)
	}
}

func (s *Supervisor) run(ctx context.Context, n network) {
	defer s.wg.Done()
	log := logrus.WithField("network", n.id)

	for {
		if err := n.monitor.RunCycle(ctx); err != nil {
			log.WithError(err).Warn("monitor cycle failed")
		}

		timer := time.NewTimer(n.interval)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop interrupts every network's sleep at once and waits for in-flight
// cycles to finish, up to a 60s grace period.
func (s *Supervisor) Stop() {
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(forceExitGrace):
		logrus.Warn("supervisor: force-exit grace period elapsed with a cycle still in flight")
	}
}
