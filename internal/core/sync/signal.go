package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"
)

// RetrySignal tells waiting operations that a retry may now succeed.
type RetrySignal interface {
	// Subscribe returns a channel that receives once per notification and a
	// function that cancels the subscription.
	Subscribe() (<-chan struct{}, func())
}

// Signal is an in-process RetrySignal.
type Signal struct {
	mu   gosync.Mutex
	subs map[int]chan struct{}
	next int
}

func NewSignal() *Signal {
	return &Signal{subs: make(map[int]chan struct{})}
}

func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	id := s.next
	s.next++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Notify wakes every current subscriber.
func (s *Signal) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of operations currently waiting.
func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Pinger checks whether the API can be reached.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityMonitor probes the API and notifies its Signal when the API
// is reachable and either it was unreachable before or operations are
// waiting to retry.
type ConnectivityMonitor struct {
	pinger   Pinger
	signal   *Signal
	interval time.Duration
	logger   *slog.Logger

	mu     gosync.Mutex
	online bool
}

func NewConnectivityMonitor(pinger Pinger, signal *Signal, interval time.Duration, logger *slog.Logger) *ConnectivityMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ConnectivityMonitor{
		pinger:   pinger,
		signal:   signal,
		interval: interval,
		logger:   loggerOrDefault(logger).With("category", "connectivity"),
	}
}

// Run probes every interval until ctx is done.
func (m *ConnectivityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check probes once and reports whether the API is reachable. Responses
// that are not transient failures count as reachable.
func (m *ConnectivityMonitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	err := m.pinger.Ping(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}
	reachable := err == nil || Classify(err) != StatusRetry
	SetOnline(reachable)

	m.mu.Lock()
	wasOnline := m.online
	m.online = reachable
	m.mu.Unlock()

	switch {
	case !reachable && wasOnline:
		m.logger.Warn("API unreachable", "error", err)
	case reachable && !wasOnline:
		m.logger.Info("API reachable")
	}
	if reachable && (!wasOnline || m.signal.Subscribers() > 0) {
		m.signal.Notify()
	}
	return reachable
}
