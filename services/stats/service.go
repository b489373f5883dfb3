// Package stats periodically snapshots the process-wide expvar counters
// (see root package vars) into a typed-array message and publishes it
// through the broker on an interval, under a configurable customer
// name.
package stats

import (
	"errors"
	"expvar"
	"log"
	"sync"
	"time"

	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrarray"
	"github.com/rrrd/rrr/internal/rrrtype"
)

// IntVar is the subset of expvar.Var that reports a stable int64 value,
// matching the root kexpvar.IntVar interface without importing it
// (avoids a dependency from stats back into expvar's fork).
type IntVar interface {
	expvar.Var
	IntValue() int64
}

// Service collects every registered IntVar on an interval and publishes
// one message per tick to Broker under Customer.
type Service struct {
	Broker interface {
		Write(customer string, h *holder.Holder, cancel func() bool) error
	}

	interval time.Duration
	customer string

	mu    sync.Mutex
	vars  map[string]IntVar
	open  bool
	close chan struct{}
	wg    sync.WaitGroup

	logger *log.Logger
}

func NewService(c Config, l *log.Logger) *Service {
	return &Service{
		interval: time.Duration(c.StatsInterval),
		customer: c.Customer,
		vars:     make(map[string]IntVar),
		logger:   l,
	}
}

// Register adds (or replaces) a named counter to be included in every
// future tick's snapshot.
func (s *Service) Register(name string, v IntVar) {
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Broker == nil {
		return errors.New("stats: Broker must be set before Open")
	}
	s.open = true
	s.close = make(chan struct{})
	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return errors.New("stats: service not open")
	}
	s.open = false
	close(s.close)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Service) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.close:
			return
		case now := <-ticker.C:
			s.report(now)
		}
	}
}

func (s *Service) report(now time.Time) {
	s.mu.Lock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	s.mu.Unlock()

	arr := rrrarray.NewArray()
	for _, name := range names {
		s.mu.Lock()
		v := s.vars[name]
		s.mu.Unlock()
		arr.Append(rrrtype.NewIntegerValue(rrrtype.KindBE, 8, name, uint64(v.IntValue())))
	}

	msg := rrrarray.New(rrrarray.ClassMSG, uint64(now.UnixNano()), s.customer, arr)
	h := holder.New(nil, holder.ProtocolNone, msg)
	if err := s.Broker.Write(s.customer, h, nil); err != nil && s.logger != nil {
		s.logger.Printf("E! failed to publish stats: %s", err)
	}
}
