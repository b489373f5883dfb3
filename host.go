// Package rrr wires the core runtime together: a Host owns the shared
// message broker, one event loop and goroutine per configured instance,
// and coordinated startup and shutdown across them.
package rrr

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rrrd/rrr/internal/broker"
	"github.com/rrrd/rrr/internal/config"
	"github.com/rrrd/rrr/internal/diag"
	"github.com/rrrd/rrr/internal/eventqueue"
	"github.com/rrrd/rrr/internal/instance"
	"github.com/rrrd/rrr/vars"
)

// ModuleFactory builds a fresh Module for one configured instance.
type ModuleFactory func() (instance.Module, error)

// registry maps module names to factories. Modules register at init
// time the way database drivers do.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]ModuleFactory)
)

// RegisterModule makes a module available to hosts by name. A second
// registration under the same name panics: it is a programmer error.
func RegisterModule(name string, factory ModuleFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("rrr: duplicate module registration " + name)
	}
	registry[name] = factory
}

func lookupModule(name string) (ModuleFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// runningInstance is one configured instance bound to its module and
// runtime.
type runningInstance struct {
	module  instance.Module
	runtime *instance.Runtime
	cfg     config.InstanceConfig
}

// Host owns the shared fabric and every instance thread.
type Host struct {
	diag   diag.Context
	broker *broker.Broker
	clk    clock.Clock

	mu        sync.Mutex
	instances []*runningInstance

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewHost builds a Host over the given diagnostics and broker
// thresholds.
func NewHost(d diag.Context, thresholds broker.Thresholds) *Host {
	return &Host{
		diag:   d,
		broker: broker.New(thresholds),
		clk:    clock.New(),
	}
}

// Broker exposes the shared routing fabric, mainly for tests and
// embedding hosts.
func (h *Host) Broker() *broker.Broker { return h.broker }

// AddInstance binds one configured instance to its registered module.
// Each instance gets its own event loop; its broker customer is
// registered with a pause hook into that loop.
func (h *Host) AddInstance(cfg config.InstanceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	factory, ok := lookupModule(cfg.Module)
	if !ok {
		return errors.Errorf("rrr: module %q is not registered", cfg.Module)
	}
	mod, err := factory()
	if err != nil {
		return errors.Wrapf(err, "rrr: build module %q", cfg.Module)
	}

	queue := eventqueue.New(h.clk)
	h.broker.RegisterCustomer(cfg.Name, broker.KindFIFO, 0, func(pause bool) {
		queue.SetPaused(pause)
	})

	rt := &instance.Runtime{
		Name:    cfg.Name,
		Senders: cfg.Senders,
		Queue:   queue,
		Broker:  h.broker,
		Diag: h.diag.With(
			zap.String("module", mod.ModuleName()),
			zap.String("instance", cfg.Name),
		),
		Options: cfg.Options,
	}

	h.mu.Lock()
	h.instances = append(h.instances, &runningInstance{module: mod, runtime: rt, cfg: cfg})
	h.mu.Unlock()
	return nil
}

// Open preloads every instance on the calling goroutine in start
// priority order, then spawns each instance's thread. Preload of all
// instances completes before any thread starts.
func (h *Host) Open(ctx context.Context) error {
	h.mu.Lock()
	insts := make([]*runningInstance, len(h.instances))
	copy(insts, h.instances)
	h.mu.Unlock()

	sort.SliceStable(insts, func(i, j int) bool {
		return insts[i].module.StartPriority() < insts[j].module.StartPriority()
	})

	for _, ri := range insts {
		if err := ri.module.Preload(ri.runtime); err != nil {
			return errors.Wrapf(err, "rrr: preload instance %q", ri.cfg.Name)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)
	h.cancel = cancel
	h.group = group

	for _, ri := range insts {
		ri := ri
		group.Go(func() error {
			ri.runtime.Diag.Info("instance thread starting",
				zap.String("type", ri.module.Type().String()))
			err := ri.module.ThreadEntry(runCtx, ri.runtime)
			ri.runtime.Queue.Stop()
			if err != nil {
				ri.runtime.Diag.Error("instance thread exited", zap.Error(err))
			}
			return err
		})
		vars.NumInstancesVar.Add(1)
	}
	return nil
}

// Close requests a cooperative stop and waits for every instance thread
// to exit, returning the first error any of them reported.
func (h *Host) Close() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()

	done := make(chan error, 1)
	go func() { done <- h.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(30 * time.Second):
		return errors.New("rrr: instance threads did not stop in time")
	}
}
