// Package core ties every long-lived subsystem together behind one
// explicit handle, replacing the original's global mutable `ctx`
// (spec.md §9: "Global mutable context ctx. Replace with an explicit
// handle passed to every component; configuration immutable after
// startup, live state behind a narrow owner that exposes
// query/mutate operations").
package core

import (
	"sync"

	"github.com/go-kit/kit/log"

	"github.com/domthera/bngblaster/internal/a10nsp"
	"github.com/domthera/bngblaster/internal/iface"
	"github.com/domthera/bngblaster/internal/isis"
	"github.com/domthera/bngblaster/internal/l2tp"
	"github.com/domthera/bngblaster/internal/session"
	"github.com/domthera/bngblaster/internal/timer"
	"github.com/domthera/bngblaster/internal/traffic"
)

// Context is the single owner handle threaded into every component
// constructor (spec.md §3 "Ownership": "the global context owns all
// long-lived registries"). It is built once in main and never stored
// in a package-level variable.
type Context struct {
	Logger log.Logger

	Timers *timer.Root

	Sessions *session.Registry
	Traffic  *traffic.Engine
	L2TP     *l2tp.Manager
	A10NSP   *a10nsp.Terminator

	mu         sync.Mutex
	interfaces map[string]*iface.Port
	isisInst   map[uint32]*isis.Instance

	Running bool
}

// Config holds the immutable-after-startup parameters a Context is
// built from.
type Config struct {
	Logger log.Logger
}

// New constructs a Context with an empty interface table, session
// registry, traffic engine and L2TP manager, all sharing one timer
// wheel root.
func New(cfg Config) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	timers := timer.NewRoot(nil)
	sessions := session.NewRegistry(timers)
	ctx := &Context{
		Logger:     logger,
		Timers:     timers,
		Sessions:   sessions,
		Traffic:    traffic.NewEngine(logger, timers, sessions),
		L2TP:       l2tp.NewManager(logger, timers),
		interfaces: make(map[string]*iface.Port),
		isisInst:   make(map[uint32]*isis.Instance),
	}
	return ctx
}

// AddInterface registers a raw interface port under its name, for
// lookup by the control socket's "interfaces" handler and by
// components that need to transmit on a specific port.
func (c *Context) AddInterface(p *iface.Port) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interfaces[p.Name] = p
}

// Interface looks up a registered port by name.
func (c *Context) Interface(name string) (*iface.Port, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.interfaces[name]
	return p, ok
}

// Interfaces returns every registered interface port, for the control
// socket's "interfaces" list handler.
func (c *Context) Interfaces() []*iface.Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*iface.Port, 0, len(c.interfaces))
	for _, p := range c.interfaces {
		out = append(out, p)
	}
	return out
}

// AddISISInstance registers an IS-IS instance under an operator-chosen
// numeric id, for the control socket's instance-scoped handlers
// (adjacencies, database, MRT load, external LSP update).
func (c *Context) AddISISInstance(id uint32, inst *isis.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isisInst[id] = inst
}

// ISISInstance looks up a registered IS-IS instance by id.
func (c *Context) ISISInstance(id uint32) (*isis.Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.isisInst[id]
	return inst, ok
}

// Start arms the traffic engine's TX tick and marks the context
// running (spec.md §4.7 "global traffic start/stop").
func (c *Context) Start() {
	c.mu.Lock()
	c.Running = true
	c.mu.Unlock()
	c.Traffic.Start()
}

// Stop disarms the traffic engine's TX tick.
func (c *Context) Stop() {
	c.mu.Lock()
	c.Running = false
	c.mu.Unlock()
	c.Traffic.Stop()
}

// Tick drives every timer-wheel-scheduled piece of work: retransmits,
// hellos, IS-IS jobs, traffic TX. Intended to be called from main's
// event loop at a fixed cadence (spec.md §4.1).
func (c *Context) Tick() {
	c.Timers.Walk()
}
