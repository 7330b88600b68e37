package bzperi

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// RunState is the lifecycle state machine from spec.md §4.G.
type RunState int

const (
	StateUninitialized RunState = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Health is separate from RunState and monotone non-improving once set
// (spec.md §4.G).
type Health int

const (
	HealthOk Health = iota
	HealthFailedInit
	HealthFailedRun
)

func (h Health) String() string {
	switch h {
	case HealthOk:
		return "ok"
	case HealthFailedInit:
		return "failed_init"
	case HealthFailedRun:
		return "failed_run"
	default:
		return "unknown"
	}
}

// DataGetter resolves an opaque semantic name (e.g. "battery/level") to
// its current bytes (spec.md §6.3). The returned slice must remain valid
// until at least the next getter invocation for the same name.
type DataGetter func(name string) ([]byte, bool)

// DataSetter accepts a write for an opaque semantic name. Returning false
// means rejected.
type DataSetter func(name string, data []byte) bool

// ServerConfig is immutable after Start (spec.md §3.1).
type ServerConfig struct {
	ServiceName          string
	AdvertisingName      string
	AdvertisingShortName string
	EnableBondable       bool
	EnableDiscoverable   bool
	EnableAdvertising    bool
	DataGetter           DataGetter
	DataSetter           DataSetter
	InitTimeout          time.Duration
	PreferredAdapter     string
}

// serviceNameSegmentRE matches one lowercase dot-separated segment of a
// "bzperi."-prefixed service name (spec.md §4.H).
var serviceNameSegmentRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// validate checks the fields spec.md §4.H requires before configurator
// application.
func (c ServerConfig) validate() error {
	if c.ServiceName == "" || len(c.ServiceName) > 255 {
		return ErrInvalidServiceName
	}
	if c.ServiceName != "bzperi" {
		if !strings.HasPrefix(c.ServiceName, "bzperi.") {
			return ErrInvalidServiceName
		}
		rest := strings.TrimPrefix(c.ServiceName, "bzperi.")
		if rest == "" {
			return ErrInvalidServiceName
		}
		for _, seg := range strings.Split(rest, ".") {
			if !serviceNameSegmentRE.MatchString(seg) {
				return ErrInvalidServiceName
			}
		}
	}
	if c.InitTimeout < 100*time.Millisecond || c.InitTimeout > 60*time.Second {
		return fmt.Errorf("%w: init_timeout out of range", ErrInvalidArgument)
	}
	if c.DataGetter == nil || c.DataSetter == nil {
		return fmt.Errorf("%w: data_getter/data_setter required", ErrInvalidArgument)
	}
	return nil
}

// Server is the single-threaded init-state processor and lifecycle owner
// from spec.md §4.G, generalising paypal-gatt/server.go's Serving/quit/
// quitonce single-shot shape into the multi-milestone bus -> name ->
// adapter -> tree -> application checklist this spec requires.
type Server struct {
	mu        sync.Mutex
	cond      *sync.Cond
	state     RunState
	health    Health
	config    ServerConfig
	registry  *Registry

	tree      *Tree
	publisher *Publisher
	adapter   *AdapterController
	queue     *UpdateQueue

	quit     chan struct{}
	quitOnce sync.Once
	stopped  chan struct{}
}

// NewServer constructs a Server bound to registry; registry's snapshot
// is applied to the tree at Start.
func NewServer(registry *Registry) *Server {
	s := &Server{registry: registry, queue: NewUpdateQueue()}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Registry returns the server's configurator registry, so a host can
// register configurators before calling Start.
func (s *Server) Registry() *Registry { return s.registry }

// Queue returns the update queue a host pushes characteristic/descriptor
// change notifications onto (spec.md §4.E, §6.2 "push_update").
func (s *Server) Queue() *UpdateQueue { return s.queue }

// GetRunState atomically reads the run state.
func (s *Server) GetRunState() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetHealth atomically reads the health.
func (s *Server) GetHealth() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// IsRunning reports whether the run state is Running.
func (s *Server) IsRunning() bool { return s.GetRunState() == StateRunning }

func (s *Server) setState(state RunState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Server) setHealth(h Health) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.health == HealthOk {
		s.health = h
	}
}

// Start validates config, constructs the tree, applies all registered
// configurators, spawns the event-loop goroutine, and blocks the caller
// for up to config.InitTimeout waiting for the run state to reach
// Running (spec.md §4.G).
func (s *Server) Start(config ServerConfig) error {
	return s.start(config, config.EnableBondable)
}

// StartWithBondable is Start with an explicit pairing policy override,
// matching the host-facing "start_with_bondable" operation (spec.md
// §6.2).
func (s *Server) StartWithBondable(config ServerConfig, bondable bool) error {
	return s.start(config, bondable)
}

func (s *Server) start(config ServerConfig, bondable bool) error {
	if err := config.validate(); err != nil {
		s.setHealth(HealthFailedInit)
		return err
	}
	config.EnableBondable = bondable
	s.config = config

	rootPath, err := derivedRootPath(config.ServiceName)
	if err != nil {
		s.setHealth(HealthFailedInit)
		return err
	}

	s.tree = NewTree(rootPath)
	// GetManagedObjects is dispatched directly by objectManagerHandler
	// (dispatch.go), bypassing tree.CallMethod; this Method entry exists
	// only so introspection lists it.
	s.tree.Root().AddInterface(&Interface{
		Kind: IfaceObjectManager,
		Name: IfaceNameObjectManager,
		Methods: []Method{
			{Name: "GetManagedObjects", OutSig: "a{oa{sa{sv}}}"},
		},
	})

	if err := s.registry.ApplyAll(s.tree.Root()); err != nil {
		s.setHealth(HealthFailedInit)
		return err
	}

	s.publisher = NewPublisher(s.tree, rootPath)
	s.adapter = NewAdapterController(s.publisher, s.tree.Root())
	s.quit = make(chan struct{})
	s.stopped = make(chan struct{})

	s.setState(StateInitializing)

	done := make(chan error, 1)
	go s.runInit(done)

	select {
	case err := <-done:
		if err != nil {
			s.setHealth(HealthFailedInit)
			return err
		}
	case <-time.After(config.InitTimeout):
		s.setHealth(HealthFailedInit)
		return ErrTimeout
	}

	go s.eventLoop()
	return nil
}

// runInit executes the bus -> name -> adapter -> adapter-configuration ->
// register-objects -> signals -> register-application -> advertise
// checklist (spec.md §4.G). Adapter property writes retry with
// DefaultRetryPolicy and advertising registration with
// AdvertisingRetryPolicy; the bus, name, adapter discovery, tree
// registration and application registration steps are attempted once,
// and their first error ends the checklist.
func (s *Server) runInit(done chan<- error) {
	if err := s.publisher.AcquireBus(); err != nil {
		done <- err
		return
	}
	busName := derivedBusName(s.config.ServiceName)
	if err := s.publisher.AcquireName(busName); err != nil {
		done <- err
		return
	}
	if err := s.adapter.Initialize(s.config.PreferredAdapter); err != nil {
		done <- err
		return
	}
	if err := s.adapter.SetBondable(s.config.EnableBondable); err != nil {
		done <- err
		return
	}
	if s.config.EnableDiscoverable {
		if err := s.adapter.SetDiscoverable(true, nil); err != nil {
			done <- err
			return
		}
	}
	if s.config.AdvertisingName != "" {
		if err := s.adapter.SetName(s.config.AdvertisingName, s.config.AdvertisingShortName); err != nil {
			done <- err
			return
		}
	}
	if err := s.publisher.RegisterTree(); err != nil {
		done <- err
		return
	}
	if err := s.publisher.SubscribeBlueZSignals(); err != nil {
		done <- err
		return
	}
	s.adapter.OnBlueZRecovery(s.handleBlueZRecovery)
	if err := s.publisher.RegisterApplication(s.adapter.Adapter().Path); err != nil {
		done <- err
		return
	}
	if s.config.EnableAdvertising {
		errCh := make(chan error, 1)
		s.adapter.SetAdvertisingAsync(true, s.collectServiceUUIDs(), s.config.AdvertisingName, func(err error) {
			errCh <- err
		})
		if err := <-errCh; err != nil {
			done <- err
			return
		}
	}

	s.setState(StateRunning)
	done <- nil
}

func (s *Server) collectServiceUUIDs() []UUID {
	var uuids []UUID
	for _, child := range s.tree.Root().Children() {
		iface, ok := child.Interface(IfaceGattService)
		if !ok {
			continue
		}
		for _, p := range iface.Properties {
			if p.Name != "UUID" || p.Get == nil {
				continue
			}
			v, err := p.Get()
			if err != nil {
				continue
			}
			if u, err := ParseUUID(v.ToNative().(string)); err == nil {
				uuids = append(uuids, u)
			}
		}
	}
	return uuids
}

// handleBlueZRecovery implements the second half of spec.md §4.F/§8.4
// scenario 6: re-run discovery and re-register the application and
// advertisement; if that fails, wait 15s and retry once more before
// transitioning health to FailedRun.
func (s *Server) handleBlueZRecovery() {
	if err := s.reinitialize(); err != nil {
		time.Sleep(15 * time.Second)
		if err := s.reinitialize(); err != nil {
			s.setHealth(HealthFailedRun)
		}
	}
}

func (s *Server) reinitialize() error {
	s.publisher.UnsubscribeBlueZSignals()
	if err := s.adapter.Initialize(s.config.PreferredAdapter); err != nil {
		return err
	}
	if err := s.publisher.SubscribeBlueZSignals(); err != nil {
		return err
	}
	if err := s.publisher.RegisterApplication(s.adapter.Adapter().Path); err != nil {
		return err
	}
	if s.config.EnableAdvertising {
		errCh := make(chan error, 1)
		s.adapter.SetAdvertisingAsync(true, s.collectServiceUUIDs(), s.config.AdvertisingName, func(err error) { errCh <- err })
		return <-errCh
	}
	return nil
}

// eventLoop is the single cooperative thread driving the 10ms dispatcher
// tick (spec.md §4.E) until TriggerShutdown closes s.quit.
func (s *Server) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	defer close(s.stopped)

	for {
		select {
		case <-s.quit:
			s.teardown()
			return
		case <-ticker.C:
			if s.GetRunState() != StateRunning {
				continue
			}
			s.dispatchOneUpdate()
		}
	}
}

// dispatchOneUpdate processes exactly one queued entry per tick (spec.md
// §4.E), looking up the matching characteristic/descriptor's
// on_updated_value handler and letting it emit the PropertiesChanged
// signal itself.
func (s *Server) dispatchOneUpdate() {
	entry, _, ok := s.queue.PopBack()
	if !ok {
		return
	}
	handler, ifaceName, ok := s.tree.UpdateHandlerFor(entry.Path)
	if !ok {
		Logf(LevelWarning, "dispatch: no update handler registered for %s", entry.Path)
		return
	}
	ctx := UpdateContext{
		Path: entry.Path,
		Emit: func(values map[string]Value) error {
			return s.publisher.EmitPropertiesChanged(entry.Path, ifaceName, values)
		},
	}
	if err := handler(ctx); err != nil {
		Logf(LevelError, "update handler for %s: %v", entry.Path, err)
	}
}

// TriggerShutdown is non-blocking: it sets run-state Stopping and asks
// the event loop to exit (spec.md §4.G).
func (s *Server) TriggerShutdown() {
	s.setState(StateStopping)
	if s.adapter != nil {
		s.adapter.TriggerShutdown()
	}
	s.quitOnce.Do(func() {
		if s.quit != nil {
			close(s.quit)
		}
	})
}

func (s *Server) teardown() {
	if s.config.EnableAdvertising && s.adapter != nil {
		done := make(chan error, 1)
		s.adapter.SetAdvertisingAsync(false, nil, "", func(err error) { done <- err })
		<-done
	}
	if s.publisher != nil {
		s.publisher.UnsubscribeBlueZSignals()
		s.publisher.ReleaseName()
	}
	s.setState(StateStopped)
}

// WaitUntilStopped joins the event-loop goroutine, restores default log
// sinks, and returns nil iff health is Ok (spec.md §4.G).
func (s *Server) WaitUntilStopped() error {
	if s.stopped != nil {
		<-s.stopped
	}
	ResetSinks()
	if s.GetHealth() != HealthOk {
		return ErrFailed
	}
	return nil
}

// ShutdownAndWait composes TriggerShutdown and WaitUntilStopped
// (spec.md §6.2 "shutdown_and_wait").
func (s *Server) ShutdownAndWait() error {
	s.TriggerShutdown()
	return s.WaitUntilStopped()
}

// PushUpdate enqueues a characteristic/descriptor change notification
// (spec.md §6.2 "push_update"). Always succeeds.
func (s *Server) PushUpdate(path ObjectPath, iface string) {
	s.queue.PushFront(UpdateEntry{Path: path, Interface: iface})
}
