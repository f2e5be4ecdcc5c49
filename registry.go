package om_arm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"om_arm/manipulator"
	"om_arm/processing"
)

// errEntryReleased marks an entry whose last reference was dropped after it was looked up.
var errEntryReleased = errors.New("controller entry released")

// ControllerEntry is one shared controller and the components holding it.
type ControllerEntry struct {
	controller *Controller
	config     *Config
	desc       manipulator.Description
	fromFile   bool
	refCount   int64 // Atomic reference counter
	lastError  error
	mu         sync.RWMutex
}

// ControllerRegistry shares controllers between the arm, gripper and sensor of one manipulator.
type ControllerRegistry struct {
	entries map[string]*ControllerEntry // description key -> entry
	mu      sync.RWMutex

	newController func(cfg *Config, desc manipulator.Description) (*Controller, error)
}

func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{
		entries:       make(map[string]*ControllerEntry),
		newController: newSimulatedController,
	}
}

// newSimulatedController binds a description to an in-memory bus and starts its control loop and
// Processing link as the config asks.
func newSimulatedController(cfg *Config, desc manipulator.Description) (*Controller, error) {
	m, err := desc.Build()
	if err != nil {
		return nil, err
	}
	var toolIDs []int
	for _, name := range m.ToolNames() {
		id, err := m.ComponentToolID(name)
		if err != nil {
			return nil, err
		}
		toolIDs = append(toolIDs, id)
	}
	solver, err := NewJacobianSolver(desc)
	if err != nil {
		return nil, err
	}
	bus := NewSimActuator(m.AllActiveJointIDs(), toolIDs)

	c, err := NewController(desc, bus, ControllerOptions{
		ControlTime:     cfg.ControlTimeSec,
		DefaultMoveTime: cfg.DefaultMoveTimeSec,
		ToolName:        cfg.ToolName,
		Solver:          solver,
	}, cfg.Logger)
	if err != nil {
		bus.Close()
		return nil, err
	}

	if cfg.ProcessingPort != "" {
		port, err := processing.OpenSerial(cfg.ProcessingPort, cfg.ProcessingBaudrate, processing.DefaultReadTimeout)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.ServeProcessing(port)
	}
	if cfg.simulateTime() {
		c.Start()
	}
	return c, nil
}

// GetController returns the controller for cfg's description, creating it on first use.
func (r *ControllerRegistry) GetController(cfg *Config) (*Controller, error) {
	key := cfg.key()
	r.mu.RLock()
	entry, exists := r.entries[key]
	r.mu.RUnlock()

	if exists {
		controller, err := r.getExistingController(entry, cfg)
		if !errors.Is(err, errEntryReleased) {
			return controller, err
		}
	}

	return r.createNewController(key, cfg)
}

func (r *ControllerRegistry) getExistingController(entry *ControllerEntry, cfg *Config) (*Controller, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.controller == nil {
		if entry.lastError != nil {
			return nil, fmt.Errorf("cached controller creation error: %w", entry.lastError)
		}
		return nil, errEntryReleased
	}

	if !configsEqual(entry.config, cfg) {
		currentRefCount := atomic.LoadInt64(&entry.refCount)
		return nil, fmt.Errorf("conflict: existing controller uses different config (refCount: %d)", currentRefCount)
	}

	atomic.AddInt64(&entry.refCount, 1)
	return entry.controller, nil
}

func (r *ControllerRegistry) createNewController(key string, cfg *Config) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[key]; exists {
		return r.getExistingController(entry, cfg)
	}

	desc, fromFile := cfg.LoadDescription(cfg.Logger)
	entry := &ControllerEntry{
		config:   cfg,
		desc:     desc,
		fromFile: fromFile,
	}

	controller, err := r.newController(cfg, desc)
	if err != nil {
		entry.lastError = err
		r.entries[key] = entry
		return nil, fmt.Errorf("failed to create controller for %s: %w", key, err)
	}

	entry.controller = controller
	atomic.StoreInt64(&entry.refCount, 1)
	r.entries[key] = entry

	if cfg.Logger != nil {
		cfg.Logger.Infof("Created controller for %q with %d joints, control time %v s",
			desc.Name, controller.Manipulator().DOF(), cfg.ControlTimeSec)
	}
	return controller, nil
}

// ReleaseController drops one reference and closes the controller with the last one.
// Lock order is r.mu then entry.mu, the same as createNewController.
func (r *ControllerRegistry) ReleaseController(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[key]
	if !exists {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	currentRefCount := atomic.AddInt64(&entry.refCount, -1)
	if currentRefCount <= 0 {
		if entry.controller != nil {
			if err := entry.controller.Close(); err != nil && entry.config != nil && entry.config.Logger != nil {
				entry.config.Logger.Warnf("error closing shared controller for %s: %v", key, err)
			}
		}

		delete(r.entries, key)

		entry.controller = nil
		entry.config = nil
		atomic.StoreInt64(&entry.refCount, 0)
		entry.lastError = nil
	}
}

// ForceCloseController closes a controller regardless of its references.
func (r *ControllerRegistry) ForceCloseController(key string) error {
	r.mu.Lock()
	entry, exists := r.entries[key]
	if exists {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !exists {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var err error
	if entry.controller != nil {
		err = entry.controller.Close()
		entry.controller = nil
		entry.config = nil
		atomic.StoreInt64(&entry.refCount, 0)
		entry.lastError = nil
	}

	return err
}

// GetControllerStatus returns the reference count, whether a controller is live and a summary.
func (r *ControllerRegistry) GetControllerStatus(key string) (int64, bool, string) {
	r.mu.RLock()
	entry, exists := r.entries[key]
	r.mu.RUnlock()

	if !exists {
		return 0, false, ""
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	currentRefCount := atomic.LoadInt64(&entry.refCount)
	hasController := entry.controller != nil
	configSummary := ""

	if entry.config != nil {
		source := "built-in"
		if entry.fromFile {
			source = "file"
		}
		configSummary = fmt.Sprintf("Description: %s (%s), control time: %vs",
			entry.desc.Name, source, entry.config.ControlTimeSec)
	}

	return currentRefCount, hasController, configSummary
}

// GetDescription returns the description a controller was built from.
func (r *ControllerRegistry) GetDescription(key string) (manipulator.Description, bool) {
	r.mu.RLock()
	entry, exists := r.entries[key]
	r.mu.RUnlock()

	if !exists {
		return manipulator.Description{}, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.desc, entry.fromFile
}
