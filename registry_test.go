package om_arm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.viam.com/rdk/logging"

	"om_arm/manipulator"
)

// Test configuration factory
func testConfig(t *testing.T, descriptionFile string) *Config {
	t.Helper()
	simulate := false
	cfg := &Config{
		DescriptionFile: descriptionFile,
		SimulateTime:    &simulate,
		Logger:          logging.NewTestLogger(t),
	}
	if _, _, err := cfg.Validate("test"); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return cfg
}

// TestRegistryCreation tests basic registry creation and initialization
func TestRegistryCreation(t *testing.T) {
	registry := NewControllerRegistry()

	if registry == nil {
		t.Fatal("NewControllerRegistry returned nil")
	}

	if registry.entries == nil {
		t.Fatal("Registry entries map not initialized")
	}

	if len(registry.entries) != 0 {
		t.Fatal("Registry should start empty")
	}
}

// TestSingleControllerAccess tests basic controller access for the built-in description
func TestSingleControllerAccess(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")

	controller, err := registry.GetController(config)
	if err != nil {
		t.Fatalf("Failed to get controller: %v", err)
	}

	if controller == nil {
		t.Fatal("Controller should not be nil")
	}
	if controller.Manipulator().DOF() != 3 {
		t.Fatalf("Expected 3 joints, got %d", controller.Manipulator().DOF())
	}

	// Verify registry state
	registry.mu.RLock()
	if len(registry.entries) != 1 {
		t.Fatalf("Expected 1 registry entry, got %d", len(registry.entries))
	}

	entry, exists := registry.entries[config.key()]
	if !exists {
		t.Fatal("Registry entry not found for description")
	}

	refCount := atomic.LoadInt64(&entry.refCount)
	if refCount != 1 {
		t.Fatalf("Expected refCount 1, got %d", refCount)
	}
	registry.mu.RUnlock()

	// Release controller
	registry.ReleaseController(config.key())

	// Verify cleanup
	registry.mu.RLock()
	if len(registry.entries) != 0 {
		t.Fatalf("Expected 0 registry entries after release, got %d", len(registry.entries))
	}
	registry.mu.RUnlock()

	if _, err := controller.JointMove(t.Context(), []float64{0, 0, 0}, 1); !errors.Is(err, errControllerClosed) {
		t.Fatalf("Expected released controller to be closed, got %v", err)
	}
}

// TestSharedAccess tests that components with the same description share one controller
func TestSharedAccess(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")

	const numGoroutines = 5
	var wg sync.WaitGroup
	controllers := make([]*Controller, numGoroutines)
	errs := make([]error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			controllers[i], errs[i] = registry.GetController(config)
		}(i)
	}

	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("GetController %d failed: %v", i, errs[i])
		}
		if controllers[i] != controllers[0] {
			t.Fatal("Expected every caller to share one controller")
		}
	}

	refCount, hasController, _ := registry.GetControllerStatus(config.key())
	if refCount != numGoroutines || !hasController {
		t.Fatalf("Expected refCount %d with controller, got %d, %v", numGoroutines, refCount, hasController)
	}

	for i := 0; i < numGoroutines; i++ {
		registry.ReleaseController(config.key())
	}
	if refCount, _, _ := registry.GetControllerStatus(config.key()); refCount != 0 {
		t.Fatalf("Expected refCount 0 after releases, got %d", refCount)
	}
}

// TestConflictingConfig tests that a second config for the same description must agree
func TestConflictingConfig(t *testing.T) {
	registry := NewControllerRegistry()
	config1 := testConfig(t, "")
	config2 := testConfig(t, "")
	config2.ControlTimeSec = 0.02

	if _, err := registry.GetController(config1); err != nil {
		t.Fatalf("Failed to get controller: %v", err)
	}
	defer registry.ReleaseController(config1.key())

	_, err := registry.GetController(config2)
	if err == nil || !strings.Contains(err.Error(), "conflict") {
		t.Fatalf("Expected conflict error, got %v", err)
	}
}

// TestCreationErrorIsCached tests that a failed creation is reported to later callers
func TestCreationErrorIsCached(t *testing.T) {
	registry := NewControllerRegistry()
	calls := 0
	registry.newController = func(*Config, manipulator.Description) (*Controller, error) {
		calls++
		return nil, fmt.Errorf("mock bus error")
	}
	config := testConfig(t, "")

	if _, err := registry.GetController(config); err == nil {
		t.Fatal("Expected creation error")
	}
	_, err := registry.GetController(config)
	if err == nil || !strings.Contains(err.Error(), "cached controller creation error") {
		t.Fatalf("Expected cached error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("Expected one creation attempt, got %d", calls)
	}
}

// TestReferenceCountingLogic tests reference counting without a controller
func TestReferenceCountingLogic(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")

	// Create a mock entry
	entry := &ControllerEntry{
		config:   config,
		desc:     manipulator.DefaultSCARA(),
		refCount: 3, // Start with 3 references
	}
	registry.entries[config.key()] = entry

	for want := int64(2); want >= 1; want-- {
		registry.ReleaseController(config.key())
		if count := atomic.LoadInt64(&entry.refCount); count != want {
			t.Fatalf("Expected refCount %d, got %d", want, count)
		}
		if _, exists := registry.entries[config.key()]; !exists {
			t.Fatal("Entry removed while still referenced")
		}
	}

	registry.ReleaseController(config.key())
	if _, exists := registry.entries[config.key()]; exists {
		t.Fatal("Entry should be removed with the last reference")
	}
}

// TestCleanupOnZeroRefs tests cleanup when reference count reaches zero
func TestCleanupOnZeroRefs(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")

	// Create a mock entry with 1 reference - simulate a failed creation with error
	entry := &ControllerEntry{
		config:     config,
		refCount:   1,
		controller: nil,
		lastError:  fmt.Errorf("mock creation error"),
	}
	registry.entries[config.key()] = entry

	registry.ReleaseController(config.key())

	registry.mu.RLock()
	if len(registry.entries) != 0 {
		t.Fatalf("Expected 0 registry entries after cleanup, got %d", len(registry.entries))
	}
	registry.mu.RUnlock()
}

// TestForceCloseController tests force closing controllers
func TestForceCloseController(t *testing.T) {
	registry := NewControllerRegistry()
	keys := []string{"a.json", "b.json"}

	// Create mock entries
	for _, key := range keys {
		registry.entries[key] = &ControllerEntry{
			config:     testConfig(t, key),
			refCount:   2,   // Multiple references
			controller: nil, // No actual controller
		}
	}

	if err := registry.ForceCloseController(keys[0]); err != nil {
		t.Fatalf("ForceCloseController failed: %v", err)
	}

	registry.mu.RLock()
	if len(registry.entries) != 1 {
		t.Fatalf("Expected 1 registry entry after force close, got %d", len(registry.entries))
	}
	if _, exists := registry.entries[keys[1]]; !exists {
		t.Fatal("Wrong entry was removed")
	}
	registry.mu.RUnlock()

	if err := registry.ForceCloseController("missing.json"); err != nil {
		t.Fatalf("ForceCloseController on missing key failed: %v", err)
	}
}

// TestGetControllerStatus tests status reporting
func TestGetControllerStatus(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")

	// Test empty registry
	refCount, hasController, summary := registry.GetControllerStatus(config.key())
	if refCount != 0 || hasController != false || summary != "" {
		t.Fatal("Empty registry should return zero values")
	}

	if _, err := registry.GetController(config); err != nil {
		t.Fatalf("Failed to get controller: %v", err)
	}
	defer registry.ReleaseController(config.key())

	refCount, hasController, summary = registry.GetControllerStatus(config.key())
	if refCount != 1 {
		t.Fatalf("Expected refCount 1, got %d", refCount)
	}
	if !hasController {
		t.Fatal("Expected hasController true")
	}
	if !strings.Contains(summary, "om_scara") || !strings.Contains(summary, "built-in") {
		t.Fatalf("Unexpected summary %q", summary)
	}

	desc, fromFile := registry.GetDescription(config.key())
	if fromFile || desc.Name != "om_scara" {
		t.Fatalf("Expected built-in description, got %q fromFile=%v", desc.Name, fromFile)
	}
}

// TestConcurrentRegistryAccess tests thread safety
func TestConcurrentRegistryAccess(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")
	const numGoroutines = 10
	const numOperations = 50

	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				if _, err := registry.GetController(config); err == nil {
					registry.GetControllerStatus(config.key())
					registry.ReleaseController(config.key())
				}
			}
		}()
	}

	wg.Wait()

	if refCount, _, _ := registry.GetControllerStatus(config.key()); refCount != 0 {
		t.Fatalf("Expected all references released, got %d", refCount)
	}
}

// TestConcurrentLastReleaseAndCreate drops the last reference while other goroutines recreate the
// controller, which must neither deadlock nor hand out a released entry.
func TestConcurrentLastReleaseAndCreate(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")
	const numGoroutines = 8
	const numOperations = 20

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numOperations)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				controller, err := registry.GetController(config)
				if err != nil {
					errs <- err
					continue
				}
				if controller == nil {
					errs <- errors.New("nil controller without error")
					continue
				}
				registry.ReleaseController(config.key())
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("registry deadlocked between release and create")
	}

	close(errs)
	for err := range errs {
		t.Fatalf("GetController failed during concurrent release: %v", err)
	}
	if refCount, hasController, _ := registry.GetControllerStatus(config.key()); refCount != 0 || hasController {
		t.Fatalf("Expected no live controller, got refCount %d hasController %v", refCount, hasController)
	}
}

// TestRegistryControllerDrawsDemoPage runs the demo through its first page on a registry-built
// controller, which solves task space targets on its own.
func TestRegistryControllerDrawsDemoPage(t *testing.T) {
	registry := NewControllerRegistry()
	config := testConfig(t, "")

	controller, err := registry.GetController(config)
	if err != nil {
		t.Fatalf("Failed to get controller: %v", err)
	}
	defer registry.ReleaseController(config.key())

	controller.StartDemo()
	firstPage := len(newDemo().steps) / len(demoPages())
	if firstPage != 6 {
		t.Fatalf("Expected 6 steps on the first page, got %d", firstPage)
	}

	ctx := context.Background()
	for i := 0; ; i++ {
		if i > 10000 {
			t.Fatal("Demo did not finish its first page")
		}
		if err := controller.Tick(ctx); err != nil {
			t.Fatalf("Tick %d failed: %v", i, err)
		}

		controller.mu.Lock()
		d, lastErr := controller.demo, controller.lastErr
		controller.mu.Unlock()
		if lastErr != nil {
			t.Fatalf("Move failed: %v", lastErr)
		}
		if d == nil {
			t.Fatal("Demo stopped")
		}
		d.mu.Lock()
		pos := d.pos
		d.mu.Unlock()
		// The first step of the second page is issued once the drawing has finished.
		if pos > firstPage {
			break
		}
	}

	value, err := controller.ToolValue(controller.ToolName())
	if err != nil {
		t.Fatalf("Failed to read tool: %v", err)
	}
	if value != demoPenUp {
		t.Fatalf("Expected pen up for the next erase, got %v", value)
	}
}
