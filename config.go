package om_arm

import (
	"fmt"
	"os"
	"path/filepath"

	"go.viam.com/rdk/logging"

	"om_arm/manipulator"
	"om_arm/processing"
)

const (
	defaultControlTimeSec  = 0.010
	defaultMoveTimeSec     = 2.0
	defaultToolName        = "tool"
	defaultDescriptionName = "om_scara"
)

// Config is shared by the arm, gripper and state sensor. Components whose configs agree on the
// description and timing share one motion controller.
type Config struct {
	// Manipulator description JSON. Relative paths resolve under VIAM_MODULE_DATA. Empty uses the
	// built-in SCARA.
	DescriptionFile string `json:"description_file,omitempty"`

	ControlTimeSec     float64 `json:"control_time_sec,omitempty"`
	DefaultMoveTimeSec float64 `json:"default_move_time_sec,omitempty"`

	// Run the control loop on a background ticker. When false the controller only advances on
	// explicit steps, which tests use to control time.
	SimulateTime *bool `json:"simulate_time,omitempty"`

	// Tool component driven by the gripper and used for drawing.
	ToolName string `json:"tool_name,omitempty"`

	// Serial port of the Processing GUI link. Empty disables the link.
	ProcessingPort     string `json:"processing_port,omitempty"`
	ProcessingBaudrate int    `json:"processing_baudrate,omitempty"`

	// Not serialized
	Logger logging.Logger `json:"-"`
}

// Validate ensures all parts of the config are valid
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.ControlTimeSec == 0 {
		cfg.ControlTimeSec = defaultControlTimeSec
	}
	if cfg.DefaultMoveTimeSec == 0 {
		cfg.DefaultMoveTimeSec = defaultMoveTimeSec
	}
	if cfg.SimulateTime == nil {
		simulate := true
		cfg.SimulateTime = &simulate
	}
	if cfg.ToolName == "" {
		cfg.ToolName = defaultToolName
	}
	if cfg.ProcessingBaudrate == 0 {
		cfg.ProcessingBaudrate = processing.DefaultBaudRate
	}

	if cfg.ControlTimeSec < 0 {
		return nil, nil, fmt.Errorf("%s: control_time_sec must be positive, got %v", path, cfg.ControlTimeSec)
	}
	if cfg.DefaultMoveTimeSec < cfg.ControlTimeSec {
		return nil, nil, fmt.Errorf("%s: default_move_time_sec must be at least control_time_sec, got %v < %v",
			path, cfg.DefaultMoveTimeSec, cfg.ControlTimeSec)
	}
	if cfg.ProcessingBaudrate < 0 {
		return nil, nil, fmt.Errorf("%s: processing_baudrate must be positive, got %d", path, cfg.ProcessingBaudrate)
	}

	return nil, nil, nil
}

// simulateTime reports whether the background control loop should run.
func (cfg *Config) simulateTime() bool {
	return cfg.SimulateTime == nil || *cfg.SimulateTime
}

// key identifies the controller this config maps to.
func (cfg *Config) key() string {
	if cfg.DescriptionFile == "" {
		return defaultDescriptionName
	}
	return cfg.DescriptionFile
}

// LoadDescription loads the manipulator description from file or returns the built-in SCARA.
// Returns (description, fromFile) where fromFile indicates if loaded from file
func (cfg *Config) LoadDescription(logger logging.Logger) (manipulator.Description, bool) {
	if cfg.DescriptionFile == "" {
		if logger != nil {
			logger.Debug("No description file specified, using built-in SCARA")
		}
		return manipulator.DefaultSCARA(), false
	}

	path := resolveModuleDataPath(cfg.DescriptionFile)
	desc, err := manipulator.LoadDescriptionFile(path)
	if err != nil {
		if logger != nil {
			logger.Warnf("Failed to load description from %s: %v, using built-in SCARA", path, err)
		}
		return manipulator.DefaultSCARA(), false
	}

	if logger != nil {
		logger.Infof("Successfully loaded manipulator description %q from %s", desc.Name, path)
	}
	return desc, true
}

// resolveModuleDataPath places relative paths under VIAM_MODULE_DATA.
func resolveModuleDataPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
	if moduleDataDir == "" {
		moduleDataDir = "/tmp" // Fallback if VIAM_MODULE_DATA not set
	}
	return filepath.Join(moduleDataDir, path)
}

// configsEqual compares the fields that shape a shared controller.
func configsEqual(a, b *Config) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.key() == b.key() &&
		a.ControlTimeSec == b.ControlTimeSec &&
		a.simulateTime() == b.simulateTime() &&
		a.ProcessingPort == b.ProcessingPort &&
		a.ProcessingBaudrate == b.ProcessingBaudrate
}
