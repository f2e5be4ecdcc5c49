package om_arm

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"

	"om_arm/processing"
)

var DiscoveryModel = resource.NewModel("devrel", "open-manipulator", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		DiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newDiscovery,
		})
}

// DiscoveryConfig is the configuration for the discovery service
type DiscoveryConfig struct {
	// Baud rate used to probe ports. Zero uses the Processing default.
	Baudrate int `json:"baudrate,omitempty"`
}

// Validate ensures the config is valid
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	return nil, nil, nil
}

// omDiscovery proposes arm, pen and state configs for each serial port a Processing GUI could be
// attached to.
type omDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger   logging.Logger
	baudrate int

	// probe and listPorts are replaced in tests.
	probe     func(portPath string, baudrate int) bool
	listPorts func() []string
}

func newDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}
	baudrate := cfg.Baudrate
	if baudrate == 0 {
		baudrate = processing.DefaultBaudRate
	}

	return &omDiscovery{
		Named:     conf.ResourceName().AsNamed(),
		logger:    logger,
		baudrate:  baudrate,
		probe:     probePort,
		listPorts: enumerateSerialPorts,
	}, nil
}

// DiscoverResources scans serial ports and returns component configurations
func (dis *omDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	dis.logger.Info("Starting OpenManipulator discovery")

	allPorts := dis.listPorts()
	dis.logger.Debugf("Found %d total serial ports", len(allPorts))

	candidates := filterCandidatePorts(allPorts)
	dis.logger.Debugf("Filtered to %d candidate ports", len(candidates))

	moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
	if moduleDataDir == "" {
		moduleDataDir = "/tmp"
	}

	var allConfigs []resource.Config
	for _, portPath := range candidates {
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return allConfigs, ctx.Err()
		default:
		}

		if !dis.probe(portPath, dis.baudrate) {
			dis.logger.Debugf("Could not open %s", portPath)
			continue
		}
		portSuffix := extractPortSuffix(portPath)
		descriptionFile := findDescriptionFile(moduleDataDir, portSuffix, dis.logger)
		allConfigs = append(allConfigs, generateConfigs(portPath, portSuffix, dis.baudrate, descriptionFile)...)
	}

	if len(allConfigs) == 0 {
		dis.logger.Info("No usable serial ports discovered")
	} else {
		dis.logger.Infof("Discovered %d component configurations", len(allConfigs))
	}

	return allConfigs, nil
}

// probePort reports whether the port can be opened at baudrate.
func probePort(portPath string, baudrate int) bool {
	port, err := processing.OpenSerial(portPath, baudrate, processing.DefaultReadTimeout)
	if err != nil {
		return false
	}
	port.Close()
	return true
}

// generateConfigs creates the arm, pen and state sensor configurations for one port
func generateConfigs(portPath, portSuffix string, baudrate int, descriptionFile string) []resource.Config {
	attrs := func() map[string]interface{} {
		a := map[string]interface{}{
			"processing_port":     portPath,
			"processing_baudrate": baudrate,
		}
		if descriptionFile != "" {
			a["description_file"] = descriptionFile
		}
		return a
	}

	return []resource.Config{
		{
			Name:       "om-arm-" + portSuffix,
			API:        arm.API,
			Model:      SCARAModel,
			Attributes: attrs(),
		},
		{
			Name:       "om-pen-" + portSuffix,
			API:        gripper.API,
			Model:      PenModel,
			Attributes: attrs(),
		},
		{
			Name:       "om-state-" + portSuffix,
			API:        sensor.API,
			Model:      StateSensorModel,
			Attributes: attrs(),
		},
	}
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks if a port looks like a USB serial adapter
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	for _, prefix := range []string{"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial"} {
		if strings.HasPrefix(port, prefix) {
			return true
		}
	}
	// Windows: COM*
	return strings.HasPrefix(port, "COM")
}

// extractPortSuffix extracts a friendly suffix from port path for naming
// /dev/ttyUSB0 -> "ttyUSB0"
// COM3 -> "COM3"
// /dev/tty.usbmodem123 -> "usbmodem123"
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)
	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}

// findDescriptionFile looks for ttyUSB0_description.json, then the default description name.
// Returns just the filename or empty string if not found.
func findDescriptionFile(moduleDataDir, portSuffix string, logger logging.Logger) string {
	portSpecific := portSuffix + "_description.json"
	if _, err := os.Stat(filepath.Join(moduleDataDir, portSpecific)); err == nil {
		logger.Debugf("Found port-specific description file: %s", portSpecific)
		return portSpecific
	}

	defaultFile := defaultDescriptionName + ".json"
	if _, err := os.Stat(filepath.Join(moduleDataDir, defaultFile)); err == nil {
		logger.Debugf("Found default description file: %s", defaultFile)
		return defaultFile
	}

	logger.Debug("No description file found")
	return ""
}

// enumerateSerialPorts returns a list of all serial ports on the system
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
