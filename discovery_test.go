package om_arm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/services/discovery"
)

func TestFilterCandidatePorts(t *testing.T) {
	tests := []struct {
		name     string
		ports    []string
		expected []string
	}{
		{
			name:     "Linux USB ports",
			ports:    []string{"/dev/ttyUSB0", "/dev/ttyS0", "/dev/ttyACM0", "/dev/null"},
			expected: []string{"/dev/ttyUSB0", "/dev/ttyACM0"},
		},
		{
			name:     "macOS USB ports",
			ports:    []string{"/dev/tty.usbmodem123", "/dev/tty.Bluetooth", "/dev/cu.usbserial-AB"},
			expected: []string{"/dev/tty.usbmodem123", "/dev/cu.usbserial-AB"},
		},
		{
			name:     "Windows COM ports",
			ports:    []string{"COM3", "COM10", "LPT1", "PRN"},
			expected: []string{"COM3", "COM10"},
		},
		{
			name:     "Empty list",
			ports:    []string{},
			expected: []string{},
		},
		{
			name:     "No matching ports",
			ports:    []string{"/dev/null", "/dev/zero"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filterCandidatePorts(tt.ports)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExtractPortSuffix(t *testing.T) {
	assert.Equal(t, "ttyUSB0", extractPortSuffix("/dev/ttyUSB0"))
	assert.Equal(t, "COM3", extractPortSuffix("COM3"))
	assert.Equal(t, "usbmodem123", extractPortSuffix("/dev/tty.usbmodem123"))
	assert.Equal(t, "usbserial-AB", extractPortSuffix("/dev/cu.usbserial-AB"))
}

func TestFindDescriptionFile(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	assert.Equal(t, "", findDescriptionFile(dir, "ttyUSB0", logger))

	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultDescriptionName+".json"), []byte("{}"), 0o644))
	assert.Equal(t, defaultDescriptionName+".json", findDescriptionFile(dir, "ttyUSB0", logger))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ttyUSB0_description.json"), []byte("{}"), 0o644))
	assert.Equal(t, "ttyUSB0_description.json", findDescriptionFile(dir, "ttyUSB0", logger))
}

func TestDiscoverResources(t *testing.T) {
	t.Setenv("VIAM_MODULE_DATA", t.TempDir())

	var probed []string
	dis := &omDiscovery{
		Named:    discovery.Named("test").AsNamed(),
		logger:   logging.NewTestLogger(t),
		baudrate: 57600,
		listPorts: func() []string {
			return []string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyACM1"}
		},
		probe: func(portPath string, baudrate int) bool {
			probed = append(probed, portPath)
			return portPath == "/dev/ttyUSB0"
		},
	}

	configs, err := dis.DiscoverResources(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM1"}, probed)
	require.Len(t, configs, 3)

	assert.Equal(t, "om-arm-ttyUSB0", configs[0].Name)
	assert.Equal(t, arm.API, configs[0].API)
	assert.Equal(t, SCARAModel, configs[0].Model)
	assert.Equal(t, gripper.API, configs[1].API)
	assert.Equal(t, PenModel, configs[1].Model)
	assert.Equal(t, sensor.API, configs[2].API)
	assert.Equal(t, StateSensorModel, configs[2].Model)

	for _, c := range configs {
		assert.Equal(t, "/dev/ttyUSB0", c.Attributes["processing_port"])
		assert.Equal(t, 57600, c.Attributes["processing_baudrate"])
		_, hasDescription := c.Attributes["description_file"]
		assert.False(t, hasDescription)
	}
}

func TestDiscoverResourcesCancelled(t *testing.T) {
	dis := &omDiscovery{
		logger:    logging.NewTestLogger(t),
		listPorts: func() []string { return []string{"/dev/ttyUSB0"} },
		probe:     func(string, int) bool { return true },
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	configs, err := dis.DiscoverResources(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, configs)
}
