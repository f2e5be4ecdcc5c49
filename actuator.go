package om_arm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	errActuatorClosed = errors.New("actuator is closed")
	errUnknownID      = errors.New("unknown actuator id")
)

// Actuator drives joints and tools. Values are in actuator units, which are the joint angle times
// the joint's coefficient.
type Actuator interface {
	WriteJointValues(ctx context.Context, ids []int, values []float64) error
	ReadJointValues(ctx context.Context, ids []int) ([]float64, error)
	WriteToolValue(ctx context.Context, id int, value float64) error
	ReadToolValue(ctx context.Context, id int) (float64, error)
	SetTorque(ctx context.Context, enable bool) error
	Close() error
}

// CoefficientConverter maps angles to actuator units per id.
type CoefficientConverter struct {
	coefficients map[int]float64
}

// NewCoefficientConverter pairs ids with their coefficients. Zero coefficients are rejected since
// they cannot be inverted.
func NewCoefficientConverter(ids []int, coefficients []float64) (*CoefficientConverter, error) {
	if len(ids) != len(coefficients) {
		return nil, fmt.Errorf("got %d ids and %d coefficients", len(ids), len(coefficients))
	}
	c := &CoefficientConverter{coefficients: make(map[int]float64, len(ids))}
	for i, id := range ids {
		if coefficients[i] == 0 {
			return nil, fmt.Errorf("invalid coefficient for id %d: must be non-zero", id)
		}
		c.coefficients[id] = coefficients[i]
	}
	return c, nil
}

// Add registers one more id.
func (c *CoefficientConverter) Add(id int, coefficient float64) error {
	if coefficient == 0 {
		return fmt.Errorf("invalid coefficient for id %d: must be non-zero", id)
	}
	c.coefficients[id] = coefficient
	return nil
}

// ToActuator converts an angle or tool value to actuator units.
func (c *CoefficientConverter) ToActuator(id int, value float64) (float64, error) {
	k, ok := c.coefficients[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", errUnknownID, id)
	}
	return value * k, nil
}

// FromActuator converts actuator units back to an angle or tool value.
func (c *CoefficientConverter) FromActuator(id int, value float64) (float64, error) {
	k, ok := c.coefficients[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", errUnknownID, id)
	}
	return value / k, nil
}

// calibratedBus wraps an Actuator with coefficient conversion
type calibratedBus struct {
	bus       Actuator
	converter *CoefficientConverter
	mu        sync.Mutex
}

func newCalibratedBus(bus Actuator, converter *CoefficientConverter) *calibratedBus {
	return &calibratedBus{bus: bus, converter: converter}
}

// WriteJointAngles converts angles and writes them in one bus transaction.
func (cb *calibratedBus) WriteJointAngles(ctx context.Context, ids []int, angles []float64) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	values := make([]float64, len(angles))
	for i, angle := range angles {
		v, err := cb.converter.ToActuator(ids[i], angle)
		if err != nil {
			return err
		}
		values[i] = v
	}
	if err := cb.bus.WriteJointValues(ctx, ids, values); err != nil {
		return fmt.Errorf("failed to write joint values: %w", err)
	}
	return nil
}

// ReadJointAngles reads and converts joint positions.
func (cb *calibratedBus) ReadJointAngles(ctx context.Context, ids []int) ([]float64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	values, err := cb.bus.ReadJointValues(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read joint values: %w", err)
	}
	angles := make([]float64, len(values))
	for i, v := range values {
		a, err := cb.converter.FromActuator(ids[i], v)
		if err != nil {
			return nil, err
		}
		angles[i] = a
	}
	return angles, nil
}

// WriteTool converts and writes a tool value.
func (cb *calibratedBus) WriteTool(ctx context.Context, id int, value float64) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	v, err := cb.converter.ToActuator(id, value)
	if err != nil {
		return err
	}
	if err := cb.bus.WriteToolValue(ctx, id, v); err != nil {
		return fmt.Errorf("failed to write tool value: %w", err)
	}
	return nil
}

// ReadTool reads and converts a tool value.
func (cb *calibratedBus) ReadTool(ctx context.Context, id int) (float64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	v, err := cb.bus.ReadToolValue(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to read tool value: %w", err)
	}
	return cb.converter.FromActuator(id, v)
}

// SetTorque enables or disables every actuator on the bus.
func (cb *calibratedBus) SetTorque(ctx context.Context, enable bool) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.bus.SetTorque(ctx, enable)
}

func (cb *calibratedBus) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.bus.Close()
}

// SimActuator is an in-memory bus. Reads return the last written value.
type SimActuator struct {
	mu     sync.Mutex
	joints map[int]float64
	tools  map[int]float64
	torque bool
	writes int
	closed bool
}

// NewSimActuator returns a bus with the given joint and tool ids at zero.
func NewSimActuator(jointIDs, toolIDs []int) *SimActuator {
	s := &SimActuator{
		joints: make(map[int]float64, len(jointIDs)),
		tools:  make(map[int]float64, len(toolIDs)),
	}
	for _, id := range jointIDs {
		s.joints[id] = 0
	}
	for _, id := range toolIDs {
		s.tools[id] = 0
	}
	return s
}

func (s *SimActuator) WriteJointValues(ctx context.Context, ids []int, values []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errActuatorClosed
	}
	if len(ids) != len(values) {
		return fmt.Errorf("got %d ids and %d values", len(ids), len(values))
	}
	for _, id := range ids {
		if _, ok := s.joints[id]; !ok {
			return fmt.Errorf("%w: joint %d", errUnknownID, id)
		}
	}
	for i, id := range ids {
		s.joints[id] = values[i]
	}
	s.writes++
	return nil
}

func (s *SimActuator) ReadJointValues(ctx context.Context, ids []int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errActuatorClosed
	}
	out := make([]float64, len(ids))
	for i, id := range ids {
		v, ok := s.joints[id]
		if !ok {
			return nil, fmt.Errorf("%w: joint %d", errUnknownID, id)
		}
		out[i] = v
	}
	return out, nil
}

func (s *SimActuator) WriteToolValue(ctx context.Context, id int, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errActuatorClosed
	}
	if _, ok := s.tools[id]; !ok {
		return fmt.Errorf("%w: tool %d", errUnknownID, id)
	}
	s.tools[id] = value
	s.writes++
	return nil
}

func (s *SimActuator) ReadToolValue(ctx context.Context, id int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errActuatorClosed
	}
	v, ok := s.tools[id]
	if !ok {
		return 0, fmt.Errorf("%w: tool %d", errUnknownID, id)
	}
	return v, nil
}

func (s *SimActuator) SetTorque(ctx context.Context, enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errActuatorClosed
	}
	s.torque = enable
	return nil
}

// Torque reports whether torque is enabled.
func (s *SimActuator) Torque() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torque
}

// Writes returns the number of successful write transactions.
func (s *SimActuator) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *SimActuator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
