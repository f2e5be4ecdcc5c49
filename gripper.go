package om_arm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"

	"om_arm/processing"
)

var (
	PenModel = resource.NewModel("devrel", "open-manipulator", "pen")
)

func init() {
	resource.RegisterComponent(
		gripper.API,
		PenModel,
		resource.Registration[gripper.Gripper, *Config]{
			Constructor: newPenGripper,
		},
	)
}

// penGripper drives the tool of the shared controller. Open lifts the pen and Grab lowers it.
type penGripper struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	cfg        *Config
	controller *Controller
	geometries []spatialmath.Geometry

	mu       sync.Mutex
	isMoving atomic.Bool

	openValue   float64
	closedValue float64
}

func newPenGripper(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (gripper.Gripper, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}
	cfg.Logger = logger

	controller, err := GetSharedController(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get shared controller for gripper: %w", err)
	}

	penSize := r3.Vector{X: 12, Y: 12, Z: 60}
	pen, err := spatialmath.NewBox(spatialmath.NewPoseFromPoint(r3.Vector{X: 0, Y: 0, Z: -penSize.Z / 2}), penSize, "pen")
	if err != nil {
		ReleaseSharedController(cfg)
		return nil, err
	}

	g := &penGripper{
		name:        conf.ResourceName(),
		logger:      logger,
		cfg:         cfg,
		controller:  controller,
		geometries:  []spatialmath.Geometry{pen},
		openValue:   processing.ToolOff,
		closedValue: processing.ToolOn,
	}

	logger.Debugf("pen gripper initialized on tool %q, open=%.2f, closed=%.2f",
		controller.ToolName(), g.openValue, g.closedValue)

	return g, nil
}

func (g *penGripper) Name() resource.Name {
	return g.name
}

func (g *penGripper) Open(ctx context.Context, extra map[string]interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.isMoving.Store(true)
	defer g.isMoving.Store(false)

	g.logger.Debug("Lifting pen")
	if err := g.controller.ToolMove(ctx, g.controller.ToolName(), g.openValue); err != nil {
		return fmt.Errorf("failed to open gripper: %w", err)
	}
	return nil
}

// Grab lowers the pen. A pen holds nothing, so it never reports a grab.
func (g *penGripper) Grab(ctx context.Context, extra map[string]interface{}) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.isMoving.Store(true)
	defer g.isMoving.Store(false)

	g.logger.Debug("Lowering pen")
	if err := g.controller.ToolMove(ctx, g.controller.ToolName(), g.closedValue); err != nil {
		return false, fmt.Errorf("failed to close gripper: %w", err)
	}
	return false, nil
}

func (g *penGripper) Stop(ctx context.Context, extra map[string]interface{}) error {
	g.isMoving.Store(false)
	return nil
}

func (g *penGripper) IsMoving(ctx context.Context) (bool, error) {
	return g.isMoving.Load(), nil
}

func (g *penGripper) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.geometries, nil
}

func (g *penGripper) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "get_position":
		value, err := g.controller.ToolValue(g.controller.ToolName())
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"value":        value,
			"open_value":   g.openValue,
			"closed_value": g.closedValue,
		}, nil

	case "set_position":
		value, ok := cmd["value"].(float64)
		if !ok {
			return nil, fmt.Errorf("set_position command requires 'value' number parameter")
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if err := g.controller.ToolMove(ctx, g.controller.ToolName(), value); err != nil {
			return nil, err
		}
		return map[string]interface{}{"value": value}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (g *penGripper) Close(ctx context.Context) error {
	ReleaseSharedController(g.cfg)
	return nil
}

func (g *penGripper) CurrentInputs(ctx context.Context) ([]referenceframe.Input, error) {
	return nil, errors.ErrUnsupported
}

func (g *penGripper) GoToInputs(ctx context.Context, inputs ...[]referenceframe.Input) error {
	return errors.ErrUnsupported
}

func (g *penGripper) Kinematics(ctx context.Context) (referenceframe.Model, error) {
	return nil, errors.ErrUnsupported
}

func (g *penGripper) IsHoldingSomething(ctx context.Context, extra map[string]interface{}) (gripper.HoldingStatus, error) {
	return gripper.HoldingStatus{}, errors.ErrUnsupported
}
