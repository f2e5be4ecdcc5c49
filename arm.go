package om_arm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/motionplan/armplanning"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"

	"om_arm/drawing"
)

var (
	SCARAModel = resource.NewModel("devrel", "open-manipulator", "scara")
)

func init() {
	resource.RegisterComponent(arm.API, SCARAModel,
		resource.Registration[arm.Arm, *Config]{
			Constructor: newSCARAArm,
		},
	)
}

// Main arm structure
type scaraArm struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	cfg        *Config
	opMgr      *operation.SingleOperationManager
	controller *Controller

	mu    sync.RWMutex
	model referenceframe.Model
}

func newSCARAArm(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (arm.Arm, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger
	return NewSCARA(ctx, rawConf.ResourceName(), conf, logger)
}

// NewSCARA returns an arm driving the shared controller for conf.
func NewSCARA(ctx context.Context, name resource.Name, conf *Config, logger logging.Logger) (arm.Arm, error) {
	if conf.Logger == nil {
		conf.Logger = logger
	}

	controller, err := GetSharedController(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize motion controller: %w", err)
	}

	desc, _ := sharedDescription(conf)
	model, err := createKinematicsModel(desc, controller.ToolName())
	if err != nil {
		ReleaseSharedController(conf)
		return nil, fmt.Errorf("failed to create kinematic model: %w", err)
	}

	s := &scaraArm{
		name:       name,
		logger:     logger,
		cfg:        conf,
		opMgr:      operation.NewSingleOperationManager(),
		controller: controller,
		model:      model,
	}

	if err := controller.SetTorque(ctx, true); err != nil {
		logger.Warnf("Failed to enable torque: %v", err)
	}

	logger.Infof("%s arm initialized with %d joints, tool %q", desc.Name, len(model.DoF()), controller.ToolName())
	return s, nil
}

func (s *scaraArm) Name() resource.Name {
	return s.name
}

func (s *scaraArm) EndPosition(ctx context.Context, extra map[string]interface{}) (spatialmath.Pose, error) {
	pose, err := s.controller.ToolPose(s.controller.ToolName())
	if err != nil {
		return nil, fmt.Errorf("failed to compute end position: %w", err)
	}
	return pose.Spatial(), nil
}

func (s *scaraArm) MoveToPosition(ctx context.Context, pose spatialmath.Pose, extra map[string]interface{}) error {
	if err := armplanning.MoveArm(ctx, s.logger, s, pose); err != nil {
		return err
	}
	return nil
}

func (s *scaraArm) MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error {
	ctx, done := s.opMgr.New(ctx)
	defer done()
	return s.moveToJointPositions(ctx, positions, moveTimeFromExtra(extra))
}

func (s *scaraArm) moveToJointPositions(ctx context.Context, positions []referenceframe.Input, moveTime float64) error {
	id, err := s.controller.JointMove(ctx, referenceframe.InputsToFloats(positions), moveTime)
	if err != nil {
		return fmt.Errorf("failed to move to joint positions: %w", err)
	}
	return s.await(ctx, id)
}

// await blocks on a controller move and abandons it when ctx is cancelled.
func (s *scaraArm) await(ctx context.Context, id uuid.UUID) error {
	err := s.controller.Await(ctx, id)
	if ctx.Err() != nil {
		s.controller.StopMove(id)
	}
	return err
}

func (s *scaraArm) MoveThroughJointPositions(ctx context.Context, positions [][]referenceframe.Input, options *arm.MoveOptions, extra map[string]interface{}) error {
	ctx, done := s.opMgr.New(ctx)
	defer done()
	moveTime := moveTimeFromExtra(extra)
	for _, jointPositions := range positions {
		if err := s.moveToJointPositions(ctx, jointPositions, moveTime); err != nil {
			return err
		}
	}
	return nil
}

func (s *scaraArm) JointPositions(ctx context.Context, extra map[string]interface{}) ([]referenceframe.Input, error) {
	return referenceframe.FloatsToInputs(s.controller.JointAngles()), nil
}

func (s *scaraArm) Stop(ctx context.Context, extra map[string]interface{}) error {
	s.opMgr.CancelRunning(ctx)
	s.controller.Stop()
	return nil
}

func (s *scaraArm) Kinematics(ctx context.Context) (referenceframe.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model, nil
}

func (s *scaraArm) CurrentInputs(ctx context.Context) ([]referenceframe.Input, error) {
	return s.JointPositions(ctx, nil)
}

func (s *scaraArm) GoToInputs(ctx context.Context, inputSteps ...[]referenceframe.Input) error {
	return s.MoveThroughJointPositions(ctx, inputSteps, nil, nil)
}

func (s *scaraArm) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "draw":
		shape, err := shapeFromCommand(cmd)
		if err != nil {
			return nil, err
		}
		ctx, done := s.opMgr.New(ctx)
		defer done()
		id, err := s.controller.Draw(ctx, s.controller.ToolName(), shape, moveTimeFromExtra(cmd))
		if err != nil {
			return nil, err
		}
		if wait, _ := cmd["wait"].(bool); wait {
			if err := s.await(ctx, id); err != nil {
				return nil, err
			}
		}
		return map[string]interface{}{"move_id": id.String(), "shape": shape.Kind.String()}, nil

	case "draw_line":
		delta := r3.Vector{}
		delta.X, _ = cmd["x"].(float64)
		delta.Y, _ = cmd["y"].(float64)
		delta.Z, _ = cmd["z"].(float64)
		id, err := s.controller.DrawLine(ctx, s.controller.ToolName(), delta, moveTimeFromExtra(cmd))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"move_id": id.String()}, nil

	case "tool_move":
		value, ok := cmd["value"].(float64)
		if !ok {
			return nil, fmt.Errorf("tool_move command requires 'value' number parameter")
		}
		name := s.controller.ToolName()
		if n, ok := cmd["tool"].(string); ok && n != "" {
			name = n
		}
		err := s.controller.ToolMove(ctx, name, value)
		return map[string]interface{}{"success": err == nil}, err

	case "set_control_time":
		controlTime, ok := cmd["control_time"].(float64)
		if !ok {
			return nil, fmt.Errorf("set_control_time command requires 'control_time' number parameter")
		}
		if err := s.controller.SetControlTime(controlTime); err != nil {
			return nil, err
		}
		return map[string]interface{}{"control_time": controlTime}, nil

	case "set_torque":
		enable, ok := cmd["enable"].(bool)
		if !ok {
			return nil, fmt.Errorf("set_torque command requires 'enable' boolean parameter")
		}
		err := s.controller.SetTorque(ctx, enable)
		return map[string]interface{}{"success": err == nil}, err

	case "demo":
		start, ok := cmd["start"].(bool)
		if !ok {
			return nil, fmt.Errorf("demo command requires 'start' boolean parameter")
		}
		if start {
			s.controller.StartDemo()
		} else {
			s.controller.StopDemo()
		}
		return map[string]interface{}{"demo": start}, nil

	case "state":
		return s.controller.State(), nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (s *scaraArm) IsMoving(ctx context.Context) (bool, error) {
	return s.controller.IsMoving() || s.opMgr.OpRunning(), nil
}

func (s *scaraArm) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	inputs, err := s.CurrentInputs(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	gif, err := s.model.Geometries(inputs)
	if err != nil {
		return nil, err
	}
	return gif.Geometries(), nil
}

func (s *scaraArm) Close(context.Context) error {
	s.logger.Info("Closing arm")
	s.controller.Stop()
	ReleaseSharedController(s.cfg)
	return nil
}

// moveTimeFromExtra reads an optional "move_time" in seconds. Zero selects the default.
func moveTimeFromExtra(extra map[string]interface{}) float64 {
	if extra == nil {
		return 0
	}
	if v, ok := extra["move_time"].(float64); ok && v > 0 {
		return v
	}
	return 0
}

var errMissingShape = errors.New("draw command requires a 'shape' string parameter")

// shapeFromCommand reads a drawing shape: shape name, radius in meters, start_angle in radians,
// revolutions for spirals and x/y/z for lines.
func shapeFromCommand(cmd map[string]interface{}) (drawing.Shape, error) {
	name, ok := cmd["shape"].(string)
	if !ok {
		return drawing.Shape{}, errMissingShape
	}
	kind, err := drawing.ParseKind(name)
	if err != nil {
		return drawing.Shape{}, err
	}
	shape := drawing.Shape{Kind: kind}
	shape.Radius, _ = cmd["radius"].(float64)
	shape.StartAngle, _ = cmd["start_angle"].(float64)
	shape.Revolutions, _ = cmd["revolutions"].(float64)
	shape.Delta.X, _ = cmd["x"].(float64)
	shape.Delta.Y, _ = cmd["y"].(float64)
	shape.Delta.Z, _ = cmd["z"].(float64)
	return shape, nil
}
