package om_arm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils"

	"om_arm/drawing"
	"om_arm/manipulator"
	"om_arm/processing"
	"om_arm/trajectory"
)

var (
	// ErrNoInverseSolver is returned for task space moves on a controller without a solver.
	ErrNoInverseSolver = errors.New("no inverse solver configured for task space moves")

	errControllerClosed = errors.New("controller is closed")
	errMoving           = errors.New("cannot change control time while moving")
)

// InverseSolver maps a tool pose in the world frame, in millimeters, to active joint angles.
// current holds the active joint angles the solve starts from.
type InverseSolver interface {
	Solve(ctx context.Context, tool string, current []float64, target spatialmath.Pose) ([]float64, error)
}

// ControllerOptions tune a Controller. Zero values take the module defaults.
type ControllerOptions struct {
	ControlTime     float64
	DefaultMoveTime float64
	ToolName        string
	Solver          InverseSolver
}

type moveKind int

const (
	moveNone moveKind = iota
	moveJoint
	moveTask
	moveDraw
)

func (k moveKind) String() string {
	switch k {
	case moveJoint:
		return "joint"
	case moveTask:
		return "task"
	case moveDraw:
		return "draw"
	default:
		return "none"
	}
}

// move is the trajectory being executed. tick counts samples already written.
type move struct {
	kind  moveKind
	id    uuid.UUID
	tool  string
	tick  int
	steps int
}

// Controller runs the control loop of one manipulator: it samples the active trajectory every
// control tick, propagates poses and writes joint targets to the actuator bus.
type Controller struct {
	logger logging.Logger
	m      *manipulator.Manipulator
	bus    *calibratedBus
	solver InverseSolver

	jointIDs []int
	toolIDs  map[string]int
	mins     []float64
	maxs     []float64
	toolName string

	mu              sync.Mutex
	controlTime     float64
	defaultMoveTime float64
	joint           *trajectory.JointTrajectory
	task            *trajectory.TaskTrajectory
	draw            *drawing.Context
	current         move
	last            move
	lastErr         error
	previous        []trajectory.WayPoint
	torque          bool
	demo            *demo
	closed          bool

	worker     *utils.StoppableWorkers
	link       *processing.Link
	linkCloser io.Closer
	linkWorker *utils.StoppableWorkers
}

// NewController builds the manipulator from desc and binds it to bus. The controller does not tick
// until Start or Tick is called.
func NewController(desc manipulator.Description, bus Actuator, opts ControllerOptions, logger logging.Logger) (*Controller, error) {
	m, err := desc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build manipulator %q: %w", desc.Name, err)
	}

	if opts.ControlTime == 0 {
		opts.ControlTime = defaultControlTimeSec
	}
	if opts.DefaultMoveTime == 0 {
		opts.DefaultMoveTime = defaultMoveTimeSec
	}
	if _, _, err := trajectory.QuantizeMoveTime(opts.DefaultMoveTime, opts.ControlTime); err != nil {
		return nil, err
	}

	jointIDs := m.AllActiveJointIDs()
	converter, err := NewCoefficientConverter(jointIDs, m.AllActiveJointCoefficients())
	if err != nil {
		return nil, err
	}
	toolIDs := map[string]int{}
	for _, name := range m.ToolNames() {
		tool, err := m.ComponentTool(name)
		if err != nil {
			return nil, err
		}
		if err := converter.Add(tool.ID, tool.Coefficient); err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		toolIDs[name] = tool.ID
	}
	if opts.ToolName == "" {
		opts.ToolName = defaultToolName
	}
	if _, ok := toolIDs[opts.ToolName]; !ok && len(toolIDs) > 0 {
		return nil, fmt.Errorf("%w: tool %q", manipulator.ErrComponentNotFound, opts.ToolName)
	}

	mins, maxs := desc.ActiveJointLimits()
	c := &Controller{
		logger:          logger,
		m:               m,
		bus:             newCalibratedBus(bus, converter),
		solver:          opts.Solver,
		jointIDs:        jointIDs,
		toolIDs:         toolIDs,
		mins:            mins,
		maxs:            maxs,
		toolName:        opts.ToolName,
		controlTime:     opts.ControlTime,
		defaultMoveTime: opts.DefaultMoveTime,
		joint:           trajectory.NewJointTrajectory(m.DOF()),
		task:            trajectory.NewTaskTrajectory(),
	}
	return c, nil
}

// Manipulator exposes the controlled manipulator. Callers must not mutate it while the controller
// is running.
func (c *Controller) Manipulator() *manipulator.Manipulator {
	return c.m
}

// ToolName is the tool driven by the gripper and used for drawing.
func (c *Controller) ToolName() string {
	return c.toolName
}

// ControlTime returns the tick period in seconds.
func (c *Controller) ControlTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlTime
}

// SetControlTime changes the tick period. It is rejected while a move is running.
func (c *Controller) SetControlTime(controlTime float64) error {
	c.mu.Lock()
	if c.current.kind != moveNone {
		c.mu.Unlock()
		return errMoving
	}
	if _, _, err := trajectory.QuantizeMoveTime(c.defaultMoveTime, controlTime); err != nil {
		c.mu.Unlock()
		return err
	}
	c.controlTime = controlTime
	restart := c.worker != nil
	c.mu.Unlock()

	if restart {
		c.stopWorker()
		c.Start()
	}
	c.logger.Infof("control time set to %v s", controlTime)
	return nil
}

// Start runs Tick on a background ticker at the control time. Calling Start twice is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker != nil || c.closed {
		return
	}
	period := time.Duration(c.controlTime * float64(time.Second))
	c.worker = utils.NewStoppableWorkerWithTicker(period, func(ctx context.Context) {
		if err := c.Tick(ctx); err != nil {
			c.logger.Debugf("control tick failed: %v", err)
		}
	})
}

func (c *Controller) stopWorker() {
	c.mu.Lock()
	w := c.worker
	c.worker = nil
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// SyncFromActuator reads joint angles from the bus into the manipulator.
func (c *Controller) SyncFromActuator(ctx context.Context) error {
	angles, err := c.bus.ReadJointAngles(ctx, c.jointIDs)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.m.SetAllActiveJointAngle(angles); err != nil {
		return err
	}
	return c.m.UpdatePoses()
}

// SetTorque enables or disables the actuators. Enabling re-reads the joint angles so the next move
// starts where the arm actually is.
func (c *Controller) SetTorque(ctx context.Context, enable bool) error {
	if err := c.bus.SetTorque(ctx, enable); err != nil {
		return err
	}
	c.mu.Lock()
	c.torque = enable
	c.mu.Unlock()
	if enable {
		return c.SyncFromActuator(ctx)
	}
	return nil
}

// Torque reports the last torque state written.
func (c *Controller) Torque() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.torque
}

// JointMove starts a joint space move from the current joint state to goal. Goals outside the
// joint limits are clamped. moveTime <= 0 uses the default move time.
func (c *Controller) JointMove(ctx context.Context, goal []float64, moveTime float64) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return uuid.Nil, errControllerClosed
	}
	if len(goal) != c.m.DOF() {
		return uuid.Nil, fmt.Errorf("%w: goal has %d angles, manipulator has %d joints",
			manipulator.ErrSizeMismatch, len(goal), c.m.DOF())
	}
	if moveTime <= 0 {
		moveTime = c.defaultMoveTime
	}
	goal = c.clamp(goal)

	start := c.m.AllActiveJointWayPoints()
	if err := c.joint.Init(moveTime, c.controlTime, start, trajectory.WayPointsFromValues(goal)); err != nil {
		return uuid.Nil, err
	}
	steps, effective, err := trajectory.QuantizeMoveTime(moveTime, c.controlTime)
	if err != nil {
		return uuid.Nil, err
	}
	id := c.begin(moveJoint, steps, "")
	c.logger.Debugf("joint move %s to %v over %v s", id, goal, effective)
	return id, nil
}

// ToolMove sets a tool value and writes it to the bus. Values above ToolOff mark the tool on.
func (c *Controller) ToolMove(ctx context.Context, name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errControllerClosed
	}
	id, ok := c.toolIDs[name]
	if !ok {
		return fmt.Errorf("%w: tool %q", manipulator.ErrComponentNotFound, name)
	}
	// The bus goes first so a failed write leaves the commanded value untouched.
	if err := c.bus.WriteTool(ctx, id, value); err != nil {
		return err
	}
	if err := c.m.SetComponentToolValue(name, value); err != nil {
		return err
	}
	return c.m.SetComponentToolOnOff(name, value > processing.ToolOff)
}

// ToolValue returns the commanded value of a tool.
func (c *Controller) ToolValue(name string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.ComponentToolValue(name)
}

// TaskMove moves a tool to target in a straight task space line. Every sample is mapped to joint
// angles by the inverse solver.
func (c *Controller) TaskMove(ctx context.Context, tool string, target manipulator.Pose, moveTime float64) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkTaskMove(tool); err != nil {
		return uuid.Nil, err
	}
	if moveTime <= 0 {
		moveTime = c.defaultMoveTime
	}
	start, err := c.m.ToolPose(tool)
	if err != nil {
		return uuid.Nil, err
	}
	if err := c.task.InitPose(moveTime, c.controlTime, start.Spatial(), target.Spatial()); err != nil {
		return uuid.Nil, err
	}
	steps, _, err := trajectory.QuantizeMoveTime(moveTime, c.controlTime)
	if err != nil {
		return uuid.Nil, err
	}
	id := c.begin(moveTask, steps, tool)
	c.logger.Debugf("task move %s of %s to %v", id, tool, target.Position)
	return id, nil
}

// DrawLine moves a tool by delta meters, keeping its orientation.
func (c *Controller) DrawLine(ctx context.Context, tool string, delta r3.Vector, moveTime float64) (uuid.UUID, error) {
	c.mu.Lock()
	target, err := c.m.ToolPose(tool)
	c.mu.Unlock()
	if err != nil {
		return uuid.Nil, err
	}
	target.Position = target.Position.Add(delta)
	return c.TaskMove(ctx, tool, target, moveTime)
}

// Draw traces a preset shape starting at the tool's current position.
func (c *Controller) Draw(ctx context.Context, tool string, shape drawing.Shape, moveTime float64) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkTaskMove(tool); err != nil {
		return uuid.Nil, err
	}
	if moveTime <= 0 {
		moveTime = c.defaultMoveTime
	}
	start, err := c.m.ComponentPositionToWorld(tool)
	if err != nil {
		return uuid.Nil, err
	}
	dc, err := drawing.Init(shape, start, moveTime, c.controlTime)
	if err != nil {
		return uuid.Nil, err
	}
	steps, _, err := trajectory.QuantizeMoveTime(moveTime, c.controlTime)
	if err != nil {
		return uuid.Nil, err
	}
	c.draw = dc
	id := c.begin(moveDraw, steps, tool)
	c.logger.Debugf("drawing %s %s with %s over %v s", shape.Kind, id, tool, dc.MoveTime)
	return id, nil
}

func (c *Controller) checkTaskMove(tool string) error {
	if c.closed {
		return errControllerClosed
	}
	if c.solver == nil {
		return ErrNoInverseSolver
	}
	if _, ok := c.toolIDs[tool]; !ok {
		return fmt.Errorf("%w: tool %q", manipulator.ErrComponentNotFound, tool)
	}
	return nil
}

// begin replaces the running move. Caller holds mu.
func (c *Controller) begin(kind moveKind, steps int, tool string) uuid.UUID {
	if c.current.kind != moveNone {
		c.logger.Debugf("%s move %s preempted", c.current.kind, c.current.id)
	}
	c.current = move{kind: kind, id: uuid.New(), tool: tool, steps: steps}
	c.previous = c.m.AllActiveJointWayPoints()
	c.lastErr = nil
	return c.current.id
}

// Tick runs one control step. It is a no-op while idle, except for advancing a running demo.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errControllerClosed
	}
	if c.current.kind == moveNone {
		d := c.demo
		c.mu.Unlock()
		if d != nil {
			return d.next(ctx, c)
		}
		return nil
	}
	defer c.mu.Unlock()

	tick := float64(c.current.tick) * c.controlTime
	goal, err := c.sample(ctx, tick)
	if err != nil {
		c.abort(err)
		return err
	}
	if err := c.m.SetAllActiveJointWayPoints(goal); err != nil {
		c.abort(err)
		return err
	}
	if err := c.m.UpdatePoses(); err != nil {
		c.abort(err)
		return err
	}
	angles := trajectory.Values(goal)
	if err := c.bus.WriteJointAngles(ctx, c.jointIDs, angles); err != nil {
		c.abort(err)
		return err
	}
	if c.link != nil {
		if err := c.link.SendAngles(angles); err != nil {
			c.logger.Debugf("failed to send angles to processing: %v", err)
		}
	}
	c.previous = goal

	c.current.tick++
	if c.current.tick >= c.current.steps {
		c.logger.Debugf("%s move %s finished", c.current.kind, c.current.id)
		c.last = c.current
		c.current = move{}
		c.draw = nil
	}
	return nil
}

// sample returns the joint way-points of the running move at tick. Caller holds mu.
func (c *Controller) sample(ctx context.Context, tick float64) ([]trajectory.WayPoint, error) {
	var target spatialmath.Pose
	switch c.current.kind {
	case moveJoint:
		return c.joint.Sample(tick), nil
	case moveTask:
		target = c.task.SamplePose(tick)
	case moveDraw:
		target = drawing.Sample(c.draw, tick).Spatial()
	default:
		return nil, fmt.Errorf("no move to sample")
	}

	current := c.m.AllActiveJointAngles()
	angles, err := c.solver.Solve(ctx, c.current.tool, current, target)
	if err != nil {
		return nil, fmt.Errorf("inverse solve at %v s: %w", tick, err)
	}
	if len(angles) != len(current) {
		return nil, fmt.Errorf("%w: solver returned %d angles for %d joints",
			manipulator.ErrSizeMismatch, len(angles), len(current))
	}
	angles = c.clamp(angles)

	// Velocity and acceleration by finite difference against the previous tick.
	goal := make([]trajectory.WayPoint, len(angles))
	for i, a := range angles {
		v := (a - c.previous[i].Value) / c.controlTime
		goal[i] = trajectory.WayPoint{
			Value:    a,
			Velocity: v,
			Effort:   (v - c.previous[i].Velocity) / c.controlTime,
		}
	}
	return goal, nil
}

func (c *Controller) abort(err error) {
	c.logger.Warnf("%s move %s aborted: %v", c.current.kind, c.current.id, err)
	c.last = c.current
	c.lastErr = err
	c.current = move{}
	c.draw = nil
}

// clamp limits angles to the joint limits. Joints whose limits are both zero are unlimited.
func (c *Controller) clamp(angles []float64) []float64 {
	out := make([]float64, len(angles))
	copy(out, angles)
	if len(c.mins) != len(out) {
		return out
	}
	for i, a := range out {
		lo, hi := c.mins[i], c.maxs[i]
		if lo == 0 && hi == 0 {
			continue
		}
		if clamped := math.Max(lo, math.Min(hi, a)); clamped != a {
			c.logger.Warnf("joint %d target %.4f outside [%.4f, %.4f], clamped", c.jointIDs[i], a, lo, hi)
			out[i] = clamped
		}
	}
	return out
}

// IsMoving reports whether a trajectory is being executed.
func (c *Controller) IsMoving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.kind != moveNone
}

// Wait blocks until the running move finishes or ctx is done. It returns the error that aborted
// the move, if any.
func (c *Controller) Wait(ctx context.Context, id uuid.UUID) error {
	for {
		c.mu.Lock()
		running := c.current.kind != moveNone && c.current.id == id
		var err error
		if !running && c.last.id == id {
			err = c.lastErr
		}
		c.mu.Unlock()
		if !running {
			return err
		}
		if !utils.SelectContextOrWait(ctx, time.Millisecond) {
			return ctx.Err()
		}
	}
}

// Await blocks until move id finishes. Without a running control loop it drives the ticks itself.
func (c *Controller) Await(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	looping := c.worker != nil
	c.mu.Unlock()
	if looping {
		return c.Wait(ctx, id)
	}
	for {
		c.mu.Lock()
		running := c.current.kind != moveNone && c.current.id == id
		c.mu.Unlock()
		if !running {
			return c.Wait(ctx, id)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Tick(ctx); err != nil {
			return err
		}
	}
}

// StopMove abandons move id if it is still running.
func (c *Controller) StopMove(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.kind == moveNone || c.current.id != id {
		return false
	}
	c.logger.Debugf("cancelling %s move %s", c.current.kind, id)
	c.last = c.current
	c.current = move{}
	c.draw = nil
	return true
}

// Stop abandons the running move and the demo. The joints hold their last commanded angles.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.kind != moveNone {
		c.logger.Infof("stopping %s move %s", c.current.kind, c.current.id)
		c.last = c.current
		c.current = move{}
		c.draw = nil
	}
	c.demo = nil
	for i := range c.previous {
		c.previous[i].Velocity = 0
		c.previous[i].Effort = 0
	}
	angles := c.m.AllActiveJointAngles()
	if err := c.m.SetAllActiveJointWayPoints(trajectory.WayPointsFromValues(angles)); err != nil {
		c.logger.Warnf("failed to zero joint velocities: %v", err)
	}
}

// JointAngles returns the active joint angles in traversal order.
func (c *Controller) JointAngles() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.AllActiveJointAngles()
}

// ToolPose returns a tool's pose in the world frame.
func (c *Controller) ToolPose(name string) (manipulator.Pose, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.ToolPose(name)
}

// State summarizes the controller for DoCommand and the state sensor.
func (c *Controller) State() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := map[string]any{
		"moving":       c.current.kind != moveNone,
		"move_kind":    c.current.kind.String(),
		"control_time": c.controlTime,
		"torque":       c.torque,
		"demo":         c.demo != nil,
		"dof":          c.m.DOF(),
		"joint_angles": c.m.AllActiveJointAngles(),
	}
	if c.current.kind != moveNone {
		state["move_id"] = c.current.id.String()
		state["progress"] = float64(c.current.tick) / float64(c.current.steps)
	}
	if c.last.kind != moveNone {
		state["last_move_id"] = c.last.id.String()
	}
	if c.lastErr != nil {
		state["last_error"] = c.lastErr.Error()
	}
	for name := range c.toolIDs {
		if v, err := c.m.ComponentToolValue(name); err == nil {
			state["tool_"+name] = v
		}
		if p, err := c.m.ComponentPositionToWorld(name); err == nil {
			state["position_"+name] = []float64{p.X, p.Y, p.Z}
		}
	}
	return state
}

// ServeProcessing attaches a Processing GUI link over rw and serves it in the background until the
// controller is closed. rw is closed with the controller when it implements io.Closer.
func (c *Controller) ServeProcessing(rw io.ReadWriter) {
	link := processing.NewLink(rw, processingHandler{c}, c.logger.Sublogger("processing"))
	c.mu.Lock()
	c.link = link
	if closer, ok := rw.(io.Closer); ok {
		c.linkCloser = closer
	}
	c.mu.Unlock()

	c.linkWorker = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		if err := link.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warnf("processing link stopped: %v", err)
		}
	})
}

// Close stops the control loop and the Processing link and closes the bus.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.demo = nil
	closer := c.linkCloser
	c.mu.Unlock()

	c.stopWorker()
	var err error
	if closer != nil {
		err = multierr.Append(err, closer.Close())
	}
	if c.linkWorker != nil {
		c.linkWorker.Stop()
	}
	return multierr.Append(err, c.bus.Close())
}
