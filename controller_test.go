package om_arm

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"om_arm/drawing"
	"om_arm/manipulator"
	"om_arm/processing"
)

const (
	testControlTime = 0.125
	testMoveTime    = 1.0
	testSteps       = 9
)

// fakeSolver records targets and answers with fixed angles, or the current angles when none are set.
type fakeSolver struct {
	targets []spatialmath.Pose
	answer  []float64
	err     error
}

func (f *fakeSolver) Solve(_ context.Context, _ string, current []float64, target spatialmath.Pose) ([]float64, error) {
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return current, nil
}

// lockedBuffer is a processing stream with no input.
type lockedBuffer struct {
	mu  sync.Mutex
	out bytes.Buffer
}

func (b *lockedBuffer) Read([]byte) (int, error) {
	return 0, io.EOF
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

func newTestController(t *testing.T, solver InverseSolver) (*Controller, *SimActuator) {
	t.Helper()
	sim := NewSimActuator([]int{1, 2, 3}, []int{4})
	c, err := NewController(manipulator.DefaultSCARA(), sim, ControllerOptions{
		ControlTime:     testControlTime,
		DefaultMoveTime: testMoveTime,
		Solver:          solver,
	}, logging.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, sim
}

func tickN(t *testing.T, c *Controller, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, c.Tick(context.Background()))
	}
}

func TestJointMoveReachesGoal(t *testing.T) {
	c, sim := newTestController(t, nil)
	ctx := context.Background()
	goal := []float64{0.5, -0.3, 1.0}

	id, err := c.JointMove(ctx, goal, 0)
	require.NoError(t, err)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", id.String())
	assert.True(t, c.IsMoving())

	tickN(t, c, testSteps-1)
	assert.True(t, c.IsMoving(), "move should run until the final sample")
	tickN(t, c, 1)
	assert.False(t, c.IsMoving())

	got, err := sim.ReadJointValues(ctx, []int{1, 2, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, goal, got, 1e-9)
	assert.InDeltaSlice(t, goal, c.JointAngles(), 1e-9)
	assert.Equal(t, testSteps, sim.Writes())
}

func TestJointMoveFirstTickHoldsStart(t *testing.T) {
	c, sim := newTestController(t, nil)
	ctx := context.Background()

	_, err := c.JointMove(ctx, []float64{1, 1, 1}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, 1)

	got, err := sim.ReadJointValues(ctx, []int{1, 2, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, got, 1e-12)
}

func TestJointMoveUpdatesToolPose(t *testing.T) {
	c, _ := newTestController(t, nil)
	before, err := c.ToolPose("tool")
	require.NoError(t, err)

	_, err = c.JointMove(context.Background(), []float64{math.Pi / 2, 0, 0}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, testSteps)

	after, err := c.ToolPose("tool")
	require.NoError(t, err)
	reach := math.Hypot(before.Position.X, before.Position.Y)
	assert.InDelta(t, 0, after.Position.X, 1e-9)
	assert.InDelta(t, reach, after.Position.Y, 1e-9)
	assert.InDelta(t, before.Position.Z, after.Position.Z, 1e-9)
}

func TestJointMoveClampsToLimits(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := c.JointMove(context.Background(), []float64{0, 5, -5}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, testSteps)
	assert.InDeltaSlice(t, []float64{0, 2.2, -2.2}, c.JointAngles(), 1e-9)
}

func TestJointMoveRejectsWrongSize(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := c.JointMove(context.Background(), []float64{1, 2}, testMoveTime)
	require.ErrorIs(t, err, manipulator.ErrSizeMismatch)
	assert.False(t, c.IsMoving())
}

func TestJointMovePreemptsRunningMove(t *testing.T) {
	c, _ := newTestController(t, nil)
	ctx := context.Background()
	first, err := c.JointMove(ctx, []float64{1, 0, 0}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, 3)

	second, err := c.JointMove(ctx, []float64{0, 1, 0}, testMoveTime)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	tickN(t, c, testSteps)
	assert.InDeltaSlice(t, []float64{0, 1, 0}, c.JointAngles(), 1e-9)
}

func TestToolMoveWritesBus(t *testing.T) {
	c, sim := newTestController(t, nil)
	ctx := context.Background()

	require.NoError(t, c.ToolMove(ctx, "tool", -0.5))
	v, err := sim.ReadToolValue(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, -0.5, v)

	on, err := c.Manipulator().ComponentToolOnOff("tool")
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, c.ToolMove(ctx, "tool", processing.ToolOff))
	on, err = c.Manipulator().ComponentToolOnOff("tool")
	require.NoError(t, err)
	assert.False(t, on)

	require.ErrorIs(t, c.ToolMove(ctx, "joint1", 0), manipulator.ErrComponentNotFound)
}

func TestToolMoveBusFailureKeepsState(t *testing.T) {
	c, sim := newTestController(t, nil)
	ctx := context.Background()

	require.NoError(t, c.ToolMove(ctx, "tool", processing.ToolOff))
	require.NoError(t, sim.Close())

	require.ErrorIs(t, c.ToolMove(ctx, "tool", processing.ToolOn), errActuatorClosed)
	v, err := c.ToolValue("tool")
	require.NoError(t, err)
	assert.Equal(t, processing.ToolOff, v)
	on, err := c.Manipulator().ComponentToolOnOff("tool")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestTaskMovesNeedSolver(t *testing.T) {
	c, _ := newTestController(t, nil)
	ctx := context.Background()

	_, err := c.DrawLine(ctx, "tool", r3.Vector{X: 0.01}, testMoveTime)
	require.ErrorIs(t, err, ErrNoInverseSolver)
	_, err = c.Draw(ctx, "tool", drawing.Shape{Kind: drawing.Circle, Radius: 0.02}, testMoveTime)
	require.ErrorIs(t, err, ErrNoInverseSolver)
	assert.False(t, c.IsMoving())
}

func TestDrawSamplesStartAtTool(t *testing.T) {
	solver := &fakeSolver{}
	c, _ := newTestController(t, solver)
	start, err := c.ToolPose("tool")
	require.NoError(t, err)

	_, err = c.Draw(context.Background(), "tool", drawing.Shape{Kind: drawing.Circle, Radius: 0.02}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, testSteps)
	assert.False(t, c.IsMoving())

	require.Len(t, solver.targets, testSteps)
	first := solver.targets[0].Point()
	last := solver.targets[testSteps-1].Point()
	want := start.Position.Mul(1000)
	assert.InDelta(t, want.X, first.X, 1e-6)
	assert.InDelta(t, want.Y, first.Y, 1e-6)
	assert.InDelta(t, want.X, last.X, 1e-6)
	assert.InDelta(t, want.Y, last.Y, 1e-6)
}

func TestDrawLineEndsAtTarget(t *testing.T) {
	solver := &fakeSolver{}
	c, _ := newTestController(t, solver)
	start, err := c.ToolPose("tool")
	require.NoError(t, err)

	_, err = c.DrawLine(context.Background(), "tool", r3.Vector{X: 0.02}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, testSteps)

	last := solver.targets[len(solver.targets)-1].Point()
	assert.InDelta(t, (start.Position.X+0.02)*1000, last.X, 1e-6)
	assert.InDelta(t, start.Position.Y*1000, last.Y, 1e-6)
}

func TestSolverFailureAbortsMove(t *testing.T) {
	solver := &fakeSolver{err: assert.AnError}
	c, _ := newTestController(t, solver)
	ctx := context.Background()

	id, err := c.DrawLine(ctx, "tool", r3.Vector{Y: 0.01}, testMoveTime)
	require.NoError(t, err)
	require.ErrorIs(t, c.Tick(ctx), assert.AnError)
	assert.False(t, c.IsMoving())
	require.ErrorIs(t, c.Wait(ctx, id), assert.AnError)
	assert.Contains(t, c.State()["last_error"], assert.AnError.Error())
}

func TestSetControlTimeRejectedWhileMoving(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := c.JointMove(context.Background(), []float64{1, 0, 0}, testMoveTime)
	require.NoError(t, err)
	require.Error(t, c.SetControlTime(0.02))

	c.Stop()
	require.NoError(t, c.SetControlTime(0.25))
	assert.Equal(t, 0.25, c.ControlTime())
	require.Error(t, c.SetControlTime(-1))
}

func TestStopHoldsPosition(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := c.JointMove(context.Background(), []float64{1, 0, 0}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, 4)
	held := c.JointAngles()

	c.Stop()
	assert.False(t, c.IsMoving())
	tickN(t, c, 3)
	assert.Equal(t, held, c.JointAngles())
}

func TestStartRunsBackgroundTicks(t *testing.T) {
	sim := NewSimActuator([]int{1, 2, 3}, []int{4})
	c, err := NewController(manipulator.DefaultSCARA(), sim, ControllerOptions{
		ControlTime:     0.005,
		DefaultMoveTime: 0.05,
	}, logging.NewTestLogger(t))
	require.NoError(t, err)
	defer c.Close()

	c.Start()
	c.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := c.JointMove(ctx, []float64{0.2, 0.2, 0.2}, 0)
	require.NoError(t, err)
	require.NoError(t, c.Wait(ctx, id))
	assert.InDeltaSlice(t, []float64{0.2, 0.2, 0.2}, c.JointAngles(), 1e-9)
}

func TestSetTorqueSyncsFromBus(t *testing.T) {
	c, sim := newTestController(t, nil)
	ctx := context.Background()
	require.NoError(t, sim.WriteJointValues(ctx, []int{1, 2, 3}, []float64{0.1, 0.2, 0.3}))

	require.NoError(t, c.SetTorque(ctx, true))
	assert.True(t, sim.Torque())
	assert.True(t, c.Torque())
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, c.JointAngles(), 1e-12)

	require.NoError(t, c.SetTorque(ctx, false))
	assert.False(t, sim.Torque())
}

func TestClosedControllerRejectsMoves(t *testing.T) {
	c, _ := newTestController(t, nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.JointMove(context.Background(), []float64{0, 0, 0}, testMoveTime)
	require.ErrorIs(t, err, errControllerClosed)
	require.ErrorIs(t, c.Tick(context.Background()), errControllerClosed)
}

func TestDemoProgram(t *testing.T) {
	c, sim := newTestController(t, &fakeSolver{})
	ctx := context.Background()

	c.StartDemo()
	assert.Equal(t, true, c.State()["demo"])

	// Pen up, then the wipe move.
	tickN(t, c, 1)
	v, err := sim.ReadToolValue(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, demoPenUp, v)
	assert.False(t, c.IsMoving())

	tickN(t, c, 1)
	assert.True(t, c.IsMoving())
	tickN(t, c, int(demoEraseMoveTime/testControlTime)+1)
	assert.InDeltaSlice(t, demoErasePose, c.JointAngles(), 1e-9)

	c.StopDemo()
	tickN(t, c, 2)
	assert.False(t, c.IsMoving())
}

func TestDemoPagesDrawEveryShape(t *testing.T) {
	d := newDemo()
	var shapes []drawing.Kind
	for _, step := range d.steps {
		if step.shape != nil {
			shapes = append(shapes, step.shape.Kind)
			assert.Equal(t, demoPenDown, step.tool)
		}
	}
	assert.Equal(t, []drawing.Kind{
		drawing.Circle,
		drawing.Circle, drawing.Circle, drawing.Circle, drawing.Circle, drawing.Circle, drawing.Circle,
		drawing.Rhombus,
		drawing.Rhombus, drawing.Rhombus, drawing.Rhombus,
		drawing.Heart,
	}, shapes)
}

func TestProcessingCommandsDriveController(t *testing.T) {
	c, sim := newTestController(t, &fakeSolver{})
	ctx := context.Background()
	var out bytes.Buffer
	link := processing.NewLink(&out, processingHandler{c}, logging.NewTestLogger(t))

	cmd, err := processing.Parse("om,ready")
	require.NoError(t, err)
	require.NoError(t, link.Dispatch(ctx, cmd))
	assert.True(t, sim.Torque())
	assert.True(t, strings.HasPrefix(out.String(), processing.RecordAngle+","))

	cmd, err = processing.Parse("joint,0.1,0.2,0.3")
	require.NoError(t, err)
	require.NoError(t, link.Dispatch(ctx, cmd))
	assert.True(t, c.IsMoving())
	tickN(t, c, int(processing.JointMoveTime/testControlTime)+1)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, c.JointAngles(), 1e-9)

	cmd, err = processing.Parse("tool,off")
	require.NoError(t, err)
	require.NoError(t, link.Dispatch(ctx, cmd))
	v, err := c.ToolValue("tool")
	require.NoError(t, err)
	assert.Equal(t, processing.ToolOff, v)

	cmd, err = processing.Parse("pos,0.15,0.05")
	require.NoError(t, err)
	require.NoError(t, link.Dispatch(ctx, cmd))
	assert.True(t, c.IsMoving())
	c.Stop()

	cmd, err = processing.Parse("motion,start")
	require.NoError(t, err)
	require.NoError(t, link.Dispatch(ctx, cmd))
	assert.Equal(t, true, c.State()["demo"])

	cmd, err = processing.Parse("motion,stop")
	require.NoError(t, err)
	require.NoError(t, link.Dispatch(ctx, cmd))
	assert.Equal(t, false, c.State()["demo"])
	assert.True(t, c.IsMoving(), "stopping the demo draws the lift-off line")
}

func TestProcessingReceivesAnglesEachTick(t *testing.T) {
	c, _ := newTestController(t, nil)
	rw := &lockedBuffer{}
	c.ServeProcessing(rw)

	_, err := c.JointMove(context.Background(), []float64{0.1, 0, 0}, testMoveTime)
	require.NoError(t, err)
	tickN(t, c, testSteps)
	assert.Equal(t, testSteps, strings.Count(rw.String(), processing.RecordAngle+","))
}
