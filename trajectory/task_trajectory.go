package trajectory

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// TaskDOF is the fixed dimension of task space: x, y, z, roll, pitch, yaw.
const TaskDOF = 6

// TaskTrajectory is the task-space counterpart of JointTrajectory with a fixed six degrees of freedom.
type TaskTrajectory struct {
	table coefficientTable
}

// NewTaskTrajectory returns a task-space generator.
func NewTaskTrajectory() *TaskTrajectory {
	return &TaskTrajectory{table: newCoefficientTable(TaskDOF)}
}

// Init computes the coefficient table from six start and goal way-points.
func (tt *TaskTrajectory) Init(moveTime, controlTime float64, start, goal []WayPoint) error {
	return tt.table.solve(moveTime, controlTime, start, goal)
}

// InitPose builds a resting-to-resting trajectory between two poses.
func (tt *TaskTrajectory) InitPose(moveTime, controlTime float64, start, goal spatialmath.Pose) error {
	return tt.Init(moveTime, controlTime, PoseToWayPoints(start), PoseToWayPoints(goal))
}

// Initialized reports whether Init has succeeded at least once.
func (tt *TaskTrajectory) Initialized() bool {
	return tt.table.initialized
}

// MoveTime returns the quantized move time of the current trajectory.
func (tt *TaskTrajectory) MoveTime() float64 {
	return tt.table.moveTime
}

// Sample evaluates all six task coordinates at tick. Sampling before a successful Init panics.
func (tt *TaskTrajectory) Sample(tick float64) []WayPoint {
	return tt.table.sample(tick)
}

// SamplePose evaluates the trajectory at tick and returns the position/orientation target.
func (tt *TaskTrajectory) SamplePose(tick float64) spatialmath.Pose {
	return WayPointsToPose(tt.Sample(tick))
}

// Coefficients returns a copy of the coefficient table, one entry per task coordinate.
func (tt *TaskTrajectory) Coefficients() []Coefficients {
	return tt.table.coefficients()
}

// PoseToWayPoints splits a pose into resting way-points: position then roll, pitch, yaw.
func PoseToWayPoints(p spatialmath.Pose) []WayPoint {
	pt := p.Point()
	ea := p.Orientation().EulerAngles()
	return WayPointsFromValues([]float64{pt.X, pt.Y, pt.Z, ea.Roll, ea.Pitch, ea.Yaw})
}

// WayPointsToPose is the inverse of PoseToWayPoints. Only the values are used.
func WayPointsToPose(wps []WayPoint) spatialmath.Pose {
	if len(wps) != TaskDOF {
		return spatialmath.NewZeroPose()
	}
	return spatialmath.NewPose(
		r3.Vector{X: wps[0].Value, Y: wps[1].Value, Z: wps[2].Value},
		&spatialmath.EulerAngles{Roll: wps[3].Value, Pitch: wps[4].Value, Yaw: wps[5].Value},
	)
}
