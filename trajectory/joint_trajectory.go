package trajectory

// JointTrajectory drives one independent quintic per joint.
// It is not safe for concurrent use; callers serialize access per manipulator.
type JointTrajectory struct {
	jointCount int
	table      coefficientTable
}

// NewJointTrajectory returns a generator for jointCount joints.
func NewJointTrajectory(jointCount int) *JointTrajectory {
	if jointCount < 0 {
		jointCount = 0
	}
	return &JointTrajectory{
		jointCount: jointCount,
		table:      newCoefficientTable(jointCount),
	}
}

// JointCount returns the number of joints the generator was built for.
func (jt *JointTrajectory) JointCount() int {
	return jt.jointCount
}

// Init computes the coefficient table from per-joint start and goal way-points. On error the
// previously computed table is kept.
func (jt *JointTrajectory) Init(moveTime, controlTime float64, start, goal []WayPoint) error {
	return jt.table.solve(moveTime, controlTime, start, goal)
}

// Initialized reports whether Init has succeeded at least once.
func (jt *JointTrajectory) Initialized() bool {
	return jt.table.initialized
}

// MoveTime returns the quantized move time of the current trajectory.
func (jt *JointTrajectory) MoveTime() float64 {
	return jt.table.moveTime
}

// Sample evaluates every joint at tick. Ticks outside [0, MoveTime] extrapolate the polynomial.
// Sampling before a successful Init panics.
func (jt *JointTrajectory) Sample(tick float64) []WayPoint {
	return jt.table.sample(tick)
}

// Coefficients returns a copy of the coefficient table, one entry per joint.
func (jt *JointTrajectory) Coefficients() []Coefficients {
	return jt.table.coefficients()
}
