package manipulator

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
)

// Unassigned marks a joint or tool id that is not bound to an actuator.
const Unassigned = -1

// StateDim is the length of a velocity or acceleration vector: linear xyz then angular xyz.
const StateDim = 6

// ComponentID indexes a component in the manipulator's arena. Ids are stable for the lifetime of
// the manipulator.
type ComponentID int

// worldID is the parent id of components attached directly to the world.
const worldID ComponentID = -1

// Pose is a position in meters and an orientation as a rotation matrix. The manipulator does not
// re-orthonormalize orientations; callers supply valid rotations.
type Pose struct {
	Position    r3.Vector
	Orientation *spatialmath.RotationMatrix
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Orientation: identityRotation()}
}

// NewPose builds a pose from a position and a row-major rotation matrix.
func NewPose(position r3.Vector, rotation []float64) (Pose, error) {
	rm, err := spatialmath.NewRotationMatrix(rotation)
	if err != nil {
		return Pose{}, err
	}
	return Pose{Position: position, Orientation: rm}, nil
}

// Spatial converts the pose into an rdk pose, scaling meters to millimeters.
func (p Pose) Spatial() spatialmath.Pose {
	o := p.Orientation
	if o == nil {
		o = identityRotation()
	}
	return spatialmath.NewPose(p.Position.Mul(1000), o)
}

func (p Pose) clone() Pose {
	out := Pose{Position: p.Position}
	if p.Orientation != nil {
		rm := *p.Orientation
		out.Orientation = &rm
	}
	return out
}

// State is the velocity and acceleration of a frame in world coordinates.
type State struct {
	Velocity     [StateDim]float64
	Acceleration [StateDim]float64
}

// Joint holds the actuator binding and kinematics of a revolute joint.
type Joint struct {
	ID           int
	Coefficient  float64
	Axis         r3.Vector
	Angle        float64
	Velocity     float64
	Acceleration float64
}

// Active reports whether the joint is driven by an actuator.
func (j Joint) Active() bool {
	return j.ID != Unassigned
}

// Tool holds the actuator binding and state of an end effector.
type Tool struct {
	ID          int
	Coefficient float64
	OnOff       bool
	Value       float64
}

// Assigned reports whether the tool is bound to an actuator.
func (t Tool) Assigned() bool {
	return t.ID != Unassigned
}

// Inertia holds the mass properties of a link.
type Inertia struct {
	Mass         float64
	Tensor       *mat.Dense
	CenterOfMass r3.Vector
}

func (in Inertia) clone() Inertia {
	out := in
	if in.Tensor != nil {
		out.Tensor = mat.DenseCopyOf(in.Tensor)
	}
	return out
}

// Component is one link or tool of the manipulator.
type Component struct {
	Name             string
	Parent           string
	Children         []string
	RelativeToParent Pose
	PoseToWorld      Pose
	Origin           State
	Joint            Joint
	Tool             Tool
	Inertia          Inertia
}

func (c Component) clone() Component {
	out := c
	out.Children = append([]string(nil), c.Children...)
	out.RelativeToParent = c.RelativeToParent.clone()
	out.PoseToWorld = c.PoseToWorld.clone()
	out.Inertia = c.Inertia.clone()
	return out
}

// IsTool reports whether the component is an end effector.
func (c Component) IsTool() bool {
	return c.Tool.Assigned()
}

// World is the root of the tree.
type World struct {
	Name   string
	Child  string
	Pose   Pose
	Origin State
}

// node is an arena slot. parent indexes the arena, or is worldID.
type node struct {
	Component
	parent ComponentID
}

func identityRotation() *spatialmath.RotationMatrix {
	rm, _ := spatialmath.NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	return rm
}

func copyRotation(rm *spatialmath.RotationMatrix) (*spatialmath.RotationMatrix, error) {
	if rm == nil {
		return nil, ErrInvalidOrientation
	}
	out := *rm
	return &out, nil
}

func stateVector(v []float64) ([StateDim]float64, error) {
	var out [StateDim]float64
	if len(v) != StateDim {
		return out, sizeMismatch("state vector", len(v), StateDim)
	}
	copy(out[:], v)
	return out, nil
}
