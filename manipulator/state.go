package manipulator

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
)

// mutate applies fn to the named component under the write lock. fn must validate before it
// writes so that a rejected call leaves the component untouched.
func (m *Manipulator) mutate(name string, fn func(c *Component) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.find(name)
	if err != nil {
		return err
	}
	return fn(&m.nodes[id].Component)
}

func view[T any](m *Manipulator, name string, fn func(c *Component) T) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, err := m.find(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(&m.nodes[id].Component), nil
}

func jointOnly(c *Component) error {
	if c.IsTool() {
		return errors.Wrapf(ErrNotAJoint, "%q", c.Name)
	}
	return nil
}

func toolOnly(c *Component) error {
	if !c.IsTool() {
		return errors.Wrapf(ErrNotATool, "%q", c.Name)
	}
	return nil
}

// World

// WorldName returns the world frame name.
func (m *Manipulator) WorldName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.world.Name
}

// WorldChildName returns the name of the component attached to the world.
func (m *Manipulator) WorldChildName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.world.Child
}

// WorldPose returns a copy of the world pose.
func (m *Manipulator) WorldPose() Pose {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.world.Pose.clone()
}

// WorldPosition returns the world position.
func (m *Manipulator) WorldPosition() r3.Vector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.world.Pose.Position
}

// WorldOrientation returns a copy of the world orientation.
func (m *Manipulator) WorldOrientation() *spatialmath.RotationMatrix {
	return m.WorldPose().Orientation
}

// WorldVelocity returns the world velocity.
func (m *Manipulator) WorldVelocity() [StateDim]float64 {
	return m.WorldState().Velocity
}

// WorldAcceleration returns the world acceleration.
func (m *Manipulator) WorldAcceleration() [StateDim]float64 {
	return m.WorldState().Acceleration
}

// WorldState returns the world velocity and acceleration.
func (m *Manipulator) WorldState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.world.Origin
}

// SetWorldPose replaces the world pose.
func (m *Manipulator) SetWorldPose(p Pose) error {
	rm, err := copyRotation(p.Orientation)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world.Pose = Pose{Position: p.Position, Orientation: rm}
	return nil
}

// SetWorldPosition replaces the world position.
func (m *Manipulator) SetWorldPosition(position r3.Vector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world.Pose.Position = position
}

// SetWorldOrientation replaces the world orientation.
func (m *Manipulator) SetWorldOrientation(orientation *spatialmath.RotationMatrix) error {
	rm, err := copyRotation(orientation)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world.Pose.Orientation = rm
	return nil
}

// SetWorldState replaces the world velocity and acceleration.
func (m *Manipulator) SetWorldState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world.Origin = s
}

// SetWorldVelocity replaces the world velocity. v must have StateDim entries.
func (m *Manipulator) SetWorldVelocity(v []float64) error {
	vec, err := stateVector(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world.Origin.Velocity = vec
	return nil
}

// SetWorldAcceleration replaces the world acceleration. a must have StateDim entries.
func (m *Manipulator) SetWorldAcceleration(a []float64) error {
	vec, err := stateVector(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world.Origin.Acceleration = vec
	return nil
}

// Component structure

// Component returns a deep copy of the named component.
func (m *Manipulator) Component(name string) (Component, error) {
	return view(m, name, func(c *Component) Component { return c.clone() })
}

// SetComponent replaces the poses, state, joint, tool and inertia of an existing component.
// Name, parent and children are structural and are kept. Assigning or unassigning the joint or
// tool id is rejected since it would change the degree-of-freedom count.
func (m *Manipulator) SetComponent(name string, c Component) error {
	return m.mutate(name, func(dst *Component) error {
		if c.Joint.Active() != dst.Joint.Active() || c.Tool.Assigned() != dst.Tool.Assigned() {
			return errors.Wrapf(ErrInvalidID, "%q cannot change between active, fixed and tool", name)
		}
		rel, err := copyRotation(c.RelativeToParent.Orientation)
		if err != nil {
			return err
		}
		world, err := copyRotation(c.PoseToWorld.Orientation)
		if err != nil {
			return err
		}
		if c.Inertia.Tensor != nil {
			if r, cols := c.Inertia.Tensor.Dims(); r != 3 || cols != 3 {
				return errors.Wrapf(ErrInvalidInertia, "%q is %dx%d", name, r, cols)
			}
		}
		next := c.clone()
		next.Name, next.Parent, next.Children = dst.Name, dst.Parent, dst.Children
		next.RelativeToParent.Orientation = rel
		next.PoseToWorld.Orientation = world
		if next.Inertia.Tensor == nil {
			next.Inertia.Tensor = dst.Inertia.Tensor
		}
		*dst = next
		return nil
	})
}

// ComponentParentName returns the name of the component's parent, which may be the world.
func (m *Manipulator) ComponentParentName(name string) (string, error) {
	return view(m, name, func(c *Component) string { return c.Parent })
}

// ComponentChildNames returns the component's children.
func (m *Manipulator) ComponentChildNames(name string) ([]string, error) {
	return view(m, name, func(c *Component) []string { return append([]string(nil), c.Children...) })
}

// ComponentRelativePoseToParent returns the fixed offset from the parent frame.
func (m *Manipulator) ComponentRelativePoseToParent(name string) (Pose, error) {
	return view(m, name, func(c *Component) Pose { return c.RelativeToParent.clone() })
}

// ComponentRelativePositionToParent returns the translation part of the fixed offset.
func (m *Manipulator) ComponentRelativePositionToParent(name string) (r3.Vector, error) {
	return view(m, name, func(c *Component) r3.Vector { return c.RelativeToParent.Position })
}

// ComponentRelativeOrientationToParent returns the rotation part of the fixed offset.
func (m *Manipulator) ComponentRelativeOrientationToParent(name string) (*spatialmath.RotationMatrix, error) {
	return view(m, name, func(c *Component) *spatialmath.RotationMatrix {
		return c.RelativeToParent.clone().Orientation
	})
}

// World-frame state

// ComponentPoseToWorld returns the component's pose in the world frame.
func (m *Manipulator) ComponentPoseToWorld(name string) (Pose, error) {
	return view(m, name, func(c *Component) Pose { return c.PoseToWorld.clone() })
}

// ComponentPositionToWorld returns the component's position in the world frame.
func (m *Manipulator) ComponentPositionToWorld(name string) (r3.Vector, error) {
	return view(m, name, func(c *Component) r3.Vector { return c.PoseToWorld.Position })
}

// ComponentOrientationToWorld returns the component's orientation in the world frame.
func (m *Manipulator) ComponentOrientationToWorld(name string) (*spatialmath.RotationMatrix, error) {
	return view(m, name, func(c *Component) *spatialmath.RotationMatrix {
		return c.PoseToWorld.clone().Orientation
	})
}

// ComponentStateToWorld returns the component's velocity and acceleration in the world frame.
func (m *Manipulator) ComponentStateToWorld(name string) (State, error) {
	return view(m, name, func(c *Component) State { return c.Origin })
}

// ComponentVelocityToWorld returns the component's velocity in the world frame.
func (m *Manipulator) ComponentVelocityToWorld(name string) ([StateDim]float64, error) {
	return view(m, name, func(c *Component) [StateDim]float64 { return c.Origin.Velocity })
}

// ComponentAccelerationToWorld returns the component's acceleration in the world frame.
func (m *Manipulator) ComponentAccelerationToWorld(name string) ([StateDim]float64, error) {
	return view(m, name, func(c *Component) [StateDim]float64 { return c.Origin.Acceleration })
}

// SetComponentPoseToWorld replaces the component's world pose.
func (m *Manipulator) SetComponentPoseToWorld(name string, p Pose) error {
	return m.mutate(name, func(c *Component) error {
		rm, err := copyRotation(p.Orientation)
		if err != nil {
			return err
		}
		c.PoseToWorld = Pose{Position: p.Position, Orientation: rm}
		return nil
	})
}

// SetComponentPositionToWorld replaces the component's world position.
func (m *Manipulator) SetComponentPositionToWorld(name string, position r3.Vector) error {
	return m.mutate(name, func(c *Component) error {
		c.PoseToWorld.Position = position
		return nil
	})
}

// SetComponentOrientationToWorld replaces the component's world orientation.
func (m *Manipulator) SetComponentOrientationToWorld(name string, orientation *spatialmath.RotationMatrix) error {
	return m.mutate(name, func(c *Component) error {
		rm, err := copyRotation(orientation)
		if err != nil {
			return err
		}
		c.PoseToWorld.Orientation = rm
		return nil
	})
}

// SetComponentStateToWorld replaces the component's world velocity and acceleration.
func (m *Manipulator) SetComponentStateToWorld(name string, s State) error {
	return m.mutate(name, func(c *Component) error {
		c.Origin = s
		return nil
	})
}

// SetComponentVelocityToWorld replaces the component's world velocity.
func (m *Manipulator) SetComponentVelocityToWorld(name string, v []float64) error {
	return m.mutate(name, func(c *Component) error {
		vec, err := stateVector(v)
		if err != nil {
			return err
		}
		c.Origin.Velocity = vec
		return nil
	})
}

// SetComponentAccelerationToWorld replaces the component's world acceleration.
func (m *Manipulator) SetComponentAccelerationToWorld(name string, a []float64) error {
	return m.mutate(name, func(c *Component) error {
		vec, err := stateVector(a)
		if err != nil {
			return err
		}
		c.Origin.Acceleration = vec
		return nil
	})
}

// Joint

// ComponentJoint returns the joint of the named component.
func (m *Manipulator) ComponentJoint(name string) (Joint, error) {
	return view(m, name, func(c *Component) Joint { return c.Joint })
}

// ComponentJointID returns the joint's actuator id, or Unassigned.
func (m *Manipulator) ComponentJointID(name string) (int, error) {
	return view(m, name, func(c *Component) int { return c.Joint.ID })
}

// ComponentJointCoefficient returns the joint's angle to actuator conversion factor.
func (m *Manipulator) ComponentJointCoefficient(name string) (float64, error) {
	return view(m, name, func(c *Component) float64 { return c.Joint.Coefficient })
}

// ComponentJointAxis returns the joint's rotation axis in its own frame.
func (m *Manipulator) ComponentJointAxis(name string) (r3.Vector, error) {
	return view(m, name, func(c *Component) r3.Vector { return c.Joint.Axis })
}

// ComponentJointAngle returns the joint angle in radians.
func (m *Manipulator) ComponentJointAngle(name string) (float64, error) {
	return view(m, name, func(c *Component) float64 { return c.Joint.Angle })
}

// ComponentJointVelocity returns the joint velocity in rad/s.
func (m *Manipulator) ComponentJointVelocity(name string) (float64, error) {
	return view(m, name, func(c *Component) float64 { return c.Joint.Velocity })
}

// ComponentJointAcceleration returns the joint acceleration in rad/s^2.
func (m *Manipulator) ComponentJointAcceleration(name string) (float64, error) {
	return view(m, name, func(c *Component) float64 { return c.Joint.Acceleration })
}

// SetComponentJointAngle sets a joint angle. Tools are rejected.
func (m *Manipulator) SetComponentJointAngle(name string, angle float64) error {
	return m.mutate(name, func(c *Component) error {
		if err := jointOnly(c); err != nil {
			return err
		}
		c.Joint.Angle = angle
		return nil
	})
}

// SetComponentJointVelocity sets a joint velocity. Tools are rejected.
func (m *Manipulator) SetComponentJointVelocity(name string, velocity float64) error {
	return m.mutate(name, func(c *Component) error {
		if err := jointOnly(c); err != nil {
			return err
		}
		c.Joint.Velocity = velocity
		return nil
	})
}

// SetComponentJointAcceleration sets a joint acceleration. Tools are rejected.
func (m *Manipulator) SetComponentJointAcceleration(name string, acceleration float64) error {
	return m.mutate(name, func(c *Component) error {
		if err := jointOnly(c); err != nil {
			return err
		}
		c.Joint.Acceleration = acceleration
		return nil
	})
}

// Tool

// ComponentTool returns the tool of the named component.
func (m *Manipulator) ComponentTool(name string) (Tool, error) {
	return view(m, name, func(c *Component) Tool { return c.Tool })
}

// ComponentToolID returns the tool's actuator id, or Unassigned.
func (m *Manipulator) ComponentToolID(name string) (int, error) {
	return view(m, name, func(c *Component) int { return c.Tool.ID })
}

// ComponentToolCoefficient returns the tool's value to actuator conversion factor.
func (m *Manipulator) ComponentToolCoefficient(name string) (float64, error) {
	return view(m, name, func(c *Component) float64 { return c.Tool.Coefficient })
}

// ComponentToolOnOff returns the tool's on/off state.
func (m *Manipulator) ComponentToolOnOff(name string) (bool, error) {
	return view(m, name, func(c *Component) bool { return c.Tool.OnOff })
}

// ComponentToolValue returns the tool's analog value.
func (m *Manipulator) ComponentToolValue(name string) (float64, error) {
	return view(m, name, func(c *Component) float64 { return c.Tool.Value })
}

// SetComponentToolOnOff sets the on/off state of a tool. Non-tools are rejected.
func (m *Manipulator) SetComponentToolOnOff(name string, on bool) error {
	return m.mutate(name, func(c *Component) error {
		if err := toolOnly(c); err != nil {
			return err
		}
		c.Tool.OnOff = on
		return nil
	})
}

// SetComponentToolValue sets the analog value of a tool. Non-tools are rejected.
func (m *Manipulator) SetComponentToolValue(name string, value float64) error {
	return m.mutate(name, func(c *Component) error {
		if err := toolOnly(c); err != nil {
			return err
		}
		c.Tool.Value = value
		return nil
	})
}

// Inertia

// ComponentMass returns the link mass in kilograms.
func (m *Manipulator) ComponentMass(name string) (float64, error) {
	return view(m, name, func(c *Component) float64 { return c.Inertia.Mass })
}

// ComponentInertiaTensor returns a copy of the 3x3 inertia tensor.
func (m *Manipulator) ComponentInertiaTensor(name string) (*mat.Dense, error) {
	return view(m, name, func(c *Component) *mat.Dense { return mat.DenseCopyOf(c.Inertia.Tensor) })
}

// ComponentCenterOfMass returns the center of mass in the link frame.
func (m *Manipulator) ComponentCenterOfMass(name string) (r3.Vector, error) {
	return view(m, name, func(c *Component) r3.Vector { return c.Inertia.CenterOfMass })
}
