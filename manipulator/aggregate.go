package manipulator

import (
	"go.viam.com/rdk/referenceframe"

	"om_arm/trajectory"
)

// SetAllActiveJointAngle writes angles to the active joints in traversal order. The call is
// rejected without change unless len(angles) equals DOF.
func (m *Manipulator) SetAllActiveJointAngle(angles []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(angles) != m.dof {
		return sizeMismatch("active joint angles", len(angles), m.dof)
	}
	i := 0
	for _, id := range m.order {
		if m.nodes[id].Joint.Active() {
			m.nodes[id].Joint.Angle = angles[i]
			i++
		}
	}
	return nil
}

// SetAllActiveJointWayPoints writes angle, velocity and acceleration to the active joints in
// traversal order. Effort is read as acceleration.
func (m *Manipulator) SetAllActiveJointWayPoints(points []trajectory.WayPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(points) != m.dof {
		return sizeMismatch("active joint way-points", len(points), m.dof)
	}
	i := 0
	for _, id := range m.order {
		j := &m.nodes[id].Joint
		if j.Active() {
			j.Angle = points[i].Value
			j.Velocity = points[i].Velocity
			j.Acceleration = points[i].Effort
			i++
		}
	}
	return nil
}

// AllJointAngles returns the angle of every non-tool component in traversal order.
func (m *Manipulator) AllJointAngles() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []float64
	for _, id := range m.order {
		if !m.nodes[id].IsTool() {
			out = append(out, m.nodes[id].Joint.Angle)
		}
	}
	return out
}

// AllActiveJointAngles returns the angle of every active joint in traversal order.
func (m *Manipulator) AllActiveJointAngles() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, 0, m.dof)
	for _, id := range m.order {
		if m.nodes[id].Joint.Active() {
			out = append(out, m.nodes[id].Joint.Angle)
		}
	}
	return out
}

// AllActiveJointIDs returns the actuator id of every active joint in traversal order.
func (m *Manipulator) AllActiveJointIDs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, 0, m.dof)
	for _, id := range m.order {
		if m.nodes[id].Joint.Active() {
			out = append(out, m.nodes[id].Joint.ID)
		}
	}
	return out
}

// AllActiveJointCoefficients returns the conversion factor of every active joint in traversal order.
func (m *Manipulator) AllActiveJointCoefficients() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, 0, m.dof)
	for _, id := range m.order {
		if m.nodes[id].Joint.Active() {
			out = append(out, m.nodes[id].Joint.Coefficient)
		}
	}
	return out
}

// AllActiveJointWayPoints returns the current angle, velocity and acceleration of every active
// joint in traversal order.
func (m *Manipulator) AllActiveJointWayPoints() []trajectory.WayPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]trajectory.WayPoint, 0, m.dof)
	for _, id := range m.order {
		j := m.nodes[id].Joint
		if j.Active() {
			out = append(out, trajectory.WayPoint{Value: j.Angle, Velocity: j.Velocity, Effort: j.Acceleration})
		}
	}
	return out
}

// ActiveJointInputs returns the active joint angles as frame system inputs.
func (m *Manipulator) ActiveJointInputs() []referenceframe.Input {
	return referenceframe.FloatsToInputs(m.AllActiveJointAngles())
}
