package manipulator

// Snapshot is a copy of the mutable per-component state: world pose and state, component world
// poses and states, and joint and tool values. The tree structure is not part of a snapshot.
type Snapshot struct {
	world World
	nodes []node
}

// Snapshot captures the current state.
func (m *Manipulator) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{world: m.world, nodes: make([]node, len(m.nodes))}
	s.world.Pose = m.world.Pose.clone()
	for i, n := range m.nodes {
		s.nodes[i] = node{Component: n.clone(), parent: n.parent}
	}
	return s
}

// Restore writes a snapshot back. Snapshots taken from a manipulator with a different number of
// components are rejected.
func (m *Manipulator) Restore(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(s.nodes) != len(m.nodes) {
		return sizeMismatch("snapshot components", len(s.nodes), len(m.nodes))
	}
	m.world.Pose = s.world.Pose.clone()
	m.world.Origin = s.world.Origin
	for i := range m.nodes {
		src := s.nodes[i].Component
		dst := &m.nodes[i].Component
		dst.PoseToWorld = src.PoseToWorld.clone()
		dst.Origin = src.Origin
		dst.Joint.Angle = src.Joint.Angle
		dst.Joint.Velocity = src.Joint.Velocity
		dst.Joint.Acceleration = src.Joint.Acceleration
		dst.Tool.OnOff = src.Tool.OnOff
		dst.Tool.Value = src.Tool.Value
	}
	return nil
}
