// Package manipulator is the single source of truth for a manipulator's link tree and its live
// kinematic state. The tree is built once, parents before children, and only per-component state
// changes afterwards.
package manipulator

import (
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
)

// Manipulator owns the component arena. All methods are safe for concurrent use; each call holds
// the manipulator's lock for its duration.
type Manipulator struct {
	mu sync.RWMutex

	world        World
	worldDefined bool

	nodes  []node
	byName map[string]ComponentID
	// order lists arena ids sorted by component name.
	order []ComponentID
	dof   int
}

// New returns an empty manipulator. AddWorld must be called before any component is added.
func New() *Manipulator {
	return &Manipulator{byName: make(map[string]ComponentID)}
}

// find is the only name lookup. It never inserts.
func (m *Manipulator) find(name string) (ComponentID, error) {
	id, ok := m.byName[name]
	if !ok {
		return 0, notFound(name)
	}
	return id, nil
}

// AddWorld defines the root frame.
func (m *Manipulator) AddWorld(name, childName string, position r3.Vector, orientation *spatialmath.RotationMatrix) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.worldDefined {
		return errors.Wrapf(ErrWorldAlreadyDefined, "%q", m.world.Name)
	}
	rm, err := copyRotation(orientation)
	if err != nil {
		return errors.Wrap(err, "world orientation")
	}
	m.world = World{
		Name:  name,
		Child: childName,
		Pose:  Pose{Position: position, Orientation: rm},
	}
	m.worldDefined = true
	return nil
}

// AddComponent inserts a link. A jointID other than Unassigned makes the link an active joint and
// increments the degree-of-freedom count. childName, when non-empty, becomes the first child.
func (m *Manipulator) AddComponent(
	name, parentName, childName string,
	relative Pose,
	axis r3.Vector,
	jointID int,
	jointCoefficient float64,
	mass float64,
	inertiaTensor mat.Matrix,
	centerOfMass r3.Vector,
) error {
	if jointID < Unassigned {
		return errors.Wrapf(ErrInvalidID, "joint id %d for %q", jointID, name)
	}
	c := Component{
		Name:             name,
		RelativeToParent: relative,
		Joint: Joint{
			ID:          jointID,
			Coefficient: jointCoefficient,
			Axis:        axis,
		},
		Tool: Tool{ID: Unassigned},
	}
	if childName != "" {
		c.Children = []string{childName}
	}
	return m.insert(c, parentName, mass, inertiaTensor, centerOfMass)
}

// AddTool inserts an end effector leaf. Tools carry no joint.
func (m *Manipulator) AddTool(
	name, parentName string,
	relative Pose,
	toolID int,
	coefficient float64,
	mass float64,
	inertiaTensor mat.Matrix,
	centerOfMass r3.Vector,
) error {
	if toolID <= Unassigned {
		return errors.Wrapf(ErrInvalidID, "tool id %d for %q", toolID, name)
	}
	c := Component{
		Name:             name,
		RelativeToParent: relative,
		Joint:            Joint{ID: Unassigned},
		Tool: Tool{
			ID:          toolID,
			Coefficient: coefficient,
		},
	}
	return m.insert(c, parentName, mass, inertiaTensor, centerOfMass)
}

// AddComponentChild appends an extra branch to an existing component.
func (m *Manipulator) AddComponentChild(name, childName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.find(name)
	if err != nil {
		return err
	}
	m.nodes[id].Children = append(m.nodes[id].Children, childName)
	return nil
}

func (m *Manipulator) insert(c Component, parentName string, mass float64, tensor mat.Matrix, com r3.Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.worldDefined {
		return errors.Wrapf(ErrWorldNotDefined, "adding %q", c.Name)
	}
	if _, exists := m.byName[c.Name]; exists || c.Name == m.world.Name {
		return errors.Wrapf(ErrDuplicateComponent, "%q", c.Name)
	}

	parent := worldID
	if parentName != m.world.Name {
		id, err := m.find(parentName)
		if err != nil {
			return errors.Wrapf(ErrParentNotFound, "%q for %q", parentName, c.Name)
		}
		parent = id
	}

	rm, err := copyRotation(c.RelativeToParent.Orientation)
	if err != nil {
		return errors.Wrapf(err, "relative orientation of %q", c.Name)
	}
	c.RelativeToParent.Orientation = rm

	inertia := Inertia{Mass: mass, CenterOfMass: com, Tensor: mat.NewDense(3, 3, nil)}
	if tensor != nil {
		if r, cols := tensor.Dims(); r != 3 || cols != 3 {
			return errors.Wrapf(ErrInvalidInertia, "%q is %dx%d", c.Name, r, cols)
		}
		inertia.Tensor = mat.DenseCopyOf(tensor)
	}
	c.Inertia = inertia
	c.Parent = parentName
	c.PoseToWorld = IdentityPose()

	id := ComponentID(len(m.nodes))
	m.nodes = append(m.nodes, node{Component: c, parent: parent})
	m.byName[c.Name] = id

	pos := sort.Search(len(m.order), func(i int) bool {
		return m.nodes[m.order[i]].Name >= c.Name
	})
	m.order = append(m.order, 0)
	copy(m.order[pos+1:], m.order[pos:])
	m.order[pos] = id

	if c.Joint.Active() {
		m.dof++
	}
	return nil
}

// DOF returns the number of components with an assigned joint id.
func (m *Manipulator) DOF() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dof
}

// ComponentCount returns the number of components, excluding the world.
func (m *Manipulator) ComponentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// ComponentNames returns every component name in traversal order.
func (m *Manipulator) ComponentNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.order))
	for _, id := range m.order {
		names = append(names, m.nodes[id].Name)
	}
	return names
}

// ActiveJointNames returns the names of components with an assigned joint id in traversal order.
// This is the order used by SetAllActiveJointAngle and AllActiveJointAngles.
func (m *Manipulator) ActiveJointNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, id := range m.order {
		if m.nodes[id].Joint.Active() {
			names = append(names, m.nodes[id].Name)
		}
	}
	return names
}

// ToolNames returns the names of tool components in traversal order.
func (m *Manipulator) ToolNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, id := range m.order {
		if m.nodes[id].IsTool() {
			names = append(names, m.nodes[id].Name)
		}
	}
	return names
}

// Components returns deep copies of all components in traversal order.
func (m *Manipulator) Components() []Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Component, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.nodes[id].clone())
	}
	return out
}
