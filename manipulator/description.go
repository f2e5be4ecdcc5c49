package manipulator

import (
	_ "embed"
	"encoding/json"
	"os"
	"slices"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

//go:embed data/scara.json
var scaraDescription []byte

// Description is the JSON form of a manipulator tree. Lengths are meters, angles radians.
type Description struct {
	Name       string                 `json:"name"`
	World      WorldDescription       `json:"world"`
	Components []ComponentDescription `json:"components"`
	Tools      []ToolDescription      `json:"tools"`
}

// WorldDescription describes the root frame.
type WorldDescription struct {
	Name        string     `json:"name"`
	Child       string     `json:"child"`
	Position    [3]float64 `json:"position"`
	Orientation []float64  `json:"orientation,omitempty"`
}

// ComponentDescription describes a link. A nil JointID leaves the joint unassigned.
type ComponentDescription struct {
	Name         string     `json:"name"`
	Parent       string     `json:"parent"`
	Child        string     `json:"child,omitempty"`
	Position     [3]float64 `json:"position"`
	Orientation  []float64  `json:"orientation,omitempty"`
	Axis         [3]float64 `json:"axis"`
	JointID      *int       `json:"joint_id,omitempty"`
	Coefficient  float64    `json:"coefficient"`
	Mass         float64    `json:"mass"`
	Inertia      []float64  `json:"inertia,omitempty"`
	CenterOfMass [3]float64 `json:"center_of_mass"`
	MinAngle     float64    `json:"min_angle"`
	MaxAngle     float64    `json:"max_angle"`
}

// ToolDescription describes an end effector.
type ToolDescription struct {
	Name         string     `json:"name"`
	Parent       string     `json:"parent"`
	Position     [3]float64 `json:"position"`
	Orientation  []float64  `json:"orientation,omitempty"`
	ToolID       int        `json:"tool_id"`
	Coefficient  float64    `json:"coefficient"`
	Mass         float64    `json:"mass"`
	Inertia      []float64  `json:"inertia,omitempty"`
	CenterOfMass [3]float64 `json:"center_of_mass"`
}

// DefaultSCARA returns the built-in three joint SCARA with a pen tool.
func DefaultSCARA() Description {
	desc, err := ParseDescription(scaraDescription)
	if err != nil {
		panic(errors.Wrap(err, "embedded scara description"))
	}
	return desc
}

// ParseDescription decodes a JSON description.
func ParseDescription(data []byte) (Description, error) {
	var desc Description
	if err := json.Unmarshal(data, &desc); err != nil {
		return Description{}, errors.Wrap(err, "failed to parse manipulator description")
	}
	return desc, nil
}

// LoadDescriptionFile reads and decodes a JSON description from disk.
func LoadDescriptionFile(path string) (Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Description{}, errors.Wrapf(err, "failed to read manipulator description %s", path)
	}
	return ParseDescription(data)
}

// Save writes the description as indented JSON.
func (d Description) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal manipulator description")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write manipulator description %s", path)
	}
	return nil
}

// Build constructs a manipulator. Components are added in the order listed, so parents must
// precede their children. Tools are added last.
func (d Description) Build() (*Manipulator, error) {
	m := New()
	worldPose, err := descPose(d.World.Position, d.World.Orientation)
	if err != nil {
		return nil, errors.Wrap(err, "world")
	}
	if err := m.AddWorld(d.World.Name, d.World.Child, worldPose.Position, worldPose.Orientation); err != nil {
		return nil, err
	}

	for _, c := range d.Components {
		rel, err := descPose(c.Position, c.Orientation)
		if err != nil {
			return nil, errors.Wrapf(err, "component %q", c.Name)
		}
		tensor, err := descInertia(c.Inertia)
		if err != nil {
			return nil, errors.Wrapf(err, "component %q", c.Name)
		}
		jointID := Unassigned
		if c.JointID != nil {
			jointID = *c.JointID
		}
		if err := m.AddComponent(c.Name, c.Parent, c.Child, rel, vec(c.Axis), jointID, c.Coefficient,
			c.Mass, tensor, vec(c.CenterOfMass)); err != nil {
			return nil, err
		}
	}

	for _, t := range d.Tools {
		rel, err := descPose(t.Position, t.Orientation)
		if err != nil {
			return nil, errors.Wrapf(err, "tool %q", t.Name)
		}
		tensor, err := descInertia(t.Inertia)
		if err != nil {
			return nil, errors.Wrapf(err, "tool %q", t.Name)
		}
		if err := m.AddTool(t.Name, t.Parent, rel, t.ToolID, t.Coefficient, t.Mass, tensor, vec(t.CenterOfMass)); err != nil {
			return nil, err
		}
		children, err := m.ComponentChildNames(t.Parent)
		if err == nil && !slices.Contains(children, t.Name) {
			if err := m.AddComponentChild(t.Parent, t.Name); err != nil {
				return nil, err
			}
		}
	}

	if err := m.UpdatePoses(); err != nil {
		return nil, err
	}
	return m, nil
}

// ActiveJointLimits returns the min and max angle of each active joint in traversal order.
func (d Description) ActiveJointLimits() (mins, maxs []float64) {
	byName := map[string]ComponentDescription{}
	var names []string
	for _, c := range d.Components {
		if c.JointID != nil && *c.JointID != Unassigned {
			byName[c.Name] = c
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		mins = append(mins, byName[n].MinAngle)
		maxs = append(maxs, byName[n].MaxAngle)
	}
	return mins, maxs
}

func descPose(position [3]float64, orientation []float64) (Pose, error) {
	if len(orientation) == 0 {
		p := IdentityPose()
		p.Position = vec(position)
		return p, nil
	}
	if len(orientation) != 9 {
		return Pose{}, errors.Wrapf(ErrInvalidOrientation, "got %d values", len(orientation))
	}
	return NewPose(vec(position), orientation)
}

func descInertia(values []float64) (mat.Matrix, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if len(values) != 9 {
		return nil, errors.Wrapf(ErrInvalidInertia, "got %d values", len(values))
	}
	return mat.NewDense(3, 3, append([]float64(nil), values...)), nil
}

func vec(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
