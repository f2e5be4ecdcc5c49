package om_arm

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"

	"om_arm/manipulator"
)

const (
	baseLinkName = "base_link"
	mmPerMeter   = 1000.0
)

// kinematicsJSON renders a description as an SVA kinematics file ending at tool: every component
// becomes a static link for its offset followed by a revolute joint when it is actuated.
// Translations are millimeters and joint limits degrees.
func kinematicsJSON(desc manipulator.Description, tool string) ([]byte, error) {
	var links, joints []map[string]any

	base, err := linkJSON(baseLinkName, referenceframe.World, desc.World.Position, desc.World.Orientation)
	if err != nil {
		return nil, errors.Wrap(err, "world")
	}
	links = append(links, base)

	// frameOf maps a component to the frame its children attach to.
	frameOf := map[string]string{desc.World.Name: baseLinkName}
	for _, c := range desc.Components {
		parent, ok := frameOf[c.Parent]
		if !ok {
			return nil, errors.Wrapf(manipulator.ErrParentNotFound, "component %q parent %q", c.Name, c.Parent)
		}
		offset := c.Name + "_offset"
		link, err := linkJSON(offset, parent, c.Position, c.Orientation)
		if err != nil {
			return nil, errors.Wrapf(err, "component %q", c.Name)
		}
		links = append(links, link)

		if c.JointID == nil || *c.JointID == manipulator.Unassigned {
			frameOf[c.Name] = offset
			continue
		}
		lo, hi := -360.0, 360.0
		if c.MinAngle != 0 || c.MaxAngle != 0 {
			lo, hi = c.MinAngle*180/math.Pi, c.MaxAngle*180/math.Pi
		}
		joints = append(joints, map[string]any{
			"id":     c.Name,
			"type":   "revolute",
			"parent": offset,
			"axis":   map[string]float64{"x": c.Axis[0], "y": c.Axis[1], "z": c.Axis[2]},
			"min":    lo,
			"max":    hi,
		})
		frameOf[c.Name] = c.Name
	}

	found := false
	for _, t := range desc.Tools {
		if t.Name != tool {
			continue
		}
		parent, ok := frameOf[t.Parent]
		if !ok {
			return nil, errors.Wrapf(manipulator.ErrParentNotFound, "tool %q parent %q", t.Name, t.Parent)
		}
		link, err := linkJSON(t.Name, parent, t.Position, t.Orientation)
		if err != nil {
			return nil, errors.Wrapf(err, "tool %q", t.Name)
		}
		links = append(links, link)
		found = true
	}
	if !found {
		return nil, errors.Wrapf(manipulator.ErrComponentNotFound, "tool %q", tool)
	}

	return json.Marshal(map[string]any{
		"name":                 desc.Name,
		"kinematic_param_type": "SVA",
		"links":                links,
		"joints":               joints,
	})
}

func linkJSON(id, parent string, position [3]float64, orientation []float64) (map[string]any, error) {
	link := map[string]any{
		"id":     id,
		"parent": parent,
		"translation": map[string]float64{
			"x": position[0] * mmPerMeter,
			"y": position[1] * mmPerMeter,
			"z": position[2] * mmPerMeter,
		},
	}
	if len(orientation) > 0 {
		rm, err := spatialmath.NewRotationMatrix(orientation)
		if err != nil {
			return nil, err
		}
		ov := rm.OrientationVectorDegrees()
		link["orientation"] = map[string]any{
			"type":  "ov_degrees",
			"value": map[string]float64{"x": ov.OX, "y": ov.OY, "z": ov.OZ, "th": ov.Theta},
		}
	}
	return link, nil
}

// createKinematicsModel builds the referenceframe model of the arm ending at tool.
func createKinematicsModel(desc manipulator.Description, tool string) (referenceframe.Model, error) {
	data, err := kinematicsJSON(desc, tool)
	if err != nil {
		return nil, err
	}
	m := &referenceframe.ModelConfigJSON{
		OriginalFile: &referenceframe.ModelFile{
			Bytes:     data,
			Extension: "json",
		},
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal kinematics json")
	}
	model, err := m.ParseConfig(desc.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kinematics for %q: %w", desc.Name, err)
	}
	return model, nil
}
