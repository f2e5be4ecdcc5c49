package om_arm

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/referenceframe"

	"om_arm/manipulator"
)

func TestKinematicsJSONLayout(t *testing.T) {
	data, err := kinematicsJSON(manipulator.DefaultSCARA(), "tool")
	require.NoError(t, err)

	var parsed struct {
		Name  string `json:"name"`
		Type  string `json:"kinematic_param_type"`
		Links  []struct {
			ID     string `json:"id"`
			Parent string `json:"parent"`
		} `json:"links"`
		Joints []struct {
			ID     string  `json:"id"`
			Parent string  `json:"parent"`
			Min    float64 `json:"min"`
			Max    float64 `json:"max"`
		} `json:"joints"`
	}
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "om_scara", parsed.Name)
	assert.Equal(t, "SVA", parsed.Type)
	require.Len(t, parsed.Links, 5)
	assert.Equal(t, baseLinkName, parsed.Links[0].ID)
	assert.Equal(t, "joint1_offset", parsed.Links[1].ID)
	assert.Equal(t, baseLinkName, parsed.Links[1].Parent)
	assert.Equal(t, "joint1", parsed.Links[2].Parent)
	assert.Equal(t, "tool", parsed.Links[4].ID)
	assert.Equal(t, "joint3", parsed.Links[4].Parent)

	require.Len(t, parsed.Joints, 3)
	assert.Equal(t, "joint2", parsed.Joints[1].ID)
	assert.Equal(t, "joint2_offset", parsed.Joints[1].Parent)
	assert.InDelta(t, -2.2*180/math.Pi, parsed.Joints[1].Min, 1e-9)
	assert.InDelta(t, 2.2*180/math.Pi, parsed.Joints[1].Max, 1e-9)
}

func TestKinematicsJSONUnknownTool(t *testing.T) {
	_, err := kinematicsJSON(manipulator.DefaultSCARA(), "gripper")
	assert.ErrorIs(t, err, manipulator.ErrComponentNotFound)
}

func TestKinematicsModelMatchesForwardKinematics(t *testing.T) {
	model, err := createKinematicsModel(manipulator.DefaultSCARA(), "tool")
	require.NoError(t, err)
	require.Len(t, model.DoF(), 3)

	tests := []struct {
		name   string
		angles []float64
		want   r3.Vector
	}{
		{"zero", []float64{0, 0, 0}, r3.Vector{X: 241, Y: 0, Z: 68.5}},
		{"base quarter turn", []float64{math.Pi / 2, 0, 0}, r3.Vector{X: 0, Y: 241, Z: 68.5}},
		{"elbow quarter turn", []float64{0, math.Pi / 2, 0}, r3.Vector{X: 67, Y: 174, Z: 68.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose, err := model.Transform(referenceframe.FloatsToInputs(tt.angles))
			require.NoError(t, err)
			got := pose.Point()
			assert.InDelta(t, tt.want.X, got.X, 1e-6)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-6)
			assert.InDelta(t, tt.want.Z, got.Z, 1e-6)
		})
	}
}

func TestKinematicsModelAgreesWithController(t *testing.T) {
	c, _ := newTestController(t, nil)
	model, err := createKinematicsModel(manipulator.DefaultSCARA(), c.ToolName())
	require.NoError(t, err)

	goal := []float64{0.3, -0.7, 1.1}
	id, err := c.JointMove(context.Background(), goal, testMoveTime)
	require.NoError(t, err)
	require.NoError(t, c.Await(context.Background(), id))

	toolPose, err := c.ToolPose(c.ToolName())
	require.NoError(t, err)
	pose, err := model.Transform(referenceframe.FloatsToInputs(c.JointAngles()))
	require.NoError(t, err)

	want := toolPose.Position.Mul(mmPerMeter)
	got := pose.Point()
	assert.InDelta(t, want.X, got.X, 1e-6)
	assert.InDelta(t, want.Y, got.Y, 1e-6)
	assert.InDelta(t, want.Z, got.Z, 1e-6)
}
