package manipulator

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
)

// UpdatePoses propagates world poses from the world frame down the tree using the current joint
// angles. A component's world pose is its parent's world pose composed with its fixed offset and
// then rotated about its joint axis by its joint angle. Tools are rigidly attached.
func (m *Manipulator) UpdatePoses() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.worldDefined {
		return ErrWorldNotDefined
	}

	world := m.world.Pose
	// Parents are always inserted before their children, so arena order is a valid topological order.
	for id := range m.nodes {
		n := &m.nodes[id]
		parentPosition, parentRotation := world.Position, toDense(world.Orientation)
		if n.parent != worldID {
			p := m.nodes[n.parent].PoseToWorld
			parentPosition, parentRotation = p.Position, toDense(p.Orientation)
		}

		offset := mulVec(parentRotation, n.RelativeToParent.Position)
		var fixed mat.Dense
		fixed.Mul(parentRotation, toDense(n.RelativeToParent.Orientation))
		rot := &fixed
		if !n.IsTool() && n.Joint.Angle != 0 {
			var turned mat.Dense
			turned.Mul(&fixed, rodrigues(n.Joint.Axis, n.Joint.Angle))
			rot = &turned
		}

		rm, err := fromDense(rot)
		if err != nil {
			return err
		}
		n.PoseToWorld = Pose{Position: parentPosition.Add(offset), Orientation: rm}
	}
	return nil
}

// ToolPose propagates poses and returns the named component's world pose.
func (m *Manipulator) ToolPose(name string) (Pose, error) {
	if err := m.UpdatePoses(); err != nil {
		return Pose{}, err
	}
	return m.ComponentPoseToWorld(name)
}

func toDense(rm *spatialmath.RotationMatrix) *mat.Dense {
	if rm == nil {
		rm = identityRotation()
	}
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		row := rm.Row(i)
		d.SetRow(i, []float64{row.X, row.Y, row.Z})
	}
	return d
}

func fromDense(d *mat.Dense) (*spatialmath.RotationMatrix, error) {
	data := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		data = append(data, d.RawRowView(i)...)
	}
	return spatialmath.NewRotationMatrix(data)
}

func mulVec(d *mat.Dense, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(d, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// rodrigues returns the rotation of angle radians about axis. A zero axis yields the identity.
func rodrigues(axis r3.Vector, angle float64) *mat.Dense {
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if axis.Norm() == 0 {
		return r
	}
	a := axis.Normalize()
	k := mat.NewDense(3, 3, []float64{
		0, -a.Z, a.Y,
		a.Z, 0, -a.X,
		-a.Y, a.X, 0,
	})
	var k2 mat.Dense
	k2.Mul(k, k)

	var sk, ck mat.Dense
	sk.Scale(math.Sin(angle), k)
	ck.Scale(1-math.Cos(angle), &k2)
	var out mat.Dense
	out.Add(r, &sk)
	out.Add(&out, &ck)
	return &out
}
