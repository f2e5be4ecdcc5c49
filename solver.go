package om_arm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"

	"om_arm/manipulator"
)

const (
	solverMaxIterations = 100
	// Position tolerance in meters.
	solverTolerance = 1e-6
	solverDamping   = 1e-3
	jacobianStep    = 1e-6
)

// ErrNoSolution is returned when the solver cannot bring the tool onto the target.
var ErrNoSolution = errors.New("no inverse kinematics solution")

// JacobianSolver solves for the tool position with damped least squares over the forward
// kinematics of its own copy of the manipulator. Only the tool position is solved for.
type JacobianSolver struct {
	mu         sync.Mutex
	m          *manipulator.Manipulator
	mins, maxs []float64
}

// NewJacobianSolver builds a solver for desc.
func NewJacobianSolver(desc manipulator.Description) (*JacobianSolver, error) {
	m, err := desc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build solver manipulator %q: %w", desc.Name, err)
	}
	mins, maxs := desc.ActiveJointLimits()
	return &JacobianSolver{m: m, mins: mins, maxs: maxs}, nil
}

// Solve starts at current and iterates until the tool is within tolerance of target, which is in
// millimeters. Joint limits are enforced after every step.
func (s *JacobianSolver) Solve(ctx context.Context, tool string, current []float64, target spatialmath.Pose) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal := target.Point().Mul(1 / mmPerMeter)
	q := make([]float64, len(current))
	copy(q, current)

	n := len(q)
	jac := mat.NewDense(3, n, nil)
	residual := math.Inf(1)
	for i := 0; i < solverMaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.position(tool, q)
		if err != nil {
			return nil, err
		}
		e := goal.Sub(p)
		residual = e.Norm()
		if residual < solverTolerance {
			return q, nil
		}
		if err := s.jacobian(tool, q, jac); err != nil {
			return nil, err
		}

		// dq = J^T (J J^T + λ²I)^-1 e
		var jjt mat.SymDense
		jjt.SymOuterK(1, jac)
		for k := 0; k < 3; k++ {
			jjt.SetSym(k, k, jjt.At(k, k)+solverDamping*solverDamping)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(&jjt); !ok {
			return nil, fmt.Errorf("%w: damped jacobian not positive definite", ErrNoSolution)
		}
		var w mat.VecDense
		if err := chol.SolveVecTo(&w, mat.NewVecDense(3, []float64{e.X, e.Y, e.Z})); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSolution, err)
		}
		var dq mat.VecDense
		dq.MulVec(jac.T(), &w)
		for k := range q {
			q[k] = s.clamp(k, q[k]+dq.AtVec(k))
		}
	}
	return nil, fmt.Errorf("%w: tool %q residual %.3g m after %d iterations",
		ErrNoSolution, tool, residual, solverMaxIterations)
}

// position returns the tool position in meters at joint angles q.
func (s *JacobianSolver) position(tool string, q []float64) (r3.Vector, error) {
	if err := s.m.SetAllActiveJointAngle(q); err != nil {
		return r3.Vector{}, err
	}
	pose, err := s.m.ToolPose(tool)
	if err != nil {
		return r3.Vector{}, err
	}
	return pose.Position, nil
}

// jacobian fills jac with central differences of the tool position.
func (s *JacobianSolver) jacobian(tool string, q []float64, jac *mat.Dense) error {
	offset := make([]float64, len(q))
	for k := range q {
		copy(offset, q)
		offset[k] = q[k] + jacobianStep
		plus, err := s.position(tool, offset)
		if err != nil {
			return err
		}
		offset[k] = q[k] - jacobianStep
		minus, err := s.position(tool, offset)
		if err != nil {
			return err
		}
		d := plus.Sub(minus).Mul(1 / (2 * jacobianStep))
		jac.Set(0, k, d.X)
		jac.Set(1, k, d.Y)
		jac.Set(2, k, d.Z)
	}
	return nil
}

func (s *JacobianSolver) clamp(k int, a float64) float64 {
	if k >= len(s.mins) {
		return a
	}
	lo, hi := s.mins[k], s.maxs[k]
	if lo == 0 && hi == 0 {
		return a
	}
	return math.Max(lo, math.Min(hi, a))
}
