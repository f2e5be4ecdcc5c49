// Package trajectory generates minimum-jerk quintic trajectories in joint space and task space and
// samples them at control ticks.
package trajectory

import "fmt"

// WayPoint is the kinematic state of one degree of freedom at one instant.
// Effort is the second derivative of Value (acceleration), not a force.
type WayPoint struct {
	Value    float64 `json:"value"`
	Velocity float64 `json:"velocity"`
	Effort   float64 `json:"effort"`
}

func (wp WayPoint) String() string {
	return fmt.Sprintf("{value: %.6f, velocity: %.6f, effort: %.6f}", wp.Value, wp.Velocity, wp.Effort)
}

// WayPointsFromValues builds resting way-points (zero velocity and effort) at the given values.
func WayPointsFromValues(values []float64) []WayPoint {
	wps := make([]WayPoint, len(values))
	for i, v := range values {
		wps[i] = WayPoint{Value: v}
	}
	return wps
}

// Values extracts the position component of each way-point.
func Values(wps []WayPoint) []float64 {
	values := make([]float64, len(wps))
	for i, wp := range wps {
		values[i] = wp.Value
	}
	return values
}

// CoefficientCount is the number of coefficients of a quintic polynomial.
const CoefficientCount = 6

// Coefficients holds c0..c5 of p(t) = c0 + c1 t + c2 t^2 + c3 t^3 + c4 t^4 + c5 t^5.
type Coefficients [CoefficientCount]float64

// Evaluate returns p(t), p'(t) and p''(t) as a way-point.
func (c Coefficients) Evaluate(t float64) WayPoint {
	t2 := t * t
	t3 := t2 * t
	t4 := t3 * t
	t5 := t4 * t
	return WayPoint{
		Value:    c[0] + c[1]*t + c[2]*t2 + c[3]*t3 + c[4]*t4 + c[5]*t5,
		Velocity: c[1] + 2*c[2]*t + 3*c[3]*t2 + 4*c[4]*t3 + 5*c[5]*t4,
		Effort:   2*c[2] + 6*c[3]*t + 12*c[4]*t2 + 20*c[5]*t3,
	}
}
