// Package drawing generates tool paths for the preset shapes a pen manipulator draws. Each shape is
// a planar curve in the world XY plane, traversed with a minimum-jerk time law so the pen starts
// and stops at rest.
package drawing

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"om_arm/manipulator"
	"om_arm/trajectory"
)

// Kind selects a preset path.
type Kind int

const (
	Line Kind = iota
	Circle
	Rhombus
	Heart
	Spiral
)

var kindNames = map[Kind]string{
	Line:    "line",
	Circle:  "circle",
	Rhombus: "rhombus",
	Heart:   "heart",
	Spiral:  "spiral",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind returns the kind with the given lowercase name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownShape, "%q", name)
}

var (
	// ErrUnknownShape is returned for a Kind with no path.
	ErrUnknownShape = errors.New("unknown shape")
	// ErrInvalidRadius is returned for closed shapes with a non-positive radius.
	ErrInvalidRadius = errors.New("radius must be positive")
)

// Shape is the tagged description of a path. Fields not used by Kind are ignored.
type Shape struct {
	Kind Kind
	// Radius in meters for circle, rhombus, heart and spiral.
	Radius float64
	// StartAngle rotates closed shapes about their center, radians.
	StartAngle float64
	// Revolutions is the number of turns of a spiral. Zero means 2.
	Revolutions float64
	// Delta is the displacement of a line in meters.
	Delta r3.Vector
}

// Context holds the state of one drawing. It is owned by the caller; Sample does not mutate it.
type Context struct {
	Shape    Shape
	Start    r3.Vector
	MoveTime float64

	law   trajectory.Coefficients
	sweep float64
}

// pathFunc returns the offset from the start position at path parameter s in [0, sweep].
type pathFunc func(shape Shape, s float64) r3.Vector

type path struct {
	sweep func(shape Shape) float64
	at    pathFunc
}

var paths = map[Kind]path{
	Line: {
		sweep: func(Shape) float64 { return 1 },
		at:    func(shape Shape, s float64) r3.Vector { return shape.Delta.Mul(s) },
	},
	Circle: {
		sweep: func(Shape) float64 { return 2 * math.Pi },
		at:    circle,
	},
	Rhombus: {
		sweep: func(Shape) float64 { return 2 * math.Pi },
		at:    rhombus,
	},
	Heart: {
		sweep: func(Shape) float64 { return 2 * math.Pi },
		at:    heart,
	},
	Spiral: {
		sweep: func(shape Shape) float64 { return 2 * math.Pi * revolutions(shape) },
		at:    spiral,
	},
}

// Init prepares a drawing starting at start. moveTime is quantized to controlTime the same way
// joint trajectories are.
func Init(shape Shape, start r3.Vector, moveTime, controlTime float64) (*Context, error) {
	p, ok := paths[shape.Kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownShape, "kind %d", int(shape.Kind))
	}
	if shape.Kind != Line && !(shape.Radius > 0) {
		return nil, errors.Wrapf(ErrInvalidRadius, "%s radius %v", shape.Kind, shape.Radius)
	}
	_, effective, err := trajectory.QuantizeMoveTime(moveTime, controlTime)
	if err != nil {
		return nil, err
	}
	sweep := p.sweep(shape)
	law, err := trajectory.MinimumJerk(trajectory.WayPoint{}, trajectory.WayPoint{Value: sweep}, moveTime, controlTime)
	if err != nil {
		return nil, err
	}
	return &Context{
		Shape:    shape,
		Start:    start,
		MoveTime: effective,
		law:      law,
		sweep:    sweep,
	}, nil
}

// Sample returns the tool pose at tick seconds after the drawing started. Ticks outside
// [0, MoveTime] are clamped. Orientation is the identity; only position is drawn.
func Sample(c *Context, tick float64) manipulator.Pose {
	pose := manipulator.IdentityPose()
	pose.Position = c.Start.Add(paths[c.Shape.Kind].at(c.Shape, c.Parameter(tick)))
	return pose
}

// Parameter returns the path parameter at tick.
func (c *Context) Parameter(tick float64) float64 {
	tick = math.Max(0, math.Min(tick, c.MoveTime))
	s := c.law.Evaluate(tick).Value
	return math.Max(0, math.Min(s, c.sweep))
}

// Done reports whether tick has reached the end of the drawing.
func (c *Context) Done(tick float64) bool {
	return tick >= c.MoveTime
}

func revolutions(shape Shape) float64 {
	if shape.Revolutions > 0 {
		return shape.Revolutions
	}
	return 2
}

// onCircle returns the point at angle a on a circle of radius r centered at the origin.
func onCircle(r, a float64) r3.Vector {
	return r3.Vector{X: r * math.Cos(a), Y: r * math.Sin(a)}
}

func circle(shape Shape, s float64) r3.Vector {
	a := shape.StartAngle
	return onCircle(shape.Radius, a+s).Sub(onCircle(shape.Radius, a))
}

func rhombus(shape Shape, s float64) r3.Vector {
	quarter := math.Pi / 2
	k := math.Min(math.Floor(s/quarter), 3)
	f := (s - k*quarter) / quarter
	a := shape.StartAngle
	from := onCircle(shape.Radius, a+k*quarter)
	to := onCircle(shape.Radius, a+(k+1)*quarter)
	point := from.Add(to.Sub(from).Mul(f))
	return point.Sub(onCircle(shape.Radius, a))
}

// heartPoint is the classic heart curve scaled so its width is about 2r.
func heartPoint(r, t float64) r3.Vector {
	scale := r / 16
	return r3.Vector{
		X: scale * 16 * math.Pow(math.Sin(t), 3),
		Y: scale * (13*math.Cos(t) - 5*math.Cos(2*t) - 2*math.Cos(3*t) - math.Cos(4*t)),
	}
}

func heart(shape Shape, s float64) r3.Vector {
	offset := heartPoint(shape.Radius, s).Sub(heartPoint(shape.Radius, 0))
	return rotateZ(offset, shape.StartAngle)
}

func spiral(shape Shape, s float64) r3.Vector {
	sweep := 2 * math.Pi * revolutions(shape)
	return onCircle(shape.Radius*s/sweep, shape.StartAngle+s)
}

func rotateZ(v r3.Vector, a float64) r3.Vector {
	c, s := math.Cos(a), math.Sin(a)
	return r3.Vector{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y, Z: v.Z}
}
