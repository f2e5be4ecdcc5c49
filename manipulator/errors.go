package manipulator

import "github.com/pkg/errors"

var (
	// ErrComponentNotFound is returned when a name does not address a component in the tree.
	ErrComponentNotFound = errors.New("component not found")
	// ErrDuplicateComponent is returned when a component name is added twice.
	ErrDuplicateComponent = errors.New("component already exists")
	// ErrParentNotFound is returned when a component names a parent that is neither the world nor
	// an earlier component.
	ErrParentNotFound = errors.New("parent component not found")
	// ErrWorldNotDefined is returned when components are added before the world.
	ErrWorldNotDefined = errors.New("world is not defined")
	// ErrWorldAlreadyDefined is returned by a second AddWorld.
	ErrWorldAlreadyDefined = errors.New("world is already defined")
	// ErrNotAJoint is returned when joint kinematics are set on a tool.
	ErrNotAJoint = errors.New("component is a tool, not a joint")
	// ErrNotATool is returned when tool state is set on a component without a tool id.
	ErrNotATool = errors.New("component is not a tool")
	// ErrSizeMismatch is returned for vectors whose length does not match what the tree expects.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrInvalidOrientation is returned for a missing rotation matrix.
	ErrInvalidOrientation = errors.New("orientation must be a 3x3 rotation matrix")
	// ErrInvalidInertia is returned for an inertia tensor that is not 3x3.
	ErrInvalidInertia = errors.New("inertia tensor must be 3x3")
	// ErrInvalidID is returned for a joint or tool id below the unassigned sentinel.
	ErrInvalidID = errors.New("invalid actuator id")
)

func notFound(name string) error {
	return errors.Wrapf(ErrComponentNotFound, "%q", name)
}

func sizeMismatch(what string, got, want int) error {
	return errors.Wrapf(ErrSizeMismatch, "%s: got %d, want %d", what, got, want)
}
