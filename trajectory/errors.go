package trajectory

import "github.com/pkg/errors"

var (
	// ErrSingularMoveTime is returned when the quantized move time is not strictly positive.
	ErrSingularMoveTime = errors.New("move time must be at least one control period")
	// ErrInvalidControlTime is returned for a non-positive or non-finite control period.
	ErrInvalidControlTime = errors.New("control time must be positive and finite")
	// ErrSizeMismatch is returned when way-point counts disagree with the trajectory's DOF.
	ErrSizeMismatch = errors.New("way-point count does not match degrees of freedom")
	// ErrInvalidWayPoint is returned for way-points carrying NaN or Inf.
	ErrInvalidWayPoint = errors.New("way-point must be finite")
)

func sizeMismatch(what string, got, want int) error {
	return errors.Wrapf(ErrSizeMismatch, "%s: got %d, want %d", what, got, want)
}
