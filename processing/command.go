// Package processing speaks the line protocol of the Processing desktop GUI that drives the
// manipulator. Each line is a comma separated command name followed by its arguments.
package processing

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Inbound command names.
const (
	CmdOM     = "om"
	CmdJoint  = "joint"
	CmdTool   = "tool"
	CmdPos    = "pos"
	CmdTorque = "torque"
	CmdMotion = "motion"
)

// Outbound record names.
const (
	RecordAngle = "angle"
	RecordTool  = "tool"
)

var (
	// ErrEmptyCommand is returned for blank lines.
	ErrEmptyCommand = errors.New("empty command")
	// ErrUnknownCommand is returned for a command name the link does not handle.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadArgument is returned when an argument is missing or malformed.
	ErrBadArgument = errors.New("bad argument")
)

// Command is one parsed line.
type Command struct {
	Name string
	Args []string
}

// Parse splits a line into a command. Surrounding whitespace and line endings are ignored.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyCommand
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return Command{Name: fields[0], Args: fields[1:]}, nil
}

// String renders the command in wire form without the line ending.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), ",")
}

// Arg returns the i-th argument or an empty string.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Floats parses the first n arguments.
func (c Command) Floats(n int) ([]float64, error) {
	if len(c.Args) < n {
		return nil, errors.Wrapf(ErrBadArgument, "%s: want %d values, got %d", c.Name, n, len(c.Args))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(c.Args[i], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrBadArgument, "%s: argument %d %q", c.Name, i, c.Args[i])
		}
		out[i] = v
	}
	return out, nil
}

// FormatAngles renders an angle record.
func FormatAngles(angles []float64) string {
	return formatRecord(RecordAngle, angles)
}

// FormatTool renders a tool record.
func FormatTool(value float64) string {
	return formatRecord(RecordTool, []float64{value})
}

func formatRecord(name string, values []float64) string {
	var b strings.Builder
	b.WriteString(name)
	for _, v := range values {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'f', 3, 64))
	}
	b.WriteByte('\n')
	return b.String()
}
