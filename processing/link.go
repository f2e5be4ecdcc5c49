package processing

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Fixed parameters of the GUI protocol.
const (
	// JointMoveTime is the move time of a "joint" command, seconds.
	JointMoveTime = 1.0
	// PoseMoveTime is the move time of a "pos" command, seconds.
	PoseMoveTime = 1.5
	// DrawingHeight is the tool height of a "pos" command, meters.
	DrawingHeight = 0.057
	// ToolOn and ToolOff are the tool values of "tool,on" and "tool,off".
	ToolOn  = 0.0
	ToolOff = -1.0
)

// Handler executes commands received from the GUI.
type Handler interface {
	DOF() int
	JointAngles(ctx context.Context) ([]float64, error)
	ToolValue(ctx context.Context) (float64, error)
	SetTorque(ctx context.Context, enable bool) error
	JointMove(ctx context.Context, goal []float64, moveTime float64) error
	ToolMove(ctx context.Context, value float64) error
	PositionMove(ctx context.Context, x, y, z, moveTime float64) error
	Motion(ctx context.Context, start bool) error
}

// Link connects a GUI stream to a Handler.
type Link struct {
	rw      io.ReadWriter
	handler Handler
	logger  logging.Logger

	writeMu sync.Mutex
}

// NewLink returns a link over rw. rw is typically a serial port.
func NewLink(rw io.ReadWriter, handler Handler, logger logging.Logger) *Link {
	return &Link{rw: rw, handler: handler, logger: logger}
}

// Serve reads commands until ctx is done or the stream ends. Malformed or failing commands are
// logged and do not stop the link. Reads that return no data, as a serial port with a read timeout
// does, are retried.
func (l *Link) Serve(ctx context.Context) error {
	r := bufio.NewReader(idleReader{l.rw})
	var pending []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := r.ReadBytes('\n')
		pending = append(pending, chunk...)
		switch {
		case err == nil:
			line := string(pending)
			pending = pending[:0]
			l.handleLine(ctx, line)
		case errors.Is(err, errIdle), errors.Is(err, io.ErrNoProgress):
			continue
		case errors.Is(err, io.EOF):
			if len(pending) > 0 {
				l.handleLine(ctx, string(pending))
			}
			return nil
		default:
			return errors.Wrap(err, "reading from processing link")
		}
	}
}

var errIdle = errors.New("no data before read timeout")

// idleReader turns an empty read into errIdle so Serve checks its context between timeouts.
type idleReader struct {
	r io.Reader
}

func (ir idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n == 0 && err == nil {
		return 0, errIdle
	}
	return n, err
}

func (l *Link) handleLine(ctx context.Context, line string) {
	cmd, err := Parse(line)
	if errors.Is(err, ErrEmptyCommand) {
		return
	}
	if err == nil {
		err = l.Dispatch(ctx, cmd)
	}
	if err != nil {
		l.logger.Warnf("processing command %q failed: %v", line, err)
	}
}

// Dispatch executes one command.
func (l *Link) Dispatch(ctx context.Context, cmd Command) error {
	l.logger.Debugf("processing command %s", cmd)
	switch cmd.Name {
	case CmdOM:
		switch cmd.Arg(0) {
		case "ready":
			if err := l.handler.SetTorque(ctx, true); err != nil {
				return err
			}
			return l.SendState(ctx)
		case "end":
			return l.handler.SetTorque(ctx, false)
		}
	case CmdJoint:
		goal, err := cmd.Floats(l.handler.DOF())
		if err != nil {
			return err
		}
		return l.handler.JointMove(ctx, goal, JointMoveTime)
	case CmdTool:
		switch cmd.Arg(0) {
		case "on":
			return l.handler.ToolMove(ctx, ToolOn)
		case "off":
			return l.handler.ToolMove(ctx, ToolOff)
		}
		v, err := strconv.ParseFloat(cmd.Arg(0), 64)
		if err != nil {
			return errors.Wrapf(ErrBadArgument, "tool value %q", cmd.Arg(0))
		}
		return l.handler.ToolMove(ctx, v)
	case CmdPos:
		xy, err := cmd.Floats(2)
		if err != nil {
			return err
		}
		return l.handler.PositionMove(ctx, xy[0], xy[1], DrawingHeight, PoseMoveTime)
	case CmdTorque:
		switch cmd.Arg(0) {
		case "on":
			return l.handler.SetTorque(ctx, true)
		case "off":
			return l.handler.SetTorque(ctx, false)
		}
	case CmdMotion:
		switch cmd.Arg(0) {
		case "start":
			return l.handler.Motion(ctx, true)
		case "stop":
			return l.handler.Motion(ctx, false)
		}
	default:
		return errors.Wrapf(ErrUnknownCommand, "%q", cmd.Name)
	}
	return errors.Wrapf(ErrBadArgument, "%s: %q", cmd.Name, cmd.Arg(0))
}

// SendState writes the current joint angles and tool value to the GUI.
func (l *Link) SendState(ctx context.Context) error {
	angles, err := l.handler.JointAngles(ctx)
	if err != nil {
		return err
	}
	tool, err := l.handler.ToolValue(ctx)
	if err != nil {
		return err
	}
	return l.write(FormatAngles(angles) + FormatTool(tool))
}

// SendAngles writes a joint angle record to the GUI.
func (l *Link) SendAngles(angles []float64) error {
	return l.write(FormatAngles(angles))
}

func (l *Link) write(s string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := io.WriteString(l.rw, s); err != nil {
		return errors.Wrap(err, "writing to processing link")
	}
	return nil
}
