package processing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

type call struct {
	name string
	args []float64
}

type fakeHandler struct {
	calls  []call
	angles []float64
	tool   float64
	torque bool
}

func (f *fakeHandler) record(name string, args ...float64) {
	f.calls = append(f.calls, call{name: name, args: args})
}

func (f *fakeHandler) DOF() int { return 3 }

func (f *fakeHandler) JointAngles(context.Context) ([]float64, error) { return f.angles, nil }

func (f *fakeHandler) ToolValue(context.Context) (float64, error) { return f.tool, nil }

func (f *fakeHandler) SetTorque(_ context.Context, enable bool) error {
	f.torque = enable
	if enable {
		f.record("torque", 1)
	} else {
		f.record("torque", 0)
	}
	return nil
}

func (f *fakeHandler) JointMove(_ context.Context, goal []float64, moveTime float64) error {
	f.record("joint", append(goal, moveTime)...)
	return nil
}

func (f *fakeHandler) ToolMove(_ context.Context, value float64) error {
	f.record("tool", value)
	return nil
}

func (f *fakeHandler) PositionMove(_ context.Context, x, y, z, moveTime float64) error {
	f.record("pos", x, y, z, moveTime)
	return nil
}

func (f *fakeHandler) Motion(_ context.Context, start bool) error {
	if start {
		f.record("motion", 1)
	} else {
		f.record("motion", 0)
	}
	return nil
}

type stream struct {
	in  *strings.Reader
	out bytes.Buffer
}

func (s *stream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.out.Write(p) }

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{line: "om,ready\n", want: Command{Name: "om", Args: []string{"ready"}}},
		{line: "joint,0.1,-0.2,0.3\r\n", want: Command{Name: "joint", Args: []string{"0.1", "-0.2", "0.3"}}},
		{line: " torque , off ", want: Command{Name: "torque", Args: []string{"off"}}},
		{line: "motion", want: Command{Name: "motion", Args: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := Parse(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}

	_, err := Parse("  \n")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestFloats(t *testing.T) {
	cmd, err := Parse("joint,1,2,x")
	require.NoError(t, err)

	v, err := cmd.Floats(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, v)

	_, err = cmd.Floats(3)
	assert.ErrorIs(t, err, ErrBadArgument)
	_, err = cmd.Floats(4)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "angle,0.100,-1.571,0.000\n", FormatAngles([]float64{0.1, -1.5708, 0}))
	assert.Equal(t, "tool,-0.500\n", FormatTool(-0.5))
}

func TestServeDispatchesCommands(t *testing.T) {
	h := &fakeHandler{angles: []float64{0.1, 0.2, 0.3}, tool: -0.5}
	s := &stream{in: strings.NewReader(strings.Join([]string{
		"om,ready",
		"joint,-2.17,0.82,2.05",
		"tool,on",
		"tool,off",
		"tool,-0.25",
		"",
		"bogus,1",
		"pos,0.1,0.05",
		"motion,stop",
		"torque,off",
	}, "\n"))}

	link := NewLink(s, h, logging.NewTestLogger(t))
	require.NoError(t, link.Serve(context.Background()))

	assert.Equal(t, []call{
		{name: "torque", args: []float64{1}},
		{name: "joint", args: []float64{-2.17, 0.82, 2.05, JointMoveTime}},
		{name: "tool", args: []float64{ToolOn}},
		{name: "tool", args: []float64{ToolOff}},
		{name: "tool", args: []float64{-0.25}},
		{name: "pos", args: []float64{0.1, 0.05, DrawingHeight, PoseMoveTime}},
		{name: "motion", args: []float64{0}},
		{name: "torque", args: []float64{0}},
	}, h.calls)
	assert.Equal(t, "angle,0.100,0.200,0.300\ntool,-0.500\n", s.out.String())
	assert.False(t, h.torque)
}

func TestDispatchErrors(t *testing.T) {
	link := NewLink(&stream{in: strings.NewReader("")}, &fakeHandler{}, logging.NewTestLogger(t))
	ctx := context.Background()

	tests := []struct {
		line string
		want error
	}{
		{line: "unknown", want: ErrUnknownCommand},
		{line: "joint,1,2", want: ErrBadArgument},
		{line: "tool,maybe", want: ErrBadArgument},
		{line: "torque,sideways", want: ErrBadArgument},
		{line: "om,later", want: ErrBadArgument},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)
			assert.ErrorIs(t, link.Dispatch(ctx, cmd), tt.want)
		})
	}
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	link := NewLink(&stream{in: strings.NewReader("om,ready\n")}, &fakeHandler{}, logging.NewTestLogger(t))
	assert.ErrorIs(t, link.Serve(ctx), context.Canceled)
}
