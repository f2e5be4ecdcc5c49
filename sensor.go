package om_arm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/utils"

	"om_arm/manipulator"
)

var (
	StateSensorModel = resource.NewModel("devrel", "open-manipulator", "state")
)

func init() {
	resource.RegisterComponent(sensor.API, StateSensorModel,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: NewStateSensor,
		},
	)
}

const limitSamplePeriod = 50 * time.Millisecond

// LimitsState is the step of the joint limit recording workflow.
type LimitsState int

const (
	LimitsIdle LimitsState = iota
	LimitsRecording
	LimitsCompleted
	LimitsError
)

func (s LimitsState) String() string {
	switch s {
	case LimitsIdle:
		return "idle"
	case LimitsRecording:
		return "recording"
	case LimitsCompleted:
		return "completed"
	case LimitsError:
		return "error"
	default:
		return "unknown"
	}
}

// jointRange is the span of angles seen for one joint while recording.
type jointRange struct {
	Name string
	Min  float64
	Max  float64
}

// stateSensor reports the controller state and records joint limits: with torque off the arm is
// moved by hand through its range and the extremes are written back to the description file.
type stateSensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	cfg        *Config
	controller *Controller

	mu              sync.RWMutex
	state           LimitsState
	errorMsg        string
	lastInstruction string
	ranges          []jointRange
	samples         int
	recordingStart  time.Time
	recorder        *utils.StoppableWorkers
}

// NewStateSensor creates the state sensor.
func NewStateSensor(
	ctx context.Context,
	deps resource.Dependencies,
	rawConf resource.Config,
	logger logging.Logger,
) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger

	controller, err := GetSharedController(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to get shared controller: %w", err)
	}

	cs := &stateSensor{
		name:            rawConf.ResourceName(),
		logger:          logger,
		cfg:             conf,
		controller:      controller,
		state:           LimitsIdle,
		lastInstruction: "Ready. Use DoCommand with 'start_limits' to record joint limits.",
	}
	cs.resetRanges()

	logger.Infof("state sensor initialized for %d joints", controller.Manipulator().DOF())
	return cs, nil
}

func (cs *stateSensor) Name() resource.Name {
	return cs.name
}

// Readings returns the controller state and the limit recording status.
func (cs *stateSensor) Readings(ctx context.Context, extra map[string]any) (map[string]any, error) {
	readings := cs.controller.State()

	cs.mu.RLock()
	defer cs.mu.RUnlock()

	readings["limits_state"] = cs.state.String()
	readings["instruction"] = cs.lastInstruction
	if cs.state == LimitsError {
		readings["error"] = cs.errorMsg
	}
	if cs.state == LimitsRecording {
		readings["recording_time_seconds"] = time.Since(cs.recordingStart).Seconds()
		readings["position_samples"] = cs.samples
	}
	if cs.state == LimitsRecording || cs.state == LimitsCompleted {
		readings["ranges"] = cs.rangeData()
	}

	availableCommands := []any{}
	switch cs.state {
	case LimitsIdle, LimitsError:
		availableCommands = []any{"start_limits"}
	case LimitsRecording:
		availableCommands = []any{"stop_limits", "abort"}
	case LimitsCompleted:
		availableCommands = []any{"save_limits", "start_limits", "abort"}
	}
	readings["available_commands"] = availableCommands

	return readings, nil
}

// DoCommand drives the limit recording workflow.
func (cs *stateSensor) DoCommand(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("command must be a string")
	}

	switch command {
	case "start_limits":
		return cs.startRecording(ctx)
	case "stop_limits":
		return cs.stopRecording(ctx)
	case "save_limits":
		return cs.saveLimits(ctx)
	case "abort":
		return cs.abort(ctx)
	case "get_current_positions":
		return cs.currentPositions(ctx)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (cs *stateSensor) startRecording(ctx context.Context) (map[string]any, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.state == LimitsRecording {
		return map[string]any{"success": false}, fmt.Errorf("limit recording already in progress")
	}

	cs.controller.Stop()
	if err := cs.controller.SetTorque(ctx, false); err != nil {
		cs.setState(LimitsError, fmt.Sprintf("Failed to disable torque: %v", err))
		return map[string]any{"success": false}, err
	}

	cs.resetRanges()
	cs.samples = 0
	cs.recordingStart = time.Now()
	cs.recorder = utils.NewStoppableWorkerWithTicker(limitSamplePeriod, cs.recordSample)
	cs.setState(LimitsRecording, "Move every joint through its full range, then use 'stop_limits'.")

	return map[string]any{
		"success": true,
		"state":   cs.state.String(),
		"message": cs.lastInstruction,
	}, nil
}

// recordSample reads the joints and widens the recorded ranges.
func (cs *stateSensor) recordSample(ctx context.Context) {
	if err := cs.controller.SyncFromActuator(ctx); err != nil {
		cs.logger.Debugf("failed to read joints while recording: %v", err)
		return
	}
	angles := cs.controller.JointAngles()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for i, a := range angles {
		if i >= len(cs.ranges) {
			break
		}
		cs.ranges[i].Min = math.Min(cs.ranges[i].Min, a)
		cs.ranges[i].Max = math.Max(cs.ranges[i].Max, a)
	}
	cs.samples++
}

func (cs *stateSensor) stopRecording(ctx context.Context) (map[string]any, error) {
	cs.stopRecorder()

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.state != LimitsRecording {
		return map[string]any{"success": false}, fmt.Errorf("not recording (state: %s)", cs.state.String())
	}
	if cs.samples == 0 {
		cs.setState(LimitsError, "No joint samples were recorded.")
		return map[string]any{"success": false}, fmt.Errorf("no joint samples recorded")
	}

	recordingDuration := time.Since(cs.recordingStart)
	cs.setState(LimitsCompleted, "Limits recorded. Use 'save_limits' to write them to the description file.")

	return map[string]any{
		"success":            true,
		"state":              cs.state.String(),
		"recording_duration": recordingDuration.Seconds(),
		"samples_collected":  cs.samples,
		"ranges":             cs.rangeData(),
		"message":            cs.lastInstruction,
	}, nil
}

// saveLimits writes the recorded ranges into the description and saves it to the description file.
func (cs *stateSensor) saveLimits(_ context.Context) (map[string]any, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.state != LimitsCompleted {
		return map[string]any{"success": false},
			fmt.Errorf("limit recording not completed (current state: %s)", cs.state.String())
	}

	desc, _ := sharedDescription(cs.cfg)
	desc.Components = append([]manipulator.ComponentDescription(nil), desc.Components...)
	byName := map[string]jointRange{}
	for _, r := range cs.ranges {
		byName[r.Name] = r
	}
	for i, c := range desc.Components {
		if r, ok := byName[c.Name]; ok {
			desc.Components[i].MinAngle = r.Min
			desc.Components[i].MaxAngle = r.Max
		}
	}

	file := cs.cfg.DescriptionFile
	if file == "" {
		file = defaultDescriptionName + ".json"
	}
	path := resolveModuleDataPath(file)
	if err := desc.Save(path); err != nil {
		cs.setState(LimitsError, fmt.Sprintf("Failed to save description file: %v", err))
		return map[string]any{"success": false}, err
	}

	cs.setState(LimitsIdle, "Limits saved. They apply the next time the controller is created.")

	return map[string]any{
		"success":          true,
		"state":            cs.state.String(),
		"description_file": path,
		"joints":           len(cs.ranges),
		"message":          cs.lastInstruction,
	}, nil
}

func (cs *stateSensor) abort(_ context.Context) (map[string]any, error) {
	cs.stopRecorder()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.setState(LimitsIdle, "Limit recording aborted.")
	return map[string]any{
		"success": true,
		"state":   cs.state.String(),
		"message": cs.lastInstruction,
	}, nil
}

func (cs *stateSensor) currentPositions(ctx context.Context) (map[string]any, error) {
	if err := cs.controller.SyncFromActuator(ctx); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	names := cs.controller.Manipulator().ActiveJointNames()
	angles := cs.controller.JointAngles()

	positionData := make(map[string]any)
	for i, name := range names {
		positionData[name] = map[string]any{
			"radians": angles[i],
			"degrees": angles[i] * 180 / math.Pi,
		}
	}

	return map[string]any{
		"success":   true,
		"positions": positionData,
	}, nil
}

func (cs *stateSensor) stopRecorder() {
	cs.mu.Lock()
	recorder := cs.recorder
	cs.recorder = nil
	cs.mu.Unlock()
	if recorder != nil {
		recorder.Stop()
	}
}

func (cs *stateSensor) resetRanges() {
	names := cs.controller.Manipulator().ActiveJointNames()
	cs.ranges = make([]jointRange, len(names))
	for i, name := range names {
		cs.ranges[i] = jointRange{Name: name, Min: math.Inf(1), Max: math.Inf(-1)}
	}
}

func (cs *stateSensor) rangeData() map[string]any {
	data := make(map[string]any, len(cs.ranges))
	for _, r := range cs.ranges {
		if math.IsInf(r.Min, 0) {
			continue
		}
		data[r.Name] = map[string]any{"min": r.Min, "max": r.Max}
	}
	return data
}

// setState updates the workflow state and instruction message
func (cs *stateSensor) setState(state LimitsState, instruction string) {
	cs.state = state
	cs.lastInstruction = instruction

	if state == LimitsError {
		cs.errorMsg = instruction
		cs.logger.Errorf("Limit recording error: %s", instruction)
	} else {
		cs.errorMsg = ""
		cs.logger.Infof("Limit recording state: %s - %s", state.String(), instruction)
	}
}

func (cs *stateSensor) Close(ctx context.Context) error {
	cs.stopRecorder()
	ReleaseSharedController(cs.cfg)
	return nil
}
