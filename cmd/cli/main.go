package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	omArm "om_arm"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	description := flag.String("description", "", "manipulator description JSON (empty uses the built-in SCARA)")
	port := flag.String("port", "", "serial port of the Processing GUI")
	baud := flag.Int("baud", 0, "Processing baud rate")
	controlTime := flag.Float64("control-time", 0.010, "control period in seconds")
	goal := flag.String("goal", "", "comma separated joint angles in radians")
	moveTime := flag.Float64("move-time", 2.0, "joint move duration in seconds")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	logger := logging.NewLogger("om-cli")

	cfg := &omArm.Config{
		DescriptionFile:    *description,
		ControlTimeSec:     *controlTime,
		ProcessingPort:     *port,
		ProcessingBaudrate: *baud,
		Logger:             logger,
	}
	if _, _, err := cfg.Validate("cli"); err != nil {
		return err
	}

	controller, err := omArm.GetSharedController(cfg)
	if err != nil {
		return err
	}
	defer omArm.ReleaseSharedController(cfg)

	if err := controller.SetTorque(ctx, true); err != nil {
		return err
	}
	logger.Infof("controller ready: %v", controller.State())

	if *goal != "" {
		angles, err := parseAngles(*goal)
		if err != nil {
			return err
		}
		start := time.Now()
		id, err := controller.JointMove(ctx, angles, *moveTime)
		if err != nil {
			return err
		}
		if err := controller.Await(ctx, id); err != nil {
			return err
		}
		logger.Infof("reached %v in %v", controller.JointAngles(), time.Since(start))
		pose, err := controller.ToolPose(controller.ToolName())
		if err != nil {
			return err
		}
		logger.Infof("tool %q at %v", controller.ToolName(), pose.Position)
	}

	if *port == "" {
		return nil
	}

	logger.Infof("serving Processing on %s, interrupt to exit", *port)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logger.Debugf("state: %v", controller.State())
		}
	}
}

func parseAngles(s string) ([]float64, error) {
	var angles []float64
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "joint angle %q", field)
		}
		angles = append(angles, v)
	}
	return angles, nil
}
