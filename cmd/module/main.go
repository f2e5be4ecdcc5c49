package main

import (
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"

	omArm "om_arm"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: arm.API, Model: omArm.SCARAModel},
		resource.APIModel{API: gripper.API, Model: omArm.PenModel},
		resource.APIModel{API: sensor.API, Model: omArm.StateSensorModel},
		resource.APIModel{API: discovery.API, Model: omArm.DiscoveryModel},
	)
}
