package om_arm

import "om_arm/manipulator"

// sharedRegistry holds the controllers of every component in this module process.
var sharedRegistry = NewControllerRegistry()

// GetSharedController returns the controller shared by components configured with the same
// description. Each successful call must be paired with ReleaseSharedController.
func GetSharedController(cfg *Config) (*Controller, error) {
	return sharedRegistry.GetController(cfg)
}

// ReleaseSharedController drops one reference taken by GetSharedController.
func ReleaseSharedController(cfg *Config) {
	sharedRegistry.ReleaseController(cfg.key())
}

// ForceCloseSharedController closes the controller for cfg regardless of its references.
func ForceCloseSharedController(cfg *Config) error {
	return sharedRegistry.ForceCloseController(cfg.key())
}

// GetControllerStatus reports the shared controller for cfg.
func GetControllerStatus(cfg *Config) (int64, bool, string) {
	return sharedRegistry.GetControllerStatus(cfg.key())
}

// sharedDescription returns the description the shared controller for cfg was built from.
func sharedDescription(cfg *Config) (manipulator.Description, bool) {
	return sharedRegistry.GetDescription(cfg.key())
}
