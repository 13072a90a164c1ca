package managers

import (
	"fmt"

	"go.uber.org/zap"
)

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// ControllerManager starts the presentation-facing controllers
type ControllerManager struct {
	controllers []namedController
	logger      *zap.SugaredLogger
}

type namedController struct {
	name       string
	controller Controller
}

// NewControllerManager creates a new controller manager
func NewControllerManager(logger *zap.SugaredLogger) *ControllerManager {
	return &ControllerManager{logger: logger}
}

// AddController registers a controller to be started by StartControllers
func (cm *ControllerManager) AddController(name string, c Controller) {
	cm.controllers = append(cm.controllers, namedController{name: name, controller: c})
}

// StartControllers starts every registered controller, stopping at the first failure
func (cm *ControllerManager) StartControllers() error {
	cm.logger.Info("Starting controller manager...")

	for _, c := range cm.controllers {
		if err := c.controller.StartController(); err != nil {
			return fmt.Errorf("error starting %s controller: %w", c.name, err)
		}
	}

	cm.logger.Infof("Started %d controllers successfully", len(cm.controllers))
	return nil
}
