// Package devicefactory picks the Bluetooth backend for a session.
package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/config"
	"github.com/srg/blesail/internal/device"
	goble "github.com/srg/blesail/internal/device/go-ble"
	"github.com/srg/blesail/internal/simulator"
)

// NewCentral returns the host radio central, or a central bound to the
// in-process sensor simulator when cfg.Simulate is set.
func NewCentral(cfg *config.Config, logger *logrus.Logger) device.Central {
	if cfg != nil && cfg.Simulate {
		return NewSimulatedCentral(&simulator.Options{Interval: cfg.SimInterval}, logger)
	}
	return goble.NewCentral(logger)
}

// NewSimulatedCentral returns a central whose only peripheral is the simulated sensor
func NewSimulatedCentral(opts *simulator.Options, logger *logrus.Logger) *goble.Central {
	radio := simulator.NewRadio(opts, logger)
	if logger != nil {
		o := radio.Options()
		logger.WithFields(logrus.Fields{
			"name":     o.Name,
			"address":  o.Address,
			"interval": o.Interval,
		}).Info("Using simulated sensor")
	}
	return goble.NewCentralWithRadio(radio, logger)
}
