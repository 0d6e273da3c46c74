package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
)

const (
	// DefaultScanTimeout bounds RequestDevice when no timeout is given
	DefaultScanTimeout = 10 * time.Second

	// DefaultConnectTimeout bounds Peripheral.Connect when no timeout is given
	DefaultConnectTimeout = 30 * time.Second
)

// Central implements device.Central on top of a go-ble Radio
type Central struct {
	logger *logrus.Logger

	mu    sync.Mutex
	radio Radio
}

// NewCentral creates a Central; the radio is created lazily with DeviceFactory
func NewCentral(logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger}
}

// NewCentralWithRadio creates a Central bound to an existing radio (the simulator, a test mock)
func NewCentralWithRadio(radio Radio, logger *logrus.Logger) *Central {
	c := NewCentral(logger)
	c.radio = radio
	return c
}

func (c *Central) getRadio() (Radio, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.radio != nil {
		return c.radio, nil
	}
	radio, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	c.radio = radio
	return radio, nil
}

// RequestDevice scans for the first advertisement that matches the filter.
// When filter.Address is set the scan is skipped and the address is dialed directly on Connect.
func (c *Central) RequestDevice(ctx context.Context, filter device.Filter, opts *device.RequestOptions) (device.Peripheral, error) {
	if opts == nil {
		opts = &device.RequestOptions{}
	}
	scanTimeout := opts.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	if err := ctx.Err(); err != nil {
		return nil, &device.DeviceSelectionError{Reason: device.SelectionCancelled, Filter: filter, Err: err}
	}

	radio, err := c.getRadio()
	if err != nil {
		return nil, err
	}

	if addr := strings.TrimSpace(filter.Address); addr != "" {
		c.logger.WithField("address", addr).Info("Using peripheral address, scan skipped")
		return newPeripheral(radio, addr, "", connectTimeout, c.logger), nil
	}

	c.logger.WithFields(logrus.Fields{
		"filter":  filter.String(),
		"timeout": scanTimeout,
	}).Info("Scanning for BLE peripheral...")

	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	var once sync.Once
	selected := make(chan device.Advertisement, 1)
	scanErr := radio.Scan(scanCtx, false, func(adv device.Advertisement) {
		c.logger.WithFields(logrus.Fields{
			"address": adv.Addr(),
			"name":    adv.LocalName(),
			"rssi":    adv.RSSI(),
		}).Debug("Advertisement received")

		if !adv.Connectable() || !filter.Matches(adv) {
			return
		}
		once.Do(func() {
			selected <- adv
			cancel()
		})
	})

	var found device.Advertisement
	select {
	case found = <-selected:
	default:
	}
	if found != nil {
		c.logger.WithFields(logrus.Fields{
			"address": found.Addr(),
			"name":    found.LocalName(),
			"rssi":    found.RSSI(),
		}).Info("Peripheral selected")
		return newPeripheral(radio, found.Addr(), found.LocalName(), connectTimeout, c.logger), nil
	}

	if ctx.Err() != nil {
		return nil, &device.DeviceSelectionError{Reason: device.SelectionCancelled, Filter: filter, Err: ctx.Err()}
	}

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		c.logger.WithField("error", scanErr).Error("Scan failed")
		return nil, fmt.Errorf("scan failed: %w", scanErr)
	}

	return nil, &device.DeviceSelectionError{
		Reason: device.SelectionNoMatch,
		Filter: filter,
		Err:    fmt.Errorf("%w: no matching peripheral within %s", device.ErrTimeout, scanTimeout),
	}
}
