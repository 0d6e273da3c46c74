package goble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
)

// BLEPeripheral is a selected device that can be dialed
type BLEPeripheral struct {
	address        string
	name           string
	radio          Radio
	connectTimeout time.Duration
	logger         *logrus.Logger
}

func newPeripheral(radio Radio, address, name string, connectTimeout time.Duration, logger *logrus.Logger) *BLEPeripheral {
	return &BLEPeripheral{
		address:        address,
		name:           name,
		radio:          radio,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

func (p *BLEPeripheral) Address() string {
	return p.address
}

// Name returns the advertised local name, falling back to the address
func (p *BLEPeripheral) Name() string {
	if p.name == "" {
		return p.address
	}
	return p.name
}

// Connect dials the peripheral and opens a GATT connection
func (p *BLEPeripheral) Connect(ctx context.Context) (device.Connection, error) {
	p.logger.WithFields(logrus.Fields{
		"address": p.address,
		"timeout": p.connectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	client, err := p.radio.Dial(connCtx, p.address)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"address": p.address,
			"error":   err,
		}).Error("Failed to dial BLE device")

		cause := NormalizeError(err)
		if errors.Is(connCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			cause = fmt.Errorf("%w after %s: %v", device.ErrTimeout, p.connectTimeout, err)
		}
		return nil, &device.ConnectionError{
			State: device.ConnectFailed,
			Msg:   fmt.Sprintf("failed to connect to device with address %q", p.address),
			Err:   cause,
		}
	}

	conn := NewBLEConnection(client, p.logger)
	p.logger.WithField("address", p.address).Info("BLE device connected successfully")
	return conn, nil
}
