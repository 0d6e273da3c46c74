package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/blesail/internal/device"
)

// Client is the part of ble.Client used by a connection
type Client interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Radio is the host controller: it scans for advertisements and dials peripherals
type Radio interface {
	Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error
	Dial(ctx context.Context, address string) (Client, error)
}

// DeviceFactory creates the host Radio (can be overridden in tests and by the simulator)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (Radio, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return NewRadio(dev), nil
}

// bleRadio wraps ble.Device to implement the Radio interface
type bleRadio struct {
	dev ble.Device
}

// NewRadio adapts a go-ble host device
func NewRadio(dev ble.Device) Radio {
	return &bleRadio{dev: dev}
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (r *bleRadio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	return NormalizeError(r.dev.Scan(ctx, allowDup, bleHandler))
}

func (r *bleRadio) Dial(ctx context.Context, address string) (Client, error) {
	client, err := r.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}
