// Package mocks holds testify mocks of the go-ble host abstractions.
package mocks

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/blesail/internal/device"
	goble "github.com/srg/blesail/internal/device/go-ble"
	"github.com/stretchr/testify/mock"
)

// MockRadio is a mock type for the goble.Radio type
type MockRadio struct {
	mock.Mock
}

var _ goble.Radio = (*MockRadio)(nil)

// Scan provides a mock function with given fields: ctx, allowDup, handler
func (m *MockRadio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	ret := m.Called(ctx, allowDup, handler)

	if rf, ok := ret.Get(0).(func(context.Context, bool, func(device.Advertisement)) error); ok {
		return rf(ctx, allowDup, handler)
	}
	return ret.Error(0)
}

// Dial provides a mock function with given fields: ctx, address
func (m *MockRadio) Dial(ctx context.Context, address string) (goble.Client, error) {
	ret := m.Called(ctx, address)

	if rf, ok := ret.Get(0).(func(context.Context, string) (goble.Client, error)); ok {
		return rf(ctx, address)
	}

	var r0 goble.Client
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(goble.Client)
	}
	return r0, ret.Error(1)
}

// MockClient is a mock type for the goble.Client type.
// Disconnected is not mocked: Drop closes the channel, like the host does on link loss.
type MockClient struct {
	mock.Mock

	once         sync.Once
	disconnected chan struct{}
}

var _ goble.Client = (*MockClient)(nil)

// NewMockClient creates a MockClient with an open link
func NewMockClient() *MockClient {
	return &MockClient{disconnected: make(chan struct{})}
}

// Disconnected is closed by Drop
func (m *MockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Drop simulates link loss
func (m *MockClient) Drop() {
	m.once.Do(func() { close(m.disconnected) })
}

// DiscoverServices provides a mock function with given fields: filter
func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	ret := m.Called(filter)

	if rf, ok := ret.Get(0).(func([]ble.UUID) ([]*ble.Service, error)); ok {
		return rf(filter)
	}

	var r0 []*ble.Service
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*ble.Service)
	}
	return r0, ret.Error(1)
}

// DiscoverCharacteristics provides a mock function with given fields: filter, s
func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	ret := m.Called(filter, s)

	if rf, ok := ret.Get(0).(func([]ble.UUID, *ble.Service) ([]*ble.Characteristic, error)); ok {
		return rf(filter, s)
	}

	var r0 []*ble.Characteristic
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*ble.Characteristic)
	}
	return r0, ret.Error(1)
}

// DiscoverDescriptors provides a mock function with given fields: filter, c
func (m *MockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	ret := m.Called(filter, c)

	if rf, ok := ret.Get(0).(func([]ble.UUID, *ble.Characteristic) ([]*ble.Descriptor, error)); ok {
		return rf(filter, c)
	}

	var r0 []*ble.Descriptor
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*ble.Descriptor)
	}
	return r0, ret.Error(1)
}

// Subscribe provides a mock function with given fields: c, ind, h
func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	ret := m.Called(c, ind, h)

	if rf, ok := ret.Get(0).(func(*ble.Characteristic, bool, ble.NotificationHandler) error); ok {
		return rf(c, ind, h)
	}
	return ret.Error(0)
}

// Unsubscribe provides a mock function with given fields: c, ind
func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	ret := m.Called(c, ind)

	if rf, ok := ret.Get(0).(func(*ble.Characteristic, bool) error); ok {
		return rf(c, ind)
	}
	return ret.Error(0)
}

// CancelConnection provides a mock function with no fields
func (m *MockClient) CancelConnection() error {
	ret := m.Called()

	if rf, ok := ret.Get(0).(func() error); ok {
		return rf()
	}
	return ret.Error(0)
}

// MockAdvertisement is a static device.Advertisement
type MockAdvertisement struct {
	Name         string
	Address      string
	ServiceUUIDs []string
	Signal       int
	NotConnect   bool
}

var _ device.Advertisement = (*MockAdvertisement)(nil)

func (a *MockAdvertisement) LocalName() string  { return a.Name }
func (a *MockAdvertisement) Services() []string { return a.ServiceUUIDs }
func (a *MockAdvertisement) RSSI() int          { return a.Signal }
func (a *MockAdvertisement) Addr() string       { return a.Address }
func (a *MockAdvertisement) Connectable() bool  { return !a.NotConnect }
