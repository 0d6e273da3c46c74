package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
	goble "github.com/srg/blesail/internal/device/go-ble"
	"github.com/srg/blesail/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID           string `json:"uuid"`
	Properties     string `json:"properties,omitempty"`      // e.g., "read,notify"
	SubscribeError string `json:"subscribe_error,omitempty"` // Subscribe fails with this message
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Name       string          `json:"name,omitempty"`
	Address    string          `json:"address,omitempty"`
	Advertised []string        `json:"advertised,omitempty"` // advertised service UUIDs
	Services   []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a mocked radio with one advertising peripheral
type PeripheralDeviceBuilder struct {
	profile   DeviceProfileConfig
	dialErr   error
	scanErr   error
	cancelErr error
	discovery map[string]error // normalized service UUID -> DiscoverCharacteristics error
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{
			Name:    "MockPeripheral",
			Address: "00:11:22:33:44:55",
		},
		discovery: make(map[string]error),
	}
}

// WithName sets the advertised local name
func (b *PeripheralDeviceBuilder) WithName(name string) *PeripheralDeviceBuilder {
	b.profile.Name = name
	return b
}

// WithAddress sets the peripheral address
func (b *PeripheralDeviceBuilder) WithAddress(addr string) *PeripheralDeviceBuilder {
	b.profile.Address = addr
	return b
}

// WithAdvertisedServices sets the service UUIDs in the advertisement
func (b *PeripheralDeviceBuilder) WithAdvertisedServices(uuids ...string) *PeripheralDeviceBuilder {
	b.profile.Advertised = uuids
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// WithSubscribeError makes Subscribe fail for the characteristic
func (b *PeripheralDeviceBuilder) WithSubscribeError(charUUID, msg string) *PeripheralDeviceBuilder {
	for si := range b.profile.Services {
		for ci := range b.profile.Services[si].Characteristics {
			c := &b.profile.Services[si].Characteristics[ci]
			if device.NormalizeUUID(c.UUID) == device.NormalizeUUID(charUUID) {
				c.SubscribeError = msg
			}
		}
	}
	return b
}

// WithDiscoveryError makes characteristic discovery fail for a service
func (b *PeripheralDeviceBuilder) WithDiscoveryError(serviceUUID string, err error) *PeripheralDeviceBuilder {
	b.discovery[device.NormalizeUUID(serviceUUID)] = err
	return b
}

// WithDialError makes Dial fail
func (b *PeripheralDeviceBuilder) WithDialError(err error) *PeripheralDeviceBuilder {
	b.dialErr = err
	return b
}

// WithDisconnectError makes CancelConnection fail after dropping the link
func (b *PeripheralDeviceBuilder) WithDisconnectError(err error) *PeripheralDeviceBuilder {
	b.cancelErr = err
	return b
}

// WithScanError makes Scan fail before any advertisement
func (b *PeripheralDeviceBuilder) WithScanError(err error) *PeripheralDeviceBuilder {
	b.scanErr = err
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if config.Name == "" {
		config.Name = b.profile.Name
	}
	if config.Address == "" {
		config.Address = b.profile.Address
	}
	if len(config.Advertised) == 0 {
		config.Advertised = b.profile.Advertised
	}

	b.profile = config
	return b
}

// GetServices returns the configured services
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}

// MockPeripheral is a built mock: the radio to hand to a central, and the client it dials
type MockPeripheral struct {
	Radio  *mocks.MockRadio
	Client *mocks.MockClient

	mu       sync.Mutex
	handlers map[string]blelib.NotificationHandler
}

// Notify delivers data to the subscriber of a characteristic; false when nobody is subscribed
func (p *MockPeripheral) Notify(charUUID string, data []byte) bool {
	p.mu.Lock()
	h := p.handlers[device.NormalizeUUID(charUUID)]
	p.mu.Unlock()

	if h == nil {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether a characteristic has a notification handler
func (p *MockPeripheral) Subscribed(charUUID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers[device.NormalizeUUID(charUUID)] != nil
}

// WaitSubscribed blocks until n characteristics are subscribed or the timeout elapses
func (p *MockPeripheral) WaitSubscribed(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		got := len(p.handlers)
		p.mu.Unlock()
		if got >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// Central returns a go-ble central bound to the mocked radio
func (p *MockPeripheral) Central(logger *logrus.Logger) *goble.Central {
	return goble.NewCentralWithRadio(p.Radio, logger)
}

func uuidIn(filter []blelib.UUID, u blelib.UUID) bool {
	return len(filter) == 0 || blelib.Contains(filter, u)
}

// Build creates the mocked radio and client with the configured profile
func (b *PeripheralDeviceBuilder) Build() *MockPeripheral {
	radio := &mocks.MockRadio{}
	client := mocks.NewMockClient()
	p := &MockPeripheral{Radio: radio, Client: client, handlers: make(map[string]blelib.NotificationHandler)}

	var services []*blelib.Service
	subscribeErrs := make(map[string]error)
	for _, svcConfig := range b.profile.Services {
		svc := blelib.NewService(blelib.MustParse(svcConfig.UUID))
		for _, charConfig := range svcConfig.Characteristics {
			c := svc.NewCharacteristic(blelib.MustParse(charConfig.UUID))
			c.Property = parseCharacteristicProperties(charConfig.Properties)
			if charConfig.SubscribeError != "" {
				subscribeErrs[device.NormalizeUUID(charConfig.UUID)] = errors.New(charConfig.SubscribeError)
			}
		}
		services = append(services, svc)
	}

	adv := &mocks.MockAdvertisement{
		Name:         b.profile.Name,
		Address:      b.profile.Address,
		ServiceUUIDs: b.profile.Advertised,
		Signal:       -50,
	}

	scanErr := b.scanErr
	radio.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
			if scanErr != nil {
				return scanErr
			}
			handler(adv)
			<-ctx.Done()
			return ctx.Err()
		})

	dialErr := b.dialErr
	address := b.profile.Address
	radio.On("Dial", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, addr string) (goble.Client, error) {
			if dialErr != nil {
				return nil, dialErr
			}
			if !strings.EqualFold(addr, address) {
				return nil, fmt.Errorf("no peripheral at %s", addr)
			}
			return client, nil
		})

	client.On("DiscoverServices", mock.Anything).Return(
		func(filter []blelib.UUID) ([]*blelib.Service, error) {
			var out []*blelib.Service
			for _, svc := range services {
				if uuidIn(filter, svc.UUID) {
					out = append(out, svc)
				}
			}
			return out, nil
		})

	discovery := b.discovery
	client.On("DiscoverCharacteristics", mock.Anything, mock.Anything).Return(
		func(filter []blelib.UUID, s *blelib.Service) ([]*blelib.Characteristic, error) {
			if err := discovery[device.NormalizeUUID(s.UUID.String())]; err != nil {
				return nil, err
			}
			var out []*blelib.Characteristic
			for _, c := range s.Characteristics {
				if uuidIn(filter, c.UUID) {
					out = append(out, c)
				}
			}
			return out, nil
		})

	client.On("DiscoverDescriptors", mock.Anything, mock.Anything).Return(
		func(_ []blelib.UUID, c *blelib.Characteristic) ([]*blelib.Descriptor, error) {
			cccd := blelib.NewDescriptor(blelib.ClientCharacteristicConfigUUID)
			return []*blelib.Descriptor{cccd}, nil
		})

	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(
		func(c *blelib.Characteristic, _ bool, h blelib.NotificationHandler) error {
			key := device.NormalizeUUID(c.UUID.String())
			if err := subscribeErrs[key]; err != nil {
				return err
			}
			// go-ble keeps the first handler of an already subscribed characteristic
			p.mu.Lock()
			if _, ok := p.handlers[key]; !ok {
				p.handlers[key] = h
			}
			p.mu.Unlock()
			return nil
		})

	client.On("Unsubscribe", mock.Anything, mock.Anything).Return(
		func(c *blelib.Characteristic, _ bool) error {
			p.mu.Lock()
			delete(p.handlers, device.NormalizeUUID(c.UUID.String()))
			p.mu.Unlock()
			return nil
		})

	cancelErr := b.cancelErr
	client.On("CancelConnection").Return(func() error {
		client.Drop()
		return cancelErr
	})

	return p
}

// parseCharacteristicProperties converts a property list to ble.Property flags; empty means read,notify
func parseCharacteristicProperties(props string) blelib.Property {
	if strings.TrimSpace(props) == "" {
		return blelib.CharRead | blelib.CharNotify
	}
	return goble.ParseProperties(props)
}
