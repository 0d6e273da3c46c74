package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	goble "github.com/srg/blesail/internal/device/go-ble"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite provides a reusable test suite with one mocked BLE peripheral.
//
// Basic usage (default wind sensor with two characteristics):
//
//	type ConnectSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func TestConnectSuite(t *testing.T) {
//	    suite.Run(t, new(ConnectSuite))
//	}
//
// Custom device profile usage:
//
//	func (s *ConnectSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180F").
//	        WithCharacteristic("2A19", "read,notify")
//
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
//
// The built peripheral is available as s.Peripheral; goble.DeviceFactory returns its radio
// for the duration of the test.
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func() (goble.Radio, error)
	TestTimeout           time.Duration

	PeripheralBuilder *PeripheralDeviceBuilder
	Peripheral        *MockPeripheral
}

// SetupSuite is called once before all tests in the suite
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
	s.OriginalDeviceFactory = goble.DeviceFactory

	s.T().Cleanup(func() {
		if s.OriginalDeviceFactory != nil {
			goble.DeviceFactory = s.OriginalDeviceFactory
		}
	})
}

// SetupTest builds the configured peripheral and installs its radio as the device factory
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}

	s.Peripheral = s.PeripheralBuilder.Build()
	radio := s.Peripheral.Radio
	goble.DeviceFactory = func() (goble.Radio, error) {
		return radio, nil
	}

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest restores the device factory and resets the builder
func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.OriginalDeviceFactory != nil {
		goble.DeviceFactory = s.OriginalDeviceFactory
	}
	if s.Peripheral != nil {
		s.Peripheral.Client.Drop()
	}

	s.PeripheralBuilder = nil
	s.Peripheral = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration in SetupTest
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// Central returns a go-ble central that reaches the mocked peripheral through the device factory
func (s *MockBLEPeripheralSuite) Central() *goble.Central {
	return goble.NewCentral(s.Logger)
}

// createDefaultPeripheralBuilder mimics the wind sensor: wind speed and wind angle in the sensor service
func createDefaultPeripheralBuilder() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		WithName("MicroPython_BLE_Test").
		WithAdvertisedServices("90D3D000-C950-4DD6-9410-2B7AEB1DD7D8").
		FromJSON(`
		{
			"services": [
				{
					"uuid": "90D3D000-C950-4DD6-9410-2B7AEB1DD7D8",
					"characteristics": [
						{ "uuid": "90D3D002-C950-4DD6-9410-2B7AEB1DD7D8", "properties": "read,notify" },
						{ "uuid": "90D3D003-C950-4DD6-9410-2B7AEB1DD7D8", "properties": "read,notify" }
					]
				}
			]
		}`)
}
