package profile

import (
	"fmt"

	"github.com/srg/blesail/internal/decode"
	"github.com/srg/blesail/internal/device"
)

// Sensor module GATT layout
const (
	SensorService = "90D3D000-C950-4DD6-9410-2B7AEB1DD7D8"
	SensorName    = "MicroPython_BLE_Test"

	DefaultProfile = "wind"
)

// SensorCharacteristic returns the full UUID of a sensor characteristic by its short code, e.g. "D002"
func SensorCharacteristic(code string) string {
	return fmt.Sprintf("90D3%s-C950-4DD6-9410-2B7AEB1DD7D8", code)
}

// Sensor characteristics
var (
	Temperature = SensorCharacteristic("D001")
	WindSpeed   = SensorCharacteristic("D002")
	WindAngle   = SensorCharacteristic("D003")
	Latitude    = SensorCharacteristic("D005")
	Longitude   = SensorCharacteristic("D006")
	Speed       = SensorCharacteristic("D007")
	MaxSpeed    = SensorCharacteristic("D008")
	Distance    = SensorCharacteristic("D009")
	Heading     = SensorCharacteristic("D00A")
	IsRecording = SensorCharacteristic("D00B")
)

func sensorSource(name, characteristic, decoder string) SourceSpec {
	return SourceSpec{Name: name, Service: SensorService, Characteristic: characteristic, Decoder: decoder}
}

// displaySources are the values the sensor page shows
func displaySources() []SourceSpec {
	return []SourceSpec{
		sensorSource("wind_speed", WindSpeed, decode.Sint16),
		sensorSource("wind_angle", WindAngle, decode.Sint16),
		sensorSource("latitude", Latitude, decode.Float64),
		sensorSource("longitude", Longitude, decode.Float64),
		sensorSource("speed", Speed, decode.Sint16),
		sensorSource("max_speed", MaxSpeed, decode.Sint16),
		sensorSource("distance", Distance, decode.Sint16),
		sensorSource("heading", Heading, decode.Sint16),
		sensorSource("is_recording", IsRecording, decode.Sint16),
	}
}

// Builtins returns the built-in profiles
func Builtins() *Set {
	set := NewSet()
	set.Add(&Profile{
		Name:        "wind",
		Description: "wind/GPS sensor, selected by advertised service",
		Filter:      device.Filter{Services: []string{SensorService}},
		Sources:     displaySources(),
	})
	set.Add(&Profile{
		Name:        "wind-by-name",
		Description: "wind/GPS sensor, selected by local name",
		Filter:      device.Filter{Name: SensorName},
		Sources:     displaySources(),
	})
	set.Add(&Profile{
		Name:        "wind-full",
		Description: "wind/GPS sensor including temperature",
		Filter:      device.Filter{Services: []string{SensorService}},
		Sources:     append([]SourceSpec{sensorSource("temperature", Temperature, decode.Sint16)}, displaySources()...),
	})
	return set
}
