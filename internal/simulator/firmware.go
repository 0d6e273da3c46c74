// Package simulator is an in-process stand-in for the wind/GPS sensor module.
//
// Firmware reproduces the module's random-walk readings and their wire
// encoding; Radio exposes it through the same go-ble Radio and Client
// interfaces the real host controller implements, so `connect --simulate`
// and the tests run the complete go-ble code path without hardware.
package simulator

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/srg/blesail/internal/profile"
)

// RecordingEvery is the number of intervals between recording status updates
const RecordingEvery = 5

// Notification is one characteristic value update
type Notification struct {
	Characteristic string
	Data           []byte
}

// Readings is the current state of the simulated sensors
type Readings struct {
	Temperature float64
	WindSpeed   float64
	WindAngle   float64
	Latitude    float64
	Longitude   float64
	Speed       float64
	MaxSpeed    float64
	Distance    float64 // nautical miles
	Heading     float64
	Recording   bool
}

// InitialReadings are the values the module starts from after boot
func InitialReadings() Readings {
	return Readings{
		Temperature: 24.5,
		WindSpeed:   5.5,
		WindAngle:   90,
		Latitude:    51.0000012,
		Longitude:   0.1,
		Speed:       6.0,
		Heading:     80,
	}
}

// Firmware generates sensor updates, one batch per interval.
// It is safe for concurrent use.
type Firmware struct {
	mu       sync.Mutex
	rng      *rand.Rand
	readings Readings
	ticks    int
}

// NewFirmware creates a firmware model; the same seed yields the same sequence
func NewFirmware(seed uint64) *Firmware {
	return &Firmware{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
		readings: InitialReadings(),
	}
}

// Readings returns the values the next Tick will send
func (f *Firmware) Readings() Readings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readings
}

// SetRecording switches the recording flag reported every RecordingEvery ticks
func (f *Firmware) SetRecording(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings.Recording = on
}

// Tick encodes the current readings, then advances the random walk.
// Every sensor is sent on each tick; the recording status on every RecordingEvery-th tick, starting with the first.
func (f *Firmware) Tick() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.readings
	out := []Notification{
		{profile.Temperature, hundredths(r.Temperature)},
		{profile.Latitude, float64BE(r.Latitude)},
		{profile.Longitude, float64BE(r.Longitude)},
		{profile.WindSpeed, hundredths(r.WindSpeed)},
		{profile.WindAngle, hundredths(r.WindAngle)},
		{profile.Speed, hundredths(r.Speed)},
		{profile.MaxSpeed, hundredths(r.MaxSpeed)},
		{profile.Distance, hundredths(r.Distance)},
		{profile.Heading, hundredths(r.Heading)},
	}
	if f.ticks%RecordingEvery == 0 {
		flag := 0.0
		if r.Recording {
			flag = 1
		}
		out = append(out, Notification{profile.IsRecording, int16BE(flag)})
	}
	f.ticks++

	f.advanceInternal()
	return out
}

func (f *Firmware) uniform(lo, hi float64) float64 {
	return lo + f.rng.Float64()*(hi-lo)
}

func (f *Firmware) advanceInternal() {
	r := &f.readings
	const stepSeconds = 1.0

	r.Temperature += f.uniform(-0.5, 0.5)

	r.Latitude += f.uniform(-0.005, 0.005)
	r.Longitude += f.uniform(-0.005, 0.005)

	r.WindSpeed += f.uniform(-0.05, 0.05)
	r.WindAngle = floorMod(r.WindAngle+f.uniform(-10, 10), 360)

	r.MaxSpeed = math.Max(r.MaxSpeed, r.Speed)
	r.Distance += r.Speed * stepSeconds / 60 / 60
	r.Speed = math.Max(0, r.Speed+f.uniform(-0.5, 0.5))
	r.Heading = floorMod(r.Heading+f.uniform(-5, 5), 360)
}

// floorMod is a modulo whose result has the sign of m
func floorMod(v, m float64) float64 {
	r := math.Mod(v, m)
	if r < 0 {
		r += m
	}
	return r
}

// hundredths encodes int(v*100) as a big-endian int16
func hundredths(v float64) []byte {
	return int16BE(math.Trunc(v * 100))
}

// int16BE saturates to the int16 range: angles above 327.67 do not fit the firmware's encoding
func int16BE(v float64) []byte {
	v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
	return binary.BigEndian.AppendUint16(nil, uint16(int16(v)))
}

func float64BE(v float64) []byte {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(v))
}
