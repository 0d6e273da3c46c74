package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/srg/blesail"
	"github.com/srg/blesail/internal/decode"
	"github.com/srg/blesail/internal/device"
	"github.com/srg/blesail/internal/testutils/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	windSpeed = "90D3D002-C950-4DD6-9410-2B7AEB1DD7D8"
	windAngle = "90D3D003-C950-4DD6-9410-2B7AEB1DD7D8"
)

type OfflineCommandsTestSuite struct {
	CommandTestSuite
}

func TestOfflineCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(OfflineCommandsTestSuite))
}

func (s *OfflineCommandsTestSuite) TestDecode() {
	// GOAL: Verify the decode command prints what a live session would show
	//
	// TEST SCENARIO: Built-in decoders with several hex spellings → decoded value on stdout

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"decode", "sint16", "FF38"}, "-2\n"},
		{[]string{"decode", "sint16", "0x0226"}, "5.5\n"},
		{[]string{"decode", "sint32", "00 00 03 E8"}, "1\n"},
		{[]string{"decode", "float64", "3F:F0:00:00:00:00:00:00"}, "1.000000\n"},
	}

	for _, tt := range tests {
		stdout, _, err := s.ExecuteCommand(tt.args...)
		s.Require().NoError(err, "%v MUST succeed", tt.args)
		s.Equal(tt.want, stdout, "%v MUST print the decoded value", tt.args)
	}
}

func (s *OfflineCommandsTestSuite) TestDecodeErrors() {
	// GOAL: Verify decode reports bad input clearly
	//
	// TEST SCENARIO: Short payload → FormatError; bad hex → parse error; unknown decoder → error naming it

	_, _, err := s.ExecuteCommand("decode", "sint32", "0102")
	var ferr *decode.FormatError
	s.ErrorAs(err, &ferr, "short payload MUST be a FormatError")

	_, _, err = s.ExecuteCommand("decode", "sint16", "zz")
	s.ErrorContains(err, `invalid hex payload "zz"`)

	_, _, err = s.ExecuteCommand("decode", "uint8", "01")
	s.ErrorContains(err, "uint8")
}

func (s *OfflineCommandsTestSuite) TestDecodeLuaScript() {
	// GOAL: Verify lua: decoders are loaded from the given script
	//
	// TEST SCENARIO: Script returning tenths → decode lua:<path> FF38 → "-20.0"

	path := filepath.Join(s.T().TempDir(), "tenths.lua")
	s.Require().NoError(os.WriteFile(path, []byte(`
function decode(bytes, n)
    local v = bytes[1] * 256 + bytes[2]
    if v >= 32768 then v = v - 65536 end
    return string.format("%.1f", v / 10)
end
`), 0o600))

	stdout, _, err := s.ExecuteCommand("decode", "lua:"+path, "FF38")
	s.Require().NoError(err)
	s.Equal("-20.0\n", stdout)
}

func (s *OfflineCommandsTestSuite) TestProfiles() {
	// GOAL: Verify profiles lists built-ins and file profiles with their sources
	//
	// TEST SCENARIO: Profile file with one extra profile → all four listed in order → sources shown

	path := filepath.Join(s.T().TempDir(), "boat.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
profiles:
  - name: boat
    description: masthead unit
    filter:
      name_prefix: Mast
    sources:
      - name: apparent_wind
        characteristic: 90D3D002-C950-4DD6-9410-2B7AEB1DD7D8
        history: 10
`), 0o600))

	stdout, _, err := s.ExecuteCommand("profiles", "--profile-file", path)
	s.Require().NoError(err)

	s.Contains(stdout, "wind - wind/GPS sensor, selected by advertised service\n")
	s.Contains(stdout, "  filter: name=MicroPython_BLE_Test\n")
	s.Contains(stdout, "boat - masthead unit\n  filter: name_prefix=Mast\n")
	s.Regexp(`apparent_wind\s+90d3d002\s+sint16\s+10`, stdout, "file sources MUST show defaults and history")

	order := []string{"wind -", "wind-by-name -", "wind-full -", "boat -"}
	last := -1
	for _, name := range order {
		idx := strings.Index(stdout, name)
		s.Greater(idx, last, "%s MUST be listed in order", name)
		last = idx
	}
}

func (s *OfflineCommandsTestSuite) TestProfilesExample() {
	stdout, _, err := s.ExecuteCommand("profiles", "--example")
	s.Require().NoError(err)
	s.Equal(blesail.ExampleProfile, stdout, "--example MUST print the embedded profile")
}

func (s *OfflineCommandsTestSuite) TestConnectOutputHelpListsEveryOutput() {
	usage := connectCmd.Flags().Lookup("output").Usage
	for _, out := range []string{"board", "lines", "pty", "mqtt"} {
		s.Contains(usage, out, "--output help MUST list %q", out)
	}
}

func (s *OfflineCommandsTestSuite) TestConnectRejectsBadInput() {
	// GOAL: Verify invalid connect settings fail before touching the radio
	//
	// TEST SCENARIO: Unknown output, unknown profile, bad log level → errors, radio never used

	_, _, err := s.ExecuteCommand("connect", "--output", "json")
	s.ErrorContains(err, `invalid output "json"`)

	_, _, err = s.ExecuteCommand("connect", "--profile", "kite")
	s.ErrorContains(err, `unknown profile "kite"`)

	_, _, err = s.ExecuteCommand("connect", "--log-level", "loud")
	s.ErrorContains(err, "invalid log level: loud")

	_, _, err = s.ExecuteCommand("connect", "--output", "mqtt")
	s.ErrorContains(err, `output "mqtt" requires a broker address`)

	_, _, err = s.ExecuteCommand("connect", "--output", "mqtt", "--mqtt-broker", "tcp://localhost:1883", "--mqtt-qos", "5")
	s.ErrorContains(err, "mqtt qos must be 0, 1 or 2, got 5")

	s.Peripheral.Radio.AssertNumberOfCalls(s.T(), "Scan", 0)
}

type ConnectCommandTestSuite struct {
	CommandTestSuite
}

func TestConnectCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectCommandTestSuite))
}

func (s *ConnectCommandTestSuite) TestLinesOutput() {
	// GOAL: Verify connect streams the sources the sensor has and skips the rest
	//
	// TEST SCENARIO: Mock sensor with wind speed and angle only → wind profile (9 sources) → 2 stream,
	// 7 reported as skipped → notifications printed as name=value lines

	type result struct {
		stdout, stderr string
		err            error
	}
	done := make(chan result, 1)
	go func() {
		stdout, stderr, err := s.ExecuteCommand("connect", "--output", "lines", "--duration", "1s")
		done <- result{stdout, stderr, err}
	}()

	s.Require().True(s.Peripheral.WaitSubscribed(2, s.TestTimeout), "both available sources MUST subscribe")
	s.Peripheral.Notify(windSpeed, []byte{0xFF, 0x38})
	s.Peripheral.Notify(windAngle, []byte{0x23, 0x28})

	var r result
	select {
	case r = <-done:
	case <-time.After(s.TestTimeout):
		s.FailNow("connect MUST stop after --duration")
	}

	s.Require().NoError(r.err, "a timed stop MUST NOT be an error")
	s.Contains(r.stdout, "wind_speed=-2\n")
	s.Contains(r.stdout, "wind_angle=90\n")
	s.Contains(r.stderr, "streaming 2 of 9 sources")
	s.Contains(r.stderr, "skipped latitude: characteristic failed")
	s.Equal(7, strings.Count(r.stderr, "skipped "), "every missing source MUST be reported")
}

func (s *ConnectCommandTestSuite) TestLinkLoss() {
	// GOAL: Verify link loss while streaming ends the command with ErrConnectionLost
	//
	// TEST SCENARIO: Streaming → peripheral drops → connect returns ErrConnectionLost wrapping ErrNotConnected

	done := make(chan error, 1)
	go func() {
		_, _, err := s.ExecuteCommand("connect", "--output", "lines", "--duration", "10s")
		done <- err
	}()

	s.Require().True(s.Peripheral.WaitSubscribed(2, s.TestTimeout))
	s.Peripheral.Client.Drop()

	select {
	case err := <-done:
		s.ErrorIs(err, ErrConnectionLost)
		s.ErrorIs(err, device.ErrNotConnected)
		s.Equal("connection to the sensor was lost", FormatUserError(err))
	case <-time.After(s.TestTimeout):
		s.FailNow("connect MUST return after link loss")
	}
}

func (s *ConnectCommandTestSuite) TestNoMatch() {
	// GOAL: Verify a sensor that is not found is a user-facing error
	//
	// TEST SCENARIO: wind-by-name profile, mock advertises another name → DeviceSelectionError → friendly message

	s.Peripheral.Radio.ExpectedCalls = nil
	s.Peripheral.Radio.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
			handler(&mocks.MockAdvertisement{Name: "Windex", Address: "11:22:33:44:55:66"})
			<-ctx.Done()
			return ctx.Err()
		})

	_, _, err := s.ExecuteCommand("connect", "--profile", "wind-by-name", "--scan-timeout", "100ms")
	var selErr *device.DeviceSelectionError
	s.Require().ErrorAs(err, &selErr)
	s.Equal(device.SelectionNoMatch, selErr.Reason)
	s.Equal("no sensor matching name=MicroPython_BLE_Test was found; check that it is powered on and advertising",
		FormatUserError(err))
}

type NoSourcesTestSuite struct {
	CommandTestSuite
}

func TestNoSourcesTestSuite(t *testing.T) {
	suite.Run(t, new(NoSourcesTestSuite))
}

func (s *NoSourcesTestSuite) SetupTest() {
	s.WithPeripheral().
		WithAdvertisedServices("90D3D000-C950-4DD6-9410-2B7AEB1DD7D8").
		WithService("180F").
		WithCharacteristic("2A19", "read,notify")

	s.CommandTestSuite.SetupTest()
}

func (s *NoSourcesTestSuite) TestNoSources() {
	// GOAL: Verify a sensor exposing none of the profile sources fails the command
	//
	// TEST SCENARIO: Peripheral without the sensor service → all 9 sources skipped → ErrNoSources

	_, stderr, err := s.ExecuteCommand("connect", "--output", "lines")
	s.ErrorIs(err, ErrNoSources)
	s.Contains(stderr, "streaming 0 of 9 sources")
	s.Contains(stderr, "skipped wind_speed: service failed")
}

func TestSimulatorSession(t *testing.T) {
	// GOAL: Verify --simulate streams the firmware values end to end without hardware
	//
	// TEST SCENARIO: connect --simulate --output lines for a short duration → every wind-full source printed

	s := new(CommandTestSuite)
	s.SetT(t)
	stdout, _, err := s.ExecuteCommand("connect", "--simulate", "--profile", "wind-full", "--output", "lines",
		"--sim-interval", "20ms", "--duration", "1500ms")
	if !assert.NoError(t, err, "simulated session MUST end cleanly") {
		return
	}

	for _, name := range []string{"temperature", "wind_speed", "wind_angle", "latitude", "longitude", "heading", "is_recording"} {
		assert.Contains(t, stdout, name+"=", "%s MUST be streamed", name)
	}
}

func TestSimulatorSessionWithMetrics(t *testing.T) {
	// GOAL: Verify --metrics-addr serves the session counters while streaming
	//
	// TEST SCENARIO: connect --simulate with metrics on a free port → endpoint announced on stderr

	s := new(CommandTestSuite)
	s.SetT(t)
	_, stderr, err := s.ExecuteCommand("connect", "--simulate", "--output", "lines",
		"--sim-interval", "20ms", "--duration", "300ms", "--metrics-addr", "127.0.0.1:0")
	if !assert.NoError(t, err, "simulated session MUST end cleanly") {
		return
	}
	assert.Contains(t, stderr, "Metrics on http://127.0.0.1:", "metrics endpoint MUST be announced")
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&device.DeviceSelectionError{Reason: device.SelectionCancelled}, "device selection cancelled"},
		{fmt.Errorf("scan: %w", device.ErrBluetoothOff), "Bluetooth is turned off or no adapter is available"},
		{&device.ConnectionError{State: device.ConnectFailed, Msg: `failed to connect to device with address "aa"`},
			`failed to connect to device with address "aa"`},
		{ErrNoSources, "connected, but no data source could be subscribed; run with --log-level info for details"},
		{errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUserError(tt.err))
	}
	assert.Empty(t, FormatUserError(nil))
}
