package main

import (
	"errors"
	"fmt"

	"github.com/srg/blesail/internal/device"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost while streaming.
	ErrConnectionLost = errors.New("connection lost")

	// ErrNoSources indicates the sensor was connected but none of the profile sources subscribed.
	ErrNoSources = errors.New("no data source could be subscribed")
)

// FormatUserError turns an error into a one-line message for the terminal
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var selErr *device.DeviceSelectionError
	switch {
	case errors.As(err, &selErr) && selErr.Reason == device.SelectionNoMatch:
		return fmt.Sprintf("no sensor matching %s was found; check that it is powered on and advertising", selErr.Filter)
	case errors.As(err, &selErr):
		return "device selection cancelled"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.Is(err, ErrConnectionLost):
		return "connection to the sensor was lost"
	case errors.Is(err, ErrNoSources):
		return "connected, but " + ErrNoSources.Error() + "; run with --log-level info for details"
	case errors.Is(err, device.ErrConnectFailed):
		var connErr *device.ConnectionError
		if errors.As(err, &connErr) && connErr.Msg != "" {
			return connErr.Msg
		}
		return "could not connect to the sensor"
	case errors.Is(err, device.ErrTimeout):
		return "timed out: " + err.Error()
	default:
		return err.Error()
	}
}
