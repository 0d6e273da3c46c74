//go:build !linux && !darwin

package goble

import (
	"errors"
	"runtime"

	"github.com/go-ble/ble"
)

func newPlatformDevice() (ble.Device, error) {
	return nil, errors.New("no BLE host support on " + runtime.GOOS)
}
