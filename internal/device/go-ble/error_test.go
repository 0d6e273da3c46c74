package goble

import (
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/blesail/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"central manager has invalid state: have=4 want=5: is Bluetooth turned on?", device.ErrBluetoothOff},
		{"Bluetooth is turned off", device.ErrBluetoothOff},
		{"can't init hci: no devices available", device.ErrBluetoothOff},
		{"device not connected", device.ErrNotConnected},
		{"peripheral Disconnected", device.ErrNotConnected},
		{"device already connected", device.ErrAlreadyConnected},
		{"subscribe: CCCD not found", device.ErrNotifyRefused},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := NormalizeError(errors.New(tt.msg))
			assert.ErrorIs(t, err, tt.want, "%q MUST map to %v", tt.msg, tt.want)
			assert.Contains(t, err.Error(), tt.msg, "original message MUST be kept")
		})
	}

	assert.NoError(t, NormalizeError(nil))
	plain := errors.New("att: read not permitted")
	assert.Same(t, plain, NormalizeError(plain), "unknown errors MUST pass through unchanged")
}

func TestProperties(t *testing.T) {
	p := ParseProperties(" Read, notify ,bogus")
	assert.Equal(t, ble.CharRead|ble.CharNotify, p, "known names MUST be parsed case-insensitively")
	assert.Equal(t, "read,notify", PropertyNames(p))
	assert.Equal(t, "none", PropertyNames(0))
}
