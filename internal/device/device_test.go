package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeAdvertisement struct {
	name        string
	addr        string
	services    []string
	connectable bool
}

func (a fakeAdvertisement) LocalName() string  { return a.name }
func (a fakeAdvertisement) Services() []string { return a.services }
func (a fakeAdvertisement) RSSI() int          { return -60 }
func (a fakeAdvertisement) Addr() string       { return a.addr }
func (a fakeAdvertisement) Connectable() bool  { return a.connectable }

func TestConnectionErrorIsByState(t *testing.T) {
	// GOAL: Verify connection errors compare by state through wrapping layers
	//
	// TEST SCENARIO: Wrapped ConnectionError → errors.Is matches its state sentinel only

	err := fmt.Errorf("connector: %w", &ConnectionError{
		State: NotificationsRefused,
		Msg:   "failed to enable notifications on 90d3d002",
		Err:   errors.New("cccd not found"),
	})

	assert.ErrorIs(t, err, ErrNotifyRefused, "wrapped error MUST match its state")
	assert.NotErrorIs(t, err, ErrNotConnected, "wrapped error MUST NOT match another state")
	assert.True(t, IsConnectionState(err, NotificationsRefused), "IsConnectionState MUST see through wrapping")
	assert.False(t, IsConnectionState(errors.New("plain"), NotificationsRefused), "plain errors MUST NOT match")
	assert.Equal(t,
		"connector: notify_failed: failed to enable notifications on 90d3d002: cccd not found",
		err.Error())
}

func TestDeviceSelectionError(t *testing.T) {
	// GOAL: Verify selection errors keep the reason, the filter and the cause
	//
	// TEST SCENARIO: No match with timeout cause → message and ErrTimeout unwrap; cancel → context.Canceled

	noMatch := &DeviceSelectionError{
		Reason: SelectionNoMatch,
		Filter: Filter{Name: "MicroPython_BLE_Test"},
		Err:    fmt.Errorf("%w: no matching peripheral within 10s", ErrTimeout),
	}
	assert.ErrorIs(t, noMatch, ErrTimeout, "no match MUST unwrap to ErrTimeout")
	assert.Equal(t,
		"device selection no_match (filter: name=MicroPython_BLE_Test): timeout: no matching peripheral within 10s",
		noMatch.Error())

	cancelled := &DeviceSelectionError{Reason: SelectionCancelled, Err: context.Canceled}
	assert.ErrorIs(t, cancelled, context.Canceled, "cancellation MUST unwrap to context.Canceled")
	assert.Equal(t, "device selection cancelled (filter: any): context canceled", cancelled.Error())
}

func TestResolutionError(t *testing.T) {
	assert.Equal(t, `service "180f" not found`,
		(&ResolutionError{Resource: "service", UUIDs: []string{"180f"}}).Error())
	assert.Equal(t, `characteristic "2a19" not found in service "180f"`,
		(&ResolutionError{Resource: "characteristic", UUIDs: []string{"180f", "2a19"}}).Error())
	assert.Equal(t, "service not found", (&ResolutionError{Resource: "service"}).Error())
}

func TestFilterMatches(t *testing.T) {
	sensor := fakeAdvertisement{
		name:        "MicroPython_BLE_Test",
		addr:        "5E:1A:00:00:D0:00",
		services:    []string{"90d3d000-c950-4dd6-9410-2b7aeb1dd7d8"},
		connectable: true,
	}

	tests := []struct {
		name   string
		filter Filter
		match  bool
	}{
		{"empty filter accepts connectable", Filter{}, true},
		{"address ignores case", Filter{Address: "5e:1a:00:00:d0:00"}, true},
		{"other address", Filter{Address: "00:11:22:33:44:55"}, false},
		{"service in any format", Filter{Services: []string{"90D3D000C9504DD694102B7AEB1DD7D8"}}, true},
		{"missing service", Filter{Services: []string{"180F"}}, false},
		{"exact name", Filter{Name: "MicroPython_BLE_Test"}, true},
		{"name is case sensitive", Filter{Name: "micropython_ble_test"}, false},
		{"name prefix", Filter{NamePrefix: "MicroPython"}, true},
		{"service or name", Filter{Services: []string{"180F"}, Name: "MicroPython_BLE_Test"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, tt.filter.Matches(sensor), "%s MUST match=%v", tt.filter, tt.match)
		})
	}

	assert.False(t, Filter{}.Matches(fakeAdvertisement{}), "empty filter MUST skip non-connectable peripherals")
}

func TestFilterString(t *testing.T) {
	assert.Equal(t, "any", Filter{}.String())
	assert.Equal(t, "services=180F,2A19 name_prefix=Micro",
		Filter{Services: []string{"180F", "2A19"}, NamePrefix: "Micro"}.String())
}
