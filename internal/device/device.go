package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SelectionReason tells why no peripheral was selected
type SelectionReason string

const (
	SelectionCancelled SelectionReason = "cancelled"
	SelectionNoMatch   SelectionReason = "no_match"
)

// DeviceSelectionError is returned by Central.RequestDevice when the request is
// cancelled or no advertising peripheral matches the filter.
//
//nolint:revive // DeviceSelectionError reads better than device.SelectionError at call sites
type DeviceSelectionError struct {
	Reason SelectionReason
	Filter Filter
	Err    error
}

func (e *DeviceSelectionError) Error() string {
	msg := fmt.Sprintf("device selection %s (filter: %s)", e.Reason, e.Filter)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceSelectionError) Unwrap() error {
	return e.Err
}

// ConnectionState represents the specific kind of connection failure
type ConnectionState string

const (
	NotConnected         ConnectionState = "not_connected"
	AlreadyConnected     ConnectionState = "already_connected"
	ConnectFailed        ConnectionState = "connect_failed"
	NotificationsRefused ConnectionState = "notify_failed"
	BluetoothOff         ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
	Err   error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.State)
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", e.State, e.Msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrConnectFailed    = &ConnectionError{State: ConnectFailed}
	ErrNotifyRefused    = &ConnectionError{State: NotificationsRefused}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// ErrTimeout marks a stage that ran out of time
var ErrTimeout = errors.New("timeout")

// ResolutionError represents a service or characteristic that the peripheral does not expose
type ResolutionError struct {
	Resource string   // "service" or "characteristic"
	UUIDs    []string // [service] or [service, characteristic]
}

func (e *ResolutionError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Filter selects a peripheral during RequestDevice.
// Address short-circuits scanning; otherwise a peripheral matches when it
// advertises any of Services, or its local name equals Name or starts with NamePrefix.
// An empty filter accepts the first connectable peripheral.
type Filter struct {
	Address    string   `yaml:"address,omitempty"`
	Services   []string `yaml:"services,omitempty"`
	Name       string   `yaml:"name,omitempty"`
	NamePrefix string   `yaml:"name_prefix,omitempty"`
}

func (f Filter) String() string {
	var parts []string
	if f.Address != "" {
		parts = append(parts, "address="+f.Address)
	}
	if len(f.Services) > 0 {
		parts = append(parts, "services="+strings.Join(f.Services, ","))
	}
	if f.Name != "" {
		parts = append(parts, "name="+f.Name)
	}
	if f.NamePrefix != "" {
		parts = append(parts, "name_prefix="+f.NamePrefix)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// Matches reports whether an advertisement satisfies the filter
func (f Filter) Matches(adv Advertisement) bool {
	if f.Address != "" {
		return strings.EqualFold(f.Address, adv.Addr())
	}

	byService := len(f.Services) > 0
	byName := f.Name != "" || f.NamePrefix != ""
	if !byService && !byName {
		return adv.Connectable()
	}

	if byService {
		for _, want := range f.Services {
			for _, got := range adv.Services() {
				if NormalizeUUID(want) == NormalizeUUID(got) {
					return true
				}
			}
		}
	}

	name := adv.LocalName()
	if f.Name != "" && name == f.Name {
		return true
	}
	if f.NamePrefix != "" && strings.HasPrefix(name, f.NamePrefix) {
		return true
	}
	return false
}

// Advertisement is the subset of advertising data used for device selection
type Advertisement interface {
	LocalName() string
	Services() []string
	RSSI() int
	Addr() string
	Connectable() bool
}

// RequestOptions bounds a device request
type RequestOptions struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
}

// Central selects peripherals
type Central interface {
	RequestDevice(ctx context.Context, filter Filter, opts *RequestOptions) (Peripheral, error)
}

// Peripheral is a selected, not yet connected device
type Peripheral interface {
	Address() string
	Name() string
	Connect(ctx context.Context) (Connection, error)
}

// Connection represents an open GATT link
type Connection interface {
	GetService(ctx context.Context, uuid string) (Service, error)
	Disconnected() <-chan struct{}
	Disconnect() error
}

// Service represents a resolved GATT service
type Service interface {
	UUID() string
	GetCharacteristic(ctx context.Context, uuid string) (Characteristic, error)
}

// NotificationHandler receives raw characteristic payloads.
// The slice is only valid for the duration of the call.
type NotificationHandler func(data []byte)

// Characteristic represents a resolved GATT characteristic
type Characteristic interface {
	UUID() string
	StartNotifications(ctx context.Context, handler NotificationHandler) error
}
