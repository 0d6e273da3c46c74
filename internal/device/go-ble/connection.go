package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
	"github.com/srg/blesail/internal/groutine"
)

// ----------------------------
// BLE Connection
// ----------------------------

// BLEConnection represents a live GATT link.
// Services and characteristics are discovered lazily, one UUID at a time,
// so a missing entry only fails the lookup that asked for it.
type BLEConnection struct {
	client      Client
	logger      *logrus.Logger
	connMutex   sync.RWMutex
	gattMutex   sync.Mutex // serializes GATT procedures on the client
	isConnected bool

	services map[string]*BLEService

	subMgr *SubscriptionManager
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewBLEConnection wraps a dialed client and starts watching for link loss
func NewBLEConnection(client Client, logger *logrus.Logger) *BLEConnection {
	if logger == nil {
		logger = logrus.New()
	}

	c := &BLEConnection{
		client:      client,
		logger:      logger,
		isConnected: true,
		services:    make(map[string]*BLEService),
		subMgr:      NewSubscriptionManager(logger),
	}
	// WithCancelCause propagates the link loss reason to Err()
	c.ctx, c.cancel = context.WithCancelCause(context.Background())

	// Monitor go-ble client Disconnected() channel
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(monitorCtx context.Context) {
			select {
			case <-dc.Disconnected():
				c.logger.Warn("BLE host reported disconnection, cancelling connection context")
				c.connMutex.Lock()
				c.isConnected = false
				c.connMutex.Unlock()
				c.cancel(device.ErrNotConnected)
			case <-c.ctx.Done():
				// Connection context already cancelled, exit monitor
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	return c
}

// activeClient returns the client while the link is up
func (c *BLEConnection) activeClient() (Client, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnectedInternal() {
		return nil, device.ErrNotConnected
	}
	return c.client, nil
}

// isConnectedInternal checks the connection status without acquiring locks.
// Should only be called when the caller already holds connMutex.RLock() or connMutex.Lock().
func (c *BLEConnection) isConnectedInternal() bool {
	return c.client != nil && c.isConnected
}

// IsConnected reports whether the link is up
func (c *BLEConnection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnectedInternal()
}

// Disconnected is closed when the link drops or Disconnect is called
func (c *BLEConnection) Disconnected() <-chan struct{} {
	return c.ctx.Done()
}

// Err returns why the link dropped, or nil while connected or after a local Disconnect
func (c *BLEConnection) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(c.ctx)
	if errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

// GetService discovers the service with the given UUID.
// Returns a ResolutionError if the peripheral does not expose it.
func (c *BLEConnection) GetService(ctx context.Context, uuid string) (device.Service, error) {
	normalizedUUID := device.NormalizeUUID(uuid)
	if normalizedUUID == "" {
		return nil, fmt.Errorf("invalid service UUID %q", uuid)
	}

	client, err := c.activeClient()
	if err != nil {
		return nil, err
	}

	if svc := c.cachedService(normalizedUUID); svc != nil {
		return svc, nil
	}

	bleUUID, err := ble.Parse(normalizedUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", uuid, err)
	}

	c.gattMutex.Lock()
	defer c.gattMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Another chain may have discovered it while we waited
	if svc := c.cachedService(normalizedUUID); svc != nil {
		return svc, nil
	}

	c.logger.WithField("service_uuid", uuid).Debug("Discovering service...")
	bleServices, err := client.DiscoverServices([]ble.UUID{bleUUID})
	if err != nil {
		err = NormalizeError(err)
		c.logger.WithFields(logrus.Fields{
			"service_uuid": uuid,
			"error":        err,
		}).Error("Failed to discover service")
		return nil, fmt.Errorf("failed to discover service %s: %w", uuid, err)
	}

	for _, bleSvc := range bleServices {
		if device.NormalizeUUID(bleSvc.UUID.String()) != normalizedUUID {
			continue
		}
		svc := newBLEService(bleSvc, c)
		c.connMutex.Lock()
		c.services[normalizedUUID] = svc
		c.connMutex.Unlock()

		c.logger.WithField("service_uuid", uuid).Debug("Found service UUID")
		return svc, nil
	}

	return nil, &device.ResolutionError{Resource: "service", UUIDs: []string{uuid}}
}

func (c *BLEConnection) cachedService(normalizedUUID string) *BLEService {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.services[normalizedUUID]
}

// Disconnect unsubscribes all active notifications and cancels the connection
func (c *BLEConnection) Disconnect() error {
	c.connMutex.Lock()
	if c.client == nil {
		c.connMutex.Unlock()
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"connection_ptr": fmt.Sprintf("%p", c),
		"services":       len(c.services),
	}).Info("Disconnecting BLE device...")

	// Grab client and link state to release lock before blocking calls
	client := c.client
	wasConnected := c.isConnected
	c.client = nil
	c.isConnected = false
	c.connMutex.Unlock()

	// Subscription handlers must not outlive the connection
	subs := c.subMgr.CancelAll()
	if wasConnected {
		if unsubscribeErrors := c.unsubscribeAll(client, subs); len(unsubscribeErrors) > 0 {
			c.logger.WithField("errors", strings.Join(unsubscribeErrors, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
		}
	}

	c.cancel(nil) // normal disconnection, no error cause

	disconnectErr := NormalizeError(client.CancelConnection())
	if disconnectErr != nil && !errors.Is(disconnectErr, device.ErrNotConnected) {
		c.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
		return disconnectErr
	}

	c.logger.Info("BLE device disconnected successfully")
	return nil
}

// unsubscribeAll unsubscribes from remote notifications.
// Returns a list of error messages for failed unsubscriptions.
// Should be called without holding locks.
func (c *BLEConnection) unsubscribeAll(client Client, subs []*Subscription) []string {
	var unsubscribeErrors []string

	for _, sub := range subs {
		err := NormalizeError(client.Unsubscribe(sub.Char.BLEChar, sub.Indicate))
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"service_uuid": sub.Char.serviceUUID,
				"char_uuid":    sub.Char.uuid,
				"error":        err,
			}).Debug("Failed to unsubscribe from characteristic notifications")
			unsubscribeErrors = append(unsubscribeErrors, fmt.Sprintf("%s (in service %s): %v", sub.Char.uuid, sub.Char.serviceUUID, err))
			continue
		}
		c.logger.WithFields(logrus.Fields{
			"service_uuid": sub.Char.serviceUUID,
			"char_uuid":    sub.Char.uuid,
		}).Debug("Unsubscribed from characteristic notifications")
	}

	return unsubscribeErrors
}
