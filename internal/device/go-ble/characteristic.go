package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
)

// ----------------------------
// BLECharacteristic
// ----------------------------

type BLECharacteristic struct {
	uuid        string
	serviceUUID string
	BLEChar     *ble.Characteristic
	conn        *BLEConnection
}

func newBLECharacteristic(c *ble.Characteristic, serviceUUID string, conn *BLEConnection) *BLECharacteristic {
	return &BLECharacteristic{
		uuid:        device.NormalizeUUID(c.UUID.String()),
		serviceUUID: serviceUUID,
		BLEChar:     c,
		conn:        conn,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

// StartNotifications enables notifications (or indications when notify is not supported)
// and routes every payload to handler. The payload slice is owned by go-ble and
// is only valid for the duration of the call.
func (c *BLECharacteristic) StartNotifications(ctx context.Context, handler device.NotificationHandler) error {
	if handler == nil {
		return fmt.Errorf("no notification handler specified for characteristic %s", c.uuid)
	}

	props := c.BLEChar.Property
	if props&ble.CharNotify == 0 && props&ble.CharIndicate == 0 {
		return &device.ConnectionError{
			State: device.NotificationsRefused,
			Msg:   fmt.Sprintf("characteristic %s does not support notifications (properties: %s)", c.uuid, PropertyNames(props)),
		}
	}
	indicate := props&ble.CharNotify == 0

	client, err := c.conn.activeClient()
	if err != nil {
		return err
	}

	c.conn.gattMutex.Lock()
	defer c.conn.gattMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	fields := logrus.Fields{"service_uuid": c.serviceUUID, "char_uuid": c.uuid}

	// a second source on the same characteristic joins the enabled subscription;
	// the host keeps the first handler and ignores another Subscribe
	if sub := c.conn.subMgr.Get(c); sub != nil {
		n := sub.attach(handler)
		c.conn.logger.WithFields(fields).WithField("handlers", n).Info("Attached to existing characteristic subscription")
		return nil
	}

	discoverCCCD(client, c.BLEChar, DefaultDescriptorDiscoveryTimeout, c.conn.logger)

	sub := newSubscription(c, indicate, handler)
	err = NormalizeError(client.Subscribe(c.BLEChar, indicate, sub.dispatch))
	if err != nil {
		c.conn.logger.WithFields(fields).WithField("error", err).Error("Failed to subscribe to characteristic notifications")
		return &device.ConnectionError{
			State: device.NotificationsRefused,
			Msg:   fmt.Sprintf("failed to enable notifications on %s", c.uuid),
			Err:   err,
		}
	}

	c.conn.subMgr.Add(sub)

	c.conn.logger.WithFields(fields).WithField("indicate", indicate).Info("Successfully subscribed to characteristic notifications")
	return nil
}
