package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
)

// ----------------------------
// BLE Service
// ----------------------------

// BLEService represents a discovered GATT service
type BLEService struct {
	uuid   string
	BLESvc *ble.Service
	conn   *BLEConnection

	mu              sync.RWMutex
	characteristics map[string]*BLECharacteristic
}

func newBLEService(s *ble.Service, conn *BLEConnection) *BLEService {
	return &BLEService{
		uuid:            device.NormalizeUUID(s.UUID.String()),
		BLESvc:          s,
		conn:            conn,
		characteristics: make(map[string]*BLECharacteristic),
	}
}

func (s *BLEService) UUID() string {
	return s.uuid
}

// GetCharacteristic discovers the characteristic with the given UUID within this service.
// Returns a ResolutionError if the service does not contain it.
func (s *BLEService) GetCharacteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	normalizedUUID := device.NormalizeUUID(uuid)
	if normalizedUUID == "" {
		return nil, fmt.Errorf("invalid characteristic UUID %q", uuid)
	}

	client, err := s.conn.activeClient()
	if err != nil {
		return nil, err
	}

	if char := s.cached(normalizedUUID); char != nil {
		return char, nil
	}

	bleUUID, err := ble.Parse(normalizedUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", uuid, err)
	}

	s.conn.gattMutex.Lock()
	defer s.conn.gattMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if char := s.cached(normalizedUUID); char != nil {
		return char, nil
	}

	s.conn.logger.WithFields(logrus.Fields{
		"service_uuid": s.uuid,
		"char_uuid":    uuid,
	}).Debug("Discovering characteristic...")

	bleChars, err := client.DiscoverCharacteristics([]ble.UUID{bleUUID}, s.BLESvc)
	if err != nil {
		err = NormalizeError(err)
		s.conn.logger.WithFields(logrus.Fields{
			"service_uuid": s.uuid,
			"char_uuid":    uuid,
			"error":        err,
		}).Error("Failed to discover characteristic")
		return nil, fmt.Errorf("failed to discover characteristic %s: %w", uuid, err)
	}

	for _, bleChar := range bleChars {
		if device.NormalizeUUID(bleChar.UUID.String()) != normalizedUUID {
			continue
		}
		char := newBLECharacteristic(bleChar, s.uuid, s.conn)
		s.mu.Lock()
		s.characteristics[normalizedUUID] = char
		s.mu.Unlock()

		s.conn.logger.WithFields(logrus.Fields{
			"service_uuid": s.uuid,
			"char_uuid":    uuid,
			"properties":   PropertyNames(bleChar.Property),
		}).Debug("Found characteristic UUID")
		return char, nil
	}

	return nil, &device.ResolutionError{Resource: "characteristic", UUIDs: []string{s.uuid, uuid}}
}

func (s *BLEService) cached(normalizedUUID string) *BLECharacteristic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.characteristics[normalizedUUID]
}
