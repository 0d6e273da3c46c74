package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultDescriptorDiscoveryTimeout bounds the best-effort descriptor discovery before subscribing.
	DefaultDescriptorDiscoveryTimeout = 2 * time.Second
)

// discoverCCCD populates the Client Characteristic Configuration descriptor of c.
// Subscribing on Linux needs c.CCCD; Darwin resolves it internally.
// Discovery is best-effort: on error or timeout Subscribe reports the actual failure.
func discoverCCCD(client Client, c *ble.Characteristic, timeout time.Duration, logger *logrus.Logger) {
	if c.CCCD != nil || timeout == 0 {
		return
	}

	type discoverResult struct {
		descriptors []*ble.Descriptor
		err         error
	}
	resultCh := make(chan discoverResult, 1)

	go func() {
		descriptors, err := client.DiscoverDescriptors(nil, c)
		resultCh <- discoverResult{descriptors: descriptors, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			logger.WithFields(logrus.Fields{
				"char_uuid": c.UUID.String(),
				"error":     result.err,
			}).Debug("Failed to discover descriptors")
			return
		}
		logger.WithFields(logrus.Fields{
			"char_uuid":   c.UUID.String(),
			"descriptors": len(result.descriptors),
			"cccd":        c.CCCD != nil,
		}).Debug("Descriptors discovered")
	case <-time.After(timeout):
		logger.WithFields(logrus.Fields{
			"char_uuid": c.UUID.String(),
			"timeout":   timeout,
		}).Debug("Timeout discovering descriptors")
	}
}
