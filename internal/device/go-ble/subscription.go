package goble

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
)

// ----------------------------
// Subscription
// ----------------------------

// Subscription is an enabled notification on one characteristic and the
// handlers it fans out to. The host accepts one handler per characteristic,
// so every StartNotifications on the same characteristic shares it.
type Subscription struct {
	Char     *BLECharacteristic
	Indicate bool
	Since    time.Time

	mu       sync.RWMutex
	handlers []device.NotificationHandler
}

func newSubscription(c *BLECharacteristic, indicate bool, first device.NotificationHandler) *Subscription {
	return &Subscription{
		Char:     c,
		Indicate: indicate,
		Since:    time.Now(),
		handlers: []device.NotificationHandler{first},
	}
}

func (s *Subscription) attach(h device.NotificationHandler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
	return len(s.handlers)
}

// Handlers returns the number of attached handlers
func (s *Subscription) Handlers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// dispatch is the single host-level handler; data is valid only during the call
func (s *Subscription) dispatch(data []byte) {
	s.mu.RLock()
	hs := s.handlers
	s.mu.RUnlock()

	for _, h := range hs {
		h(data)
	}
}

// ----------------------------
// Subscription Manager
// ----------------------------

// SubscriptionManager tracks enabled notifications by characteristic so they
// can be shared and turned off on disconnect
type SubscriptionManager struct {
	order  []string
	byKey  map[string]*Subscription
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(logger *logrus.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		byKey:  make(map[string]*Subscription),
		logger: logger,
	}
}

func subscriptionKey(c *BLECharacteristic) string {
	return c.serviceUUID + "/" + c.uuid
}

// Get returns the subscription of c, nil if notifications are not enabled yet
func (m *SubscriptionManager) Get(c *BLECharacteristic) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[subscriptionKey(c)]
}

// Add records an enabled subscription
func (m *SubscriptionManager) Add(sub *Subscription) {
	key := subscriptionKey(sub.Char)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[key]; !ok {
		m.order = append(m.order, key)
	}
	m.byKey[key] = sub
}

// Len returns the number of characteristics with notifications enabled
func (m *SubscriptionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// CancelAll clears the table and returns the subscriptions that were active, in enable order
func (m *SubscriptionManager) CancelAll() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]*Subscription, 0, len(m.order))
	for _, key := range m.order {
		subs = append(subs, m.byKey[key])
	}
	m.order = nil
	m.byKey = make(map[string]*Subscription)

	if m.logger != nil {
		m.logger.WithField("subscriptions", len(subs)).Debug("Cancelling all active subscriptions...")
	}
	return subs
}
