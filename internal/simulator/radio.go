package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
	goble "github.com/srg/blesail/internal/device/go-ble"
	"github.com/srg/blesail/internal/groutine"
	"github.com/srg/blesail/internal/profile"
)

// Options configures the simulated module. Zero values are filled from the default tags.
type Options struct {
	Name              string        `default:"MicroPython_BLE_Test"`
	Address           string        `default:"5e:1a:00:00:d0:00"`
	Interval          time.Duration `default:"1s"`
	AdvertiseInterval time.Duration `default:"250ms"`
	RSSI              int           `default:"-60"`
	Seed              uint64        `default:"1"`
	LinkLoss          time.Duration // drop the connection after this long, 0 = never
}

// Radio is a simulated host controller with exactly one peripheral in range: the sensor module
type Radio struct {
	opts     Options
	logger   *logrus.Logger
	firmware *Firmware

	mu     sync.Mutex
	client *Client // nil while advertising
}

var _ goble.Radio = (*Radio)(nil)

// NewRadio creates a simulated radio
func NewRadio(opts *Options, logger *logrus.Logger) *Radio {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)

	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{opts: o, logger: logger, firmware: NewFirmware(o.Seed)}
}

// Firmware returns the simulated sensor model
func (r *Radio) Firmware() *Firmware {
	return r.firmware
}

// Options returns the effective options
func (r *Radio) Options() Options {
	return r.opts
}

// Scan advertises the module until ctx is done. Like the firmware, the module
// does not advertise while a central is connected.
func (r *Radio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	adv := &advertisement{
		name:     r.opts.Name,
		addr:     r.opts.Address,
		rssi:     r.opts.RSSI,
		services: []string{profile.SensorService},
	}

	ticker := time.NewTicker(r.opts.AdvertiseInterval)
	defer ticker.Stop()

	seen := false
	for {
		if !r.connected() && (allowDup || !seen) {
			handler(adv)
			seen = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Radio) connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client != nil
}

// Dial connects to the module; it accepts a single central at a time
func (r *Radio) Dial(ctx context.Context, address string) (goble.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(address), r.opts.Address) {
		return nil, fmt.Errorf("no peripheral at %s", address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return nil, errors.New("already connected")
	}

	c := newClient(r)
	r.client = c
	c.start()

	r.logger.WithField("address", address).Info("Simulated sensor connected")
	return c, nil
}

func (r *Radio) release(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == c {
		r.client = nil
	}
}

type advertisement struct {
	name     string
	addr     string
	rssi     int
	services []string
}

func (a *advertisement) LocalName() string  { return a.name }
func (a *advertisement) Services() []string { return a.services }
func (a *advertisement) RSSI() int          { return a.rssi }
func (a *advertisement) Addr() string       { return a.addr }
func (a *advertisement) Connectable() bool  { return true }

// Client is the simulated GATT link
type Client struct {
	radio   *Radio
	service *ble.Service

	mu       sync.Mutex
	handlers map[string]ble.NotificationHandler // normalized characteristic UUID -> handler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var _ goble.Client = (*Client)(nil)

func newClient(r *Radio) *Client {
	svc := ble.NewService(ble.MustParse(profile.SensorService))
	for _, uuid := range []string{
		profile.Temperature, profile.WindSpeed, profile.WindAngle,
		profile.Latitude, profile.Longitude,
		profile.Speed, profile.MaxSpeed, profile.Distance, profile.Heading,
		profile.IsRecording,
	} {
		ch := svc.NewCharacteristic(ble.MustParse(uuid))
		ch.Property = ble.CharRead | ble.CharNotify
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		radio:    r,
		service:  svc,
		handlers: make(map[string]ble.NotificationHandler),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (c *Client) start() {
	groutine.Go(c.ctx, "simulator-firmware", func(ctx context.Context) {
		c.run(ctx)
	})
}

func (c *Client) run(ctx context.Context) {
	ticker := time.NewTicker(c.radio.opts.Interval)
	defer ticker.Stop()

	var linkLoss <-chan time.Time
	if c.radio.opts.LinkLoss > 0 {
		timer := time.NewTimer(c.radio.opts.LinkLoss)
		defer timer.Stop()
		linkLoss = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-linkLoss:
			c.radio.logger.Info("Simulated link loss")
			c.drop()
			return
		case <-ticker.C:
			c.notify(c.radio.firmware.Tick())
		}
	}
}

func (c *Client) notify(batch []Notification) {
	for _, n := range batch {
		c.mu.Lock()
		h := c.handlers[device.NormalizeUUID(n.Characteristic)]
		c.mu.Unlock()
		if h != nil {
			h(n.Data)
		}
	}
}

func (c *Client) drop() {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
		c.radio.release(c)
	})
}

// Disconnected is closed when the link is gone
func (c *Client) Disconnected() <-chan struct{} {
	return c.done
}

func (c *Client) checkLink() error {
	select {
	case <-c.done:
		return errors.New("device not connected")
	default:
		return nil
	}
}

// DiscoverServices returns the sensor service when the filter allows it
func (c *Client) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	if err := c.checkLink(); err != nil {
		return nil, err
	}
	if len(filter) > 0 && !ble.Contains(filter, c.service.UUID) {
		return nil, nil
	}
	return []*ble.Service{c.service}, nil
}

// DiscoverCharacteristics returns the service characteristics matching the filter
func (c *Client) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	if err := c.checkLink(); err != nil {
		return nil, err
	}
	if s == nil || !s.UUID.Equal(c.service.UUID) {
		return nil, nil
	}

	var out []*ble.Characteristic
	for _, ch := range c.service.Characteristics {
		if len(filter) == 0 || ble.Contains(filter, ch.UUID) {
			out = append(out, ch)
		}
	}
	return out, nil
}

// DiscoverDescriptors returns the client characteristic configuration descriptor
func (c *Client) DiscoverDescriptors(_ []ble.UUID, ch *ble.Characteristic) ([]*ble.Descriptor, error) {
	if err := c.checkLink(); err != nil {
		return nil, err
	}
	cccd := ble.NewDescriptor(ble.ClientCharacteristicConfigUUID)
	ch.CCCD = cccd
	return []*ble.Descriptor{cccd}, nil
}

// Subscribe registers h for notifications of ch. Like the go-ble host, a
// characteristic that is already subscribed keeps its handler and the call
// succeeds without installing h.
func (c *Client) Subscribe(ch *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	if err := c.checkLink(); err != nil {
		return err
	}
	if ind {
		return errors.New("indications not supported")
	}

	key := device.NormalizeUUID(ch.UUID.String())
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[key]; !ok {
		c.handlers[key] = h
	}
	return nil
}

// Unsubscribe removes the handler of ch
func (c *Client) Unsubscribe(ch *ble.Characteristic, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, device.NormalizeUUID(ch.UUID.String()))
	return nil
}

// CancelConnection closes the link
func (c *Client) CancelConnection() error {
	c.drop()
	return nil
}
