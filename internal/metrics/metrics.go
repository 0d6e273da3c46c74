// Package metrics exposes the counters of a streaming session to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/connector"
)

const namespace = "blesail"

// Session is the part of a connector session the collector reads
type Session interface {
	Stats() []connector.SourceStats
	Subscribed() int
	State() connector.State
}

// Collector reports session counters on every scrape. The values are read
// from the session, nothing is cached.
type Collector struct {
	session Session

	received   *prometheus.Desc
	dropped    *prometheus.Desc
	decoded    *prometheus.Desc
	failed     *prometheus.Desc
	subscribed *prometheus.Desc
	streaming  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over session
func NewCollector(session Session) *Collector {
	source := []string{"source"}
	return &Collector{
		session:    session,
		received:   prometheus.NewDesc(namespace+"_source_received_total", "Payloads received from notifications.", source, nil),
		dropped:    prometheus.NewDesc(namespace+"_source_dropped_total", "Payloads dropped because the consumer lagged.", source, nil),
		decoded:    prometheus.NewDesc(namespace+"_source_decoded_total", "Values written to the sink.", source, nil),
		failed:     prometheus.NewDesc(namespace+"_source_failed_total", "Payloads the decoder rejected.", source, nil),
		subscribed: prometheus.NewDesc(namespace+"_sources_subscribed", "Sources streaming in this session.", nil, nil),
		streaming:  prometheus.NewDesc(namespace+"_session_streaming", "1 while the session is streaming.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.dropped
	ch <- c.decoded
	ch <- c.failed
	ch <- c.subscribed
	ch <- c.streaming
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.session.Stats() {
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(st.Received), st.Name)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(st.Dropped), st.Name)
		ch <- prometheus.MustNewConstMetric(c.decoded, prometheus.CounterValue, float64(st.Decoded), st.Name)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(st.Failed), st.Name)
	}
	ch <- prometheus.MustNewConstMetric(c.subscribed, prometheus.GaugeValue, float64(c.session.Subscribed()))

	streaming := 0.0
	if c.session.State() == connector.Streaming {
		streaming = 1
	}
	ch <- prometheus.MustNewConstMetric(c.streaming, prometheus.GaugeValue, streaming)
}

// Handler returns the /metrics handler of a registry holding the session collector
func Handler(session Session) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(session)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Server serves /metrics until its context is done
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *logrus.Logger
}

// Listen binds addr (":9100", "127.0.0.1:0") and prepares the server
func Listen(addr string, session Session, logger *logrus.Logger) (*Server, error) {
	if logger == nil {
		logger = logrus.New()
	}
	h, err := Handler(session)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()

	s.logger.WithField("addr", s.Addr()).Info("Serving metrics")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
