package metrics

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
	"codeberg.org/mutker/iceman/internal/fan"
	"codeberg.org/mutker/iceman/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var help = map[string]string{
	MetricRPM:       "Fan speed in revolutions per minute.",
	MetricProbeTemp: "Probe temperature in degrees Fahrenheit.",
	MetricBoardTemp: "Board temperature in degrees Fahrenheit.",
}

type gaugeVec struct {
	vec    *prometheus.GaugeVec
	labels []string
}

// Prometheus exposes published samples as gauges on its own registry.
// A gauge vector is created on first sight of a metric name; later samples
// for that name must carry the same tag keys.
type Prometheus struct {
	registry *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]gaugeVec

	duty  prometheus.Gauge
	state prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]gaugeVec),
		duty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fan_controller_duty_cycle",
			Help: "Last commanded PWM duty cycle (0..1).",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fan_controller_state",
			Help: "Fan state: 0 unset, 1 slow, 2 fast.",
		}),
	}
	p.registry.MustRegister(p.duty, p.state)

	return p
}

func (p *Prometheus) Publish(_ context.Context, s Sample) error {
	if s.Name == "" {
		return errors.New().WithMessage(ErrInvalidSample, "metric name is empty")
	}

	keys := sortedKeys(s.Tags)

	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.gauges[s.Name]
	if !ok {
		g = gaugeVec{
			vec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: s.Name,
				Help: helpFor(s.Name),
			}, keys),
			labels: keys,
		}
		if err := p.registry.Register(g.vec); err != nil {
			return errors.New().Wrap(ErrInvalidSample, err)
		}
		p.gauges[s.Name] = g
	}

	if !slices.Equal(g.labels, keys) {
		return errors.New().WithData(ErrLabelMismatch, struct {
			Metric   string
			Expected []string
			Got      []string
		}{
			Metric:   s.Name,
			Expected: g.labels,
			Got:      keys,
		})
	}

	g.vec.With(prometheus.Labels(s.Tags)).Set(s.Value)

	return nil
}

// ObserveFan records a fan controller command. It matches fan.StateHook.
func (p *Prometheus) ObserveFan(state fan.State, duty float64) {
	p.state.Set(float64(state))
	p.duty.Set(duty)
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve runs the scrape endpoint on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Debug().Err(err).Msg("Prometheus listener shutdown")
		}
	}()

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New().Wrap(errors.ErrInitFailed, err)
	}
	return nil
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return "Published sample " + name + "."
}
