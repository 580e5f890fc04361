package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/busalloc/api/reallocation"
	"github.com/kilianp07/busalloc/app/plugins"
	"github.com/kilianp07/busalloc/config"
	"github.com/kilianp07/busalloc/core/allocation"
	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/events"
	"github.com/kilianp07/busalloc/core/fleet"
	coremetrics "github.com/kilianp07/busalloc/core/metrics"
	coremon "github.com/kilianp07/busalloc/core/monitoring"
	"github.com/kilianp07/busalloc/core/requests"
	"github.com/kilianp07/busalloc/core/simulator"
	"github.com/kilianp07/busalloc/infra/logger"
	"github.com/kilianp07/busalloc/infra/metrics"
	"github.com/kilianp07/busalloc/infra/monitoring"
	"github.com/kilianp07/busalloc/infra/mqtt"
	"github.com/kilianp07/busalloc/internal/eventbus"
)

const shutdownTimeout = 5 * time.Second

// Service wires the engine to its stores, the HTTP API and the outbound
// adapters.
type Service struct {
	Engine *allocation.Engine

	cfg        *config.Config
	configPath string
	bus        *eventbus.Bus[events.Event]
	decisions  decisionlog.Store
	sink       coremetrics.MetricsSink
	monitor    coremon.Monitor
	mqttClient *mqtt.PahoClient
	forwarder  *mqtt.Forwarder
	server     *http.Server
	log        logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	registry, err := newRegistry(cfg.Fleet)
	if err != nil {
		return nil, fmt.Errorf("fleet: %w", err)
	}
	decisions, err := plugins.NewDecisionLog(cfg.DecisionLog)
	if err != nil {
		return nil, err
	}
	ranker, err := plugins.NewRanker(cfg.Oracle, plugins.RankerOptions{
		Timeout: cfg.Engine.OracleTimeout(),
		Log:     logger.New("oracle"),
	})
	if err != nil {
		_ = decisions.Close()
		return nil, err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = decisions.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	bus := eventbus.New[events.Event]()
	engine, err := allocation.NewEngine(cfg.Engine, requests.NewMemoryStore(), decisions, registry, ranker, bus, logger.New("engine"))
	if err != nil {
		bus.Close()
		_ = decisions.Close()
		return nil, err
	}
	engine.SetMonitor(mon)

	svc := &Service{
		Engine:    engine,
		cfg:       cfg,
		bus:       bus,
		decisions: decisions,
		sink:      sink,
		monitor:   mon,
		log:       logg,
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT.Client)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqttClient = client
		svc.forwarder = mqtt.NewForwarder(client, mqtt.ForwarderConfig{
			AckTimeout: time.Duration(cfg.MQTT.AckTimeoutSeconds) * time.Second,
			Kinds:      cfg.MQTT.Events,
		})
	}

	opts := reallocation.Options{AllowedOrigins: cfg.HTTP.AllowedOrigins}
	if cfg.Simulator.Enabled {
		opts.Simulator = simulator.NewGenerator(cfg.Simulator.Seed)
	}
	svc.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           reallocation.NewRouter(engine, logger.New("api"), opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return svc, nil
}

func newRegistry(cfg config.FleetConfig) (*fleet.MemoryRegistry, error) {
	if cfg.SeedPath == "" {
		return fleet.NewDefaultRegistry(), nil
	}
	seed, err := fleet.LoadSeed(cfg.SeedPath)
	if err != nil {
		return nil, err
	}
	return fleet.NewMemoryRegistry(seed)
}

// WatchConfig makes Run reload engine tunables whenever path changes.
func (s *Service) WatchConfig(path string) { s.configPath = path }

// Handler returns the HTTP handler of the API.
func (s *Service) Handler() http.Handler { return s.server.Handler }

// Run starts the engine and every adapter, then serves HTTP until ctx is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collectorDone := metrics.StartEventCollector(ctx, s.bus, s.sink)
	var forwarderDone <-chan struct{}
	if s.forwarder != nil {
		forwarderDone = s.forwarder.Start(ctx, s.bus)
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.configPath != "" {
		go func() {
			if err := config.Watch(ctx, s.configPath, s.Engine, logger.New("config")); err != nil {
				s.log.Errorf("config watch: %v", err)
			}
		}()
	}
	s.Engine.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http shutdown: %v", err)
	}
	_ = s.Engine.Close()
	cancel()
	<-collectorDone
	if forwarderDone != nil {
		<-forwarderDone
	}
	return runErr
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	err := s.Engine.Close()
	s.bus.Close()
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if cerr := s.decisions.Close(); err == nil {
		err = cerr
	}
	s.monitor.Flush(2 * time.Second)
	return err
}
