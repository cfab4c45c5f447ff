// Package app собирает сервис реестра типов дерева из конфигурации:
// реестр, наблюдатели, хранилище, шину событий и HTTP-интерфейсы.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/woodtypes/internal/api"
	"github.com/annel0/woodtypes/internal/auth"
	"github.com/annel0/woodtypes/internal/blocksource"
	"github.com/annel0/woodtypes/internal/cache"
	"github.com/annel0/woodtypes/internal/config"
	"github.com/annel0/woodtypes/internal/eventbus"
	"github.com/annel0/woodtypes/internal/logging"
	"github.com/annel0/woodtypes/internal/metrics"
	"github.com/annel0/woodtypes/internal/observability"
	"github.com/annel0/woodtypes/internal/storage"
	"github.com/annel0/woodtypes/internal/woodtype"
)

// App: собранный сервис
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	Registry *woodtype.Registry
	Builtins *Builtins
	Prom     *prometheus.Registry

	bus         eventbus.EventBus
	busListener eventbus.Subscription
	busExporter *metrics.BusExporter
	store       *storage.SnapshotStore
	mirror      *cache.SnapshotMirror
	rest        *api.RestServer
	metricsSrv  *metrics.Server
	telemetry   observability.ShutdownFunc
}

// New собирает сервис. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}

	a := &App{
		cfg:       cfg,
		logger:    logging.GetRegistryLogger(),
		Prom:      prometheus.NewRegistry(),
		telemetry: func(context.Context) error { return nil },
	}
	defer func() {
		if err != nil {
			a.Shutdown(context.Background())
		}
	}()

	a.telemetry, err = observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, observability.Options{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
		Ratio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	classifier, err := cfg.Classifier.Classifier()
	if err != nil {
		return nil, err
	}

	a.Prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(a.Prom)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if err = a.openBus(); err != nil {
		return nil, err
	}

	observers := []woodtype.Observer{collector.Observer(), eventbus.Bridge(a.bus, cfg.Telemetry.ServiceName)}

	if cfg.Storage.Enabled {
		if a.store, err = storage.NewSnapshotStore(cfg.Storage.Path); err != nil {
			return nil, err
		}
		observers = append(observers, a.store.Observer())
	}

	if cfg.Cache.RedisURL != "" {
		a.mirror, err = cache.NewSnapshotMirror(cache.MirrorConfig{
			RedisURL:      cfg.Cache.RedisURL,
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
			Key:           cfg.Cache.Key,
			TTL:           cfg.Cache.TTL,
		})
		if err != nil {
			return nil, err
		}
		observers = append(observers, a.mirror.Observer())
	}

	a.Registry = woodtype.NewRegistry(
		woodtype.WithClassifier(classifier),
		woodtype.WithLogger(a.logger),
		woodtype.WithObserver(observers...),
	)
	a.Builtins = RegisterBuiltins(a.Registry, a.logger)

	secret, err := cfg.Auth.Secret()
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		a.logger.Warn("⚠️ jwt_secret не задан: токены действительны только до перезапуска")
	}

	a.rest, err = api.NewRestServer(api.Config{
		Port:       fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Registry:   a.Registry,
		Tokens:     tokens,
		Namespace:  cfg.Blocks.Namespace,
		Source:     cfg.Telemetry.ServiceName,
		Registerer: a.Prom,
		Gatherer:   a.Prom,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// openBus подключает шину: пустой url означает in-memory шину
func (a *App) openBus() error {
	if a.cfg.EventBus.URL == "" {
		a.bus = eventbus.NewMemoryBus(a.cfg.EventBus.Buffer)
	} else {
		js, err := eventbus.NewJetStreamBus(a.cfg.EventBus.URL, a.cfg.EventBus.Stream, a.cfg.EventBus.RetentionDuration())
		if err != nil {
			return err
		}
		a.bus = js
	}
	eventbus.Init(a.bus)

	var err error

	if a.busListener, err = eventbus.StartLoggingListener(a.bus); err != nil {
		return err
	}
	a.busExporter, err = metrics.NewBusExporter(a.bus, a.Prom, 0)
	return err
}

// Bootstrap восстанавливает реестр из хранилища и загружает паки блоков.
// Отсутствующий каталог блоков не считается ошибкой.
func (a *App) Bootstrap(ctx context.Context) (blocksource.ScanResult, error) {
	if a.store != nil && a.cfg.Storage.ReplayOnStart {
		if _, err := a.store.Replay(a.Registry); err != nil {
			return blocksource.ScanResult{}, fmt.Errorf("восстановление из %s: %w", a.store.Path(), err)
		}
	}

	defs, err := blocksource.LoadDir(ctx, a.cfg.Blocks.Dir)
	if errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("⚠️ Каталог блоков %s не найден, пропускаем загрузку", a.cfg.Blocks.Dir)
		return blocksource.ScanResult{}, nil
	}
	if err != nil {
		return blocksource.ScanResult{}, err
	}

	res, err := blocksource.Scan(ctx, a.Registry, defs, a.cfg.Blocks.Namespace)
	if err != nil {
		return res, err
	}
	a.logger.Info("📦 Загружено %d блоков: %d классифицировано, %d без роли, %d отклонено; типов дерева: %d",
		res.Total, res.Classified, res.Unclassified, res.Rejected, a.Registry.Len())
	return res, nil
}

// Start запускает HTTP-интерфейсы и экспорт метрик шины.
// Ошибка REST сервера приходит в возвращаемый канал.
func (a *App) Start() <-chan error {
	errCh := make(chan error, 1)
	a.busExporter.Start()
	a.metricsSrv = metrics.Serve(fmt.Sprintf(":%d", a.cfg.Server.GetMetricsPort()), a.Prom)
	go func() {
		if err := a.rest.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown останавливает компоненты в обратном порядке. Безопасен для
// частично собранного App.
func (a *App) Shutdown(ctx context.Context) {
	if a.rest != nil {
		if err := a.rest.Stop(ctx); err != nil {
			a.logger.Error("❌ Ошибка остановки REST API: %v", err)
		}
	}
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.busExporter != nil {
		a.busExporter.Stop()
	}
	if a.busListener != nil {
		a.busListener.Unsubscribe()
	}
	if a.bus != nil {
		eventbus.Init(nil)
		if err := a.bus.Close(); err != nil {
			a.logger.Error("❌ Ошибка закрытия шины: %v", err)
		}
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Error("❌ Ошибка закрытия Redis: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("❌ Ошибка закрытия хранилища: %v", err)
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry(ctx); err != nil {
			a.logger.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
		}
	}
}
