package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"petshop/internal/api"
	"petshop/internal/booking"
	"petshop/internal/cart"
	"petshop/internal/catalog"
	"petshop/internal/config"
	"petshop/internal/database"
	"petshop/internal/domain"
	"petshop/internal/events"
	"petshop/internal/logging"
	"petshop/internal/metrics"
	"petshop/internal/models"
	"petshop/internal/occupancy"
	"petshop/internal/repository"
	"petshop/internal/session"
	"petshop/internal/slots"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type options struct {
	date      string
	serviceID int64
	book      string
	name      string
	email     string
	notes     string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var opts options
	flag.StringVar(&opts.date, "date", "", "booking date YYYY-MM-DD (default tomorrow)")
	flag.Int64Var(&opts.serviceID, "service", 0, "service id (default first service)")
	flag.StringVar(&opts.book, "book", "", "slot label HH:MM to book")
	flag.StringVar(&opts.name, "name", "", "customer name for -book")
	flag.StringVar(&opts.email, "email", "", "customer email for -book")
	flag.StringVar(&opts.notes, "notes", "", "booking observations")
	flag.Parse()

	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	defer (func() { _ = repository.Close(redisClient) })()

	store, storeCloser, err := initStore(cfg, redisClient, &logger)
	if err != nil {
		return err
	}
	if storeCloser != nil {
		defer storeCloser.Close()
	}

	bus := events.NewEventBus()
	subscribeEventLog(bus, &logger)

	client := api.NewClient(cfg.API, logging.Component(&logger, "api"))
	if redisClient != nil {
		client.UseRedisCache(redisClient, cfg.API.CacheTTL)
	}

	services, err := initCatalog(cfg, client, &logger)
	if err != nil {
		return err
	}

	carts, err := cart.NewStore(ctx, store, bus, logging.Component(&logger, "cart"))
	if err != nil {
		return err
	}

	sessions := session.NewManager(client, store, carts, bus, logging.Component(&logger, "session"))
	if err := sessions.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("restore session")
	}
	if sessions.Current().Authenticated() {
		if err := sessions.Verify(ctx); err != nil {
			logger.Warn().Err(err).Msg("stored session rejected")
		}
	}

	policy, err := slots.PolicyFromConfig(cfg.Booking)
	if err != nil {
		return err
	}

	tracker := occupancy.NewTracker(client, cfg.Booking.Tolerance, policy.Location, logging.Component(&logger, "occupancy"))
	orch := booking.NewOrchestrator(tracker, client, services, sessions, bus, policy, logging.Component(&logger, "booking"))

	startMetrics(ctx, cfg, &logger)

	if err := showSlots(ctx, orch, services, policy, opts); err != nil {
		return err
	}
	fmt.Printf("cart: %d item(s), total %.2f\n", carts.TotalItems(), carts.TotalPrice())

	if opts.book != "" {
		if err := bookSlot(ctx, orch, policy, opts); err != nil {
			return err
		}
	}

	if cfg.Monitoring.PrometheusEnabled {
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")
	}
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "engine-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (domain.KeyValueStore, io.Closer, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := database.NewDB(cfg.Storage.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Storage.Path).Msg("init database")
			return nil, nil, err
		}
		return db, db, nil
	case config.StorageRedis:
		memory := repository.NewMemoryStore()
		if redisClient == nil {
			logger.Warn().Msg("redis storage requested but unavailable, state is kept in memory")
			return memory, nil, nil
		}
		return repository.NewFailoverStore(repository.NewRedisStore(redisClient, 0), memory, logger), nil, nil
	default:
		return repository.NewMemoryStore(), nil, nil
	}
}

func initCatalog(cfg *config.Config, client *api.Client, logger *zerolog.Logger) (*catalog.Catalog, error) {
	var fallback []models.Service
	if cfg.Catalog.FallbackPath != "" {
		loaded, err := catalog.LoadFallbackFile(cfg.Catalog.FallbackPath)
		if err != nil {
			logger.Error().Err(err).Str("catalog_path", cfg.Catalog.FallbackPath).Msg("load fallback catalog")
			return nil, err
		}
		fallback = loaded
	}
	return catalog.New(client, fallback, logging.Component(logger, "catalog")), nil
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	l := logging.Component(logger, "events")
	bus.OnError(func(event *events.Event, err error) {
		l.Error().Err(err).Str("event", event.Type).Msg("event handler failed")
	})
	for _, typ := range []string{
		events.EventBookingConfirmed,
		events.EventBookingConflict,
		events.EventBookingFailed,
		events.EventCartChanged,
		events.EventSessionClosed,
	} {
		bus.Subscribe(typ, func(event *events.Event) error {
			l.Debug().Str("event", event.Type).RawJSON("payload", event.Payload).Msg("event")
			return nil
		})
	}
}

func showSlots(ctx context.Context, orch *booking.Orchestrator, services *catalog.Catalog, policy slots.Policy, opts options) error {
	date := time.Now().In(policy.Location).AddDate(0, 0, 1)
	if opts.date != "" {
		parsed, err := time.ParseInLocation(models.DateLayout, opts.date, policy.Location)
		if err != nil {
			return fmt.Errorf("parse -date: %w", err)
		}
		date = parsed
	}

	serviceID := opts.serviceID
	if serviceID == 0 {
		def, ok := services.Default(ctx)
		if !ok {
			return fmt.Errorf("no services available")
		}
		serviceID = def.ID
	}

	if err := orch.Load(ctx, date, serviceID); err != nil {
		return err
	}

	fmt.Printf("slots for %s (service %d):\n", date.Format(models.DateLayout), serviceID)
	for _, s := range orch.Slots() {
		mark := "free"
		if s.IsOccupied {
			mark = "taken"
		}
		fmt.Printf("  %s-%s  %s\n", s.Label, s.EndAt.In(policy.Location).Format(models.SlotLabelLayout), mark)
	}
	return nil
}

func bookSlot(ctx context.Context, orch *booking.Orchestrator, policy slots.Policy, opts options) error {
	var start time.Time
	for _, s := range orch.Slots() {
		if s.Label == opts.book {
			start = s.StartAt
			break
		}
	}
	if start.IsZero() {
		return fmt.Errorf("no slot labelled %s", opts.book)
	}
	if err := orch.Select(start); err != nil {
		return err
	}

	conf, err := orch.Submit(ctx, booking.Form{
		CustomerName:  opts.name,
		CustomerEmail: opts.email,
		Observations:  opts.notes,
	})
	if err != nil {
		return err
	}
	fmt.Printf("booked %s at %s (%s, %.2f)\n", conf.ServiceName, booking.FormatLocal(conf.StartAt, policy.Location), conf.Status, conf.TotalPrice)
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
