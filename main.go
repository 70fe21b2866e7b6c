package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"reportmap/common"
	"reportmap/config"
	"reportmap/database"
	"reportmap/handlers"
	"reportmap/map_aggr"
	"reportmap/metrics"
	"reportmap/rabbitmq"
	"reportmap/service"
	ws "reportmap/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

type store interface {
	service.Store
	InitSchema(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	// Load configuration
	cfg := config.Load()
	if err := common.SetupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("Invalid logging configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting the report map service...")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open the report store: %v", err)
	}
	defer closeStore()

	metrics.Register()

	opts := service.Options{
		RadiusMeters: cfg.DuplicateRadiusMeters,
		StoreTimeout: cfg.StoreTimeout,
	}
	if cfg.AMQPURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPReportRoutingKey)
		if err != nil {
			log.Fatalf("Failed to create RabbitMQ publisher: %v", err)
		}
		defer pub.Close()
		opts.Publisher = pub
	} else {
		log.Info("AMQP_URL is empty, report publishing disabled")
	}

	svc := service.NewReportService(st, newDispatcher(cfg), opts)
	hub := ws.NewHub(svc)
	svc.SetNotifier(hub)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(handlers.NewHandlers(svc, hub)),
	}
	go func() {
		log.Infof("Report map service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("Server exited")
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	dbOpts := []database.Option{database.WithMaxAttempts(cfg.InsertMaxAttempts)}

	var (
		db  *sql.DB
		st  store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("Using the in-memory report store; reports are lost on restart")
		return memoryStore{database.NewMemoryStore(dbOpts...)}, func() {}, nil
	case config.DriverSQLite:
		if db, err = common.SQLiteConnect(ctx, cfg.SQLitePath); err != nil {
			return nil, nil, err
		}
		st = database.NewSQLiteStore(db, dbOpts...)
	default:
		if db, err = common.DBConnect(ctx, cfg); err != nil {
			return nil, nil, err
		}
		st = database.NewMySQLStore(db, dbOpts...)
	}

	if err := st.InitSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, func() { db.Close() }, nil
}

// memoryStore has no schema to create.
type memoryStore struct {
	*database.MemoryStore
}

func (memoryStore) InitSchema(context.Context) error {
	return nil
}

func newDispatcher(cfg *config.Config) *map_aggr.Dispatcher {
	heatmap := map_aggr.DefaultHeatmapConfig()
	heatmap.Radius = cfg.HeatmapRadius
	heatmap.Blur = cfg.HeatmapBlur
	return &map_aggr.Dispatcher{
		Thresholds: map_aggr.Thresholds{
			HeatmapMaxZoom: cfg.HeatmapMaxZoom,
			ClusterMaxZoom: cfg.ClusterMaxZoom,
		},
		Clusterer: map_aggr.Clusterer{
			MaxClusterRadiusPixels:  cfg.ClusterRadiusPixels,
			DisableClusteringAtZoom: cfg.DisableClusteringAtZoom,
		},
		Heatmap: map_aggr.NewHeatmapAggregator(heatmap),
	}
}
