package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/colonylab/nestfeed/internal/api"
	"github.com/colonylab/nestfeed/internal/app"
	"github.com/colonylab/nestfeed/internal/app/maintenance"
	"github.com/colonylab/nestfeed/internal/database"
	"github.com/colonylab/nestfeed/internal/eligibility"
	"github.com/colonylab/nestfeed/internal/feed"
	"github.com/colonylab/nestfeed/internal/graph"
	"github.com/colonylab/nestfeed/internal/readstate"
	"github.com/colonylab/nestfeed/internal/realtime"
	"github.com/colonylab/nestfeed/pkg/logger"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Reads   *readstate.GormStore
	Graph   *graph.Client
	Oracle  *eligibility.Oracle
	Cache   *feed.Cache
	Service *feed.Service
	Hub     *realtime.Hub
	Streams *realtime.StreamManager
	Syncer  *maintenance.Syncer
	Router  *gin.Engine
}

// bootstrapRuntime initialises storage, the feed engine and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Reads, err = readstate.NewGormStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise read-state store: %w", err)
	}

	stack.Graph, err = graph.NewClient(cfg.Graph.Build())
	if err != nil {
		return nil, fmt.Errorf("initialise graph client: %w", err)
	}

	chain, err := eligibility.NewStaticReaderFromFile(cfg.Chain.FixturePath)
	if err != nil {
		return nil, fmt.Errorf("load chain fixtures: %w", err)
	}
	stack.Oracle = eligibility.NewOracle(chain, stack.Graph)

	stack.Cache = feed.NewCache(stack.Graph, stack.Oracle, feed.WithEpoch(cfg.Feed.Epoch))
	stack.Cache.Initialize(ctx)

	stack.Service = feed.NewService(stack.Cache, stack.Oracle, stack.Reads,
		feed.WithViewOptions(feed.WithViewLimit(cfg.Feed.AccountLimit)))

	stack.Hub = realtime.NewHub()
	streamOpts := cfg.Feed.StreamOptions()
	stack.Streams = realtime.NewStreamManager(stack.Hub, func(ctx context.Context, account string, hook feed.StreamHook) (*feed.Stream, error) {
		return feed.NewStream(ctx, account, stack.Cache, stack.Oracle, stack.Reads, hook, streamOpts)
	})

	stack.Syncer = maintenance.NewSyncer(stack.Cache, stack.Reads)
	if err := stack.Syncer.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, stack.Service, stack.Hub, stack.Streams, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown tears the stack down in reverse dependency order.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Streams != nil {
		s.Streams.Shutdown()
	}

	if s.Syncer != nil {
		stopCtx := s.Syncer.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		if err := s.Syncer.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown pass failed", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Build()

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
