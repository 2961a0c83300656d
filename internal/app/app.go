// Package app は設定からオブジェクトを組み立てて起動する。
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog/internal/config"
	"catalog/internal/dispatch"
	"catalog/internal/handler"
	"catalog/internal/infra/db"
	"catalog/internal/infra/memory"
	infraRepo "catalog/internal/infra/repository"
	"catalog/internal/projection"
	repo "catalog/internal/repository"
	"catalog/internal/server"
	"catalog/internal/usecase"
	"catalog/internal/validator"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// relay が読む outbox。health でも件数を見る
type OutboxStore interface {
	dispatch.OutboxStore
	handler.OutboxCounter
}

// 読み取りストア（クエリ + 投影）
type ReadStore interface {
	repo.ProductReadRepository
	repo.ProductProjectionRepository
}

// Stores は保存先ひとそろい。postgres と memory で差し替える。
type Stores struct {
	Tx          repo.TransactionManager
	Skus        validator.SkuLookup
	Source      repo.ProductSource
	Outbox      OutboxStore
	DeadLetters dispatch.DeadLetterSink
	Read        ReadStore
	Close       func() error
}

// プロセス内のストア
func MemoryStores() Stores {
	w := memory.NewWriteStore()
	return Stores{
		Tx:          w,
		Skus:        w.Products(),
		Source:      w.Products(),
		Outbox:      w.Outbox(),
		DeadLetters: w.DeadLetters(),
		Read:        memory.NewReadStore(),
		Close:       func() error { return nil },
	}
}

// 書き込み/読み取りの2つのDBに接続してマイグレーションする
func PostgresStores(cfg config.Config, logger *zap.Logger) (Stores, error) {
	pool := db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxOpenConns / 2,
		ConnMaxLifetime: 30 * time.Minute,
	}

	writeDB, err := db.Connect(cfg.WriteDSN(), pool, logger.Named("write_db"))
	if err != nil {
		return Stores{}, fmt.Errorf("connect write store: %w", err)
	}
	if err := db.MigrateWrite(writeDB); err != nil {
		_ = db.Close(writeDB)
		return Stores{}, fmt.Errorf("migrate write store: %w", err)
	}

	readDB, err := db.Connect(cfg.ReadDSN(), pool, logger.Named("read_db"))
	if err != nil {
		_ = db.Close(writeDB)
		return Stores{}, fmt.Errorf("connect read store: %w", err)
	}
	if err := db.MigrateRead(readDB); err != nil {
		_ = db.Close(writeDB)
		_ = db.Close(readDB)
		return Stores{}, fmt.Errorf("migrate read store: %w", err)
	}

	products := infraRepo.NewProductGormRepository(writeDB)
	return Stores{
		Tx:          infraRepo.NewTxManagerGorm(writeDB),
		Skus:        products,
		Source:      products,
		Outbox:      infraRepo.NewOutboxGormRepository(writeDB),
		DeadLetters: infraRepo.NewDeadLetterGormRepository(writeDB),
		Read:        infraRepo.NewProductReadGormRepository(readDB),
		Close: func() error {
			return errors.Join(db.Close(writeDB), db.Close(readDB))
		},
	}, nil
}

// App は組み立て済みの部品
type App struct {
	cfg    config.Config
	logger *zap.Logger
	stores Stores

	Commands    *usecase.ProductCommandUsecase
	Queries     *usecase.ProductQueryUsecase
	DeadLetters *usecase.DeadLetterUsecase
	Dispatcher  *dispatch.Dispatcher
	Relay       *dispatch.Relay
	Echo        *echo.Echo
}

// 設定の CATALOG_STORE でストアを選んで組み立てる
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	var (
		st  Stores
		err error
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory stores; data is lost on restart")
		st = MemoryStores()
	default:
		st, err = PostgresStores(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	return Build(cfg, st, logger)
}

// Build は渡されたストアで配線する
func Build(cfg config.Config, st Stores, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold, err := cfg.ActiveThreshold()
	if err != nil {
		return nil, err
	}

	idGen := &uuidGenerator{}
	clock := &realClock{}

	// 読み取り側
	registry := dispatch.NewRegistry()
	projection.NewProjector(st.Read, st.Source, logger).Register(registry)

	dispatcher := dispatch.New(registry, st.DeadLetters, logger,
		dispatch.WithWorkers(cfg.DispatchWorkers),
		dispatch.WithQueueBuffer(cfg.DispatchQueueBuffer),
	)
	relay := dispatch.NewRelay(st.Outbox, dispatcher, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)

	// 書き込み側。コミット後に relay を起こす
	commands := usecase.NewProductCommandUsecase(
		st.Tx,
		validator.NewProductValidator(st.Skus),
		idGen,
		clock,
		relay,
		cfg.BulkImportChunkSize,
		logger,
	)
	queries := usecase.NewProductQueryUsecase(st.Read, threshold, logger)
	deadLetters := usecase.NewDeadLetterUsecase(st.Tx, idGen, clock, relay, logger)

	e := server.New(cfg.JWTSecret, server.Handlers{
		Products:        handler.NewProductHandler(queries),
		ProductCommands: handler.NewProductCommandHandler(commands),
		DeadLetters:     handler.NewDeadLetterHandler(deadLetters),
		Health:          handler.NewHealthHandler(st.Outbox, dispatcher.Outstanding),
	}, logger)

	return &App{
		cfg:         cfg,
		logger:      logger,
		stores:      st,
		Commands:    commands,
		Queries:     queries,
		DeadLetters: deadLetters,
		Dispatcher:  dispatcher,
		Relay:       relay,
		Echo:        e,
	}, nil
}

// Run は ctx が切れるまで dispatcher / relay / HTTP を動かす。
// 止めるときは HTTP → relay → dispatcher の順。
func (a *App) Run(ctx context.Context) error {
	// dispatcher は Drain するまで ctx と切り離す
	a.Dispatcher.Start(context.WithoutCancel(ctx))
	defer a.Dispatcher.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Relay.Run(gctx)
	})
	g.Go(func() error {
		addr := ":" + a.cfg.Port
		a.logger.Info("http server starting", zap.String("addr", addr), zap.String("store", a.cfg.Store))
		return server.Start(gctx, a.Echo, addr, a.cfg.ShutdownTimeout)
	})

	err := g.Wait()

	// 残りの配送を待てるだけ待つ。終わらなかった分は outbox に残る
	dctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if !a.Dispatcher.Drain(dctx) {
		a.logger.Warn("dispatcher stopped with outstanding deliveries", zap.Int64("outstanding", a.Dispatcher.Outstanding()))
	}
	return err
}

func (a *App) Close() error {
	if a.stores.Close == nil {
		return nil
	}
	return a.stores.Close()
}
