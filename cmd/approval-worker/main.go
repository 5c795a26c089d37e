package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"doccontrol/portal-backend/internal/config"
	"doccontrol/portal-backend/internal/database"
	"doccontrol/portal-backend/internal/documents"
	"doccontrol/portal-backend/internal/logging"
)

// DriftWorker runs the approval drift check on a cron schedule
type DriftWorker struct {
	checker  *documents.DriftChecker
	cron     *cron.Cron
	logger   *zap.Logger
	schedule string
}

func NewDriftWorker(checker *documents.DriftChecker, schedule string, logger *zap.Logger) *DriftWorker {
	return &DriftWorker{
		checker:  checker,
		cron:     newCron(logger),
		logger:   logger,
		schedule: schedule,
	}
}

// newCron builds a seconds-resolution scheduler whose jobs never overlap: a
// tick that fires while the previous check is still running is skipped.
func newCron(logger *zap.Logger) *cron.Cron {
	l := cronLogger{logger: logger}
	return cron.New(
		cron.WithSeconds(),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

// Start schedules the check and runs it once immediately
func (w *DriftWorker) Start(ctx context.Context) error {
	id, err := w.cron.AddFunc(w.schedule, func() { w.runOnce(ctx) })
	if err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("Approval drift worker started", zap.String("schedule", w.schedule))

	// the startup run shares the skip guard with scheduled ticks
	w.cron.Entry(id).WrappedJob.Run()
	return nil
}

// Stop waits for a running check to finish
func (w *DriftWorker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("Approval drift worker stopped")
}

func (w *DriftWorker) runOnce(ctx context.Context) {
	if _, err := w.checker.Run(ctx); err != nil {
		w.logger.Error("Approval drift check failed", zap.Error(err))
	}
}

// cronLogger routes scheduler messages to zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := documents.NewDriftChecker(documents.NewRepository(db.SQL), logger, cfg.Approvals.DriftBatchSize)
	worker := NewDriftWorker(checker, cfg.Approvals.DriftCheckCron, logger)
	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Failed to start drift worker", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	worker.Stop()
}
