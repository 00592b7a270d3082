package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Nzyazin/payagent/internal/core/automation"
	"github.com/Nzyazin/payagent/internal/core/automation/browser"
	"github.com/Nzyazin/payagent/internal/core/extraction"
	"github.com/Nzyazin/payagent/internal/core/handshake"
	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/notify"
	"github.com/Nzyazin/payagent/internal/core/queue"
	"github.com/Nzyazin/payagent/internal/core/repository/postgres"
	"github.com/Nzyazin/payagent/internal/core/usecase"
	"github.com/Nzyazin/payagent/pkg/config"
	"github.com/Nzyazin/payagent/pkg/postgresdb"
)

func main() {
	log, cleanup := logger.NewLogger()
	defer cleanup()

	if err := run(log); err != nil {
		log.Error("Worker failed", logger.ErrorField("error", err))
		cleanup()
		os.Exit(1)
	}
	log.Info("Worker exited properly")
}

func run(log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgDB, err := config.LoadConfigDB()
	if err != nil {
		return err
	}
	cfgBank, err := config.LoadConfigBank()
	if err != nil {
		return err
	}
	cfgHandshake, err := config.LoadConfigHandshake()
	if err != nil {
		return err
	}
	cfgRabbit, err := config.LoadConfigRabbit()
	if err != nil {
		return err
	}
	cfgWorker, err := config.LoadConfigWorker()
	if err != nil {
		return err
	}
	cfgServer, err := config.LoadConfigServer()
	if err != nil {
		return err
	}
	policy, err := usecase.ParseBatchPolicy(cfgWorker.BatchPolicy)
	if err != nil {
		return err
	}

	db, err := postgresdb.NewPostgresDB(ctx, *cfgDB, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db.DB); err != nil {
		return err
	}

	rdb, err := handshake.DialRedis(ctx, cfgHandshake.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	rabbit := queue.NewRabbitMQ(cfgRabbit.URL, cfgRabbit.Queue)
	if err := rabbit.Connect(); err != nil {
		return err
	}
	defer rabbit.Close()

	repo := postgres.NewPostgresTransactionRepo(db.DB, log)
	relay := handshake.NewRelay(handshake.NewRedisStore(rdb), handshake.Config{
		PollInterval: cfgHandshake.PollInterval,
		Deadline:     cfgHandshake.Deadline,
	}, logger.Named(log, "handshake"))

	launcher := browser.NewLauncher(browser.Config{
		RemoteURL: cfgBank.RemoteURL,
		ExecPath:  cfgBank.ChromePath,
		Headless:  cfgBank.Headless,
	}, logger.Named(log, "browser"))

	if policy == usecase.BatchFastTrack {
		log.Warn("Batch fast-track is enabled: only the first transaction of a batch is verified by the bank")
	}

	payments := usecase.NewPaymentUsecase(repo, launcher, relay, usecase.PaymentOptions{
		Bank:           *cfgBank,
		BatchPolicy:    policy,
		FastTrackDelay: cfgWorker.FastTrackDelay,
		ArtifactDir:    cfgWorker.ArtifactDir,
		Snapshot:       automation.NewLiveFeed(cfgWorker.LiveFeedPath),
	}, logger.Named(log, "payment"))

	ingest := usecase.NewIngestUsecase(repo,
		extraction.NewClient(cfgServer.ExtractionURL, log),
		notify.NewWebhook(cfgServer.NotifyURL, log),
		queue.NewPublisher(rabbit.Channel, cfgRabbit.Queue, log),
		logger.Named(log, "ingest"))

	runner := queue.NewRunner(repo, ingest, payments, log)
	consumer := queue.NewConsumer(rabbit.Channel, cfgRabbit.Queue, cfgWorker.Concurrency, logger.Named(log, "consumer"))

	log.Info("Worker started",
		logger.StringField("queue", cfgRabbit.Queue),
		logger.IntField("concurrency", cfgWorker.Concurrency),
		logger.StringField("batch_policy", string(policy)))

	return consumer.Run(ctx, runner)
}
