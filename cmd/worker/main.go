package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/broadcast"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/classifier"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/config"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/email"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/memory"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-sensitivity-service/internal/infra/minio"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/review"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/websocket"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/worker"
	"github.com/fiapx/fiapx-sensitivity-service/internal/usecase"
	"github.com/fiapx/fiapx-sensitivity-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	storeBackendMemory = "memory"
	drainTimeout       = 2 * time.Minute
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting " + tracing.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Job store
	var repo port.JobRepository
	if cfg.StoreBackend == storeBackendMemory {
		log.Warn("using in-memory job store, records are lost on restart")
		repo = memory.NewJobRepository()
	} else {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		fatalOnErr(err, "connect to postgres")
		defer dbPool.Close()

		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			log.Warn("migration warning", zap.Error(err))
		}
		repo = postgres.NewJobRepository(dbPool)
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		FrameBucket:  cfg.MinIOFrameBucket,
		ReviewBucket: cfg.MinIOReviewBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// Pipeline workers
	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, log)
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	pool.Start(poolCtx)

	// Consumer owns the connection; publishers share it.
	var dispatch *usecase.DispatchVideoUseCase
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQProcessingQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, func(ctx context.Context, body []byte) error {
		return dispatch.Execute(ctx, body)
	}, log)
	fatalOnErr(err, "create consumer")

	pub, err := rabbitmq.NewPublisher(consumer.Conn(), cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Progress observers
	hub := broadcast.NewHub(0, log)
	broadcaster := broadcast.Fanout{hub}
	var relay *rabbitmq.ProgressRelay
	if cfg.RabbitMQRelayProgress {
		relay = rabbitmq.NewProgressRelay(pub, log)
		broadcaster = append(broadcaster, relay)
	}

	// Analysis adapters
	availability := classifier.AvailabilityFor(cfg.ClassifierURL, cfg.ClassifierToken)
	vocabulary := vocabularyFromConfig(cfg)
	log.Info("classifier configured",
		zap.String("availability", availability.String()),
		zap.String("vocabulary_version", vocabulary.Version),
	)

	prober := ffmpeg.NewProber(cfg.FFprobeTimeout, log)
	sampler := ffmpeg.NewSampler(ffmpeg.SamplerConfig{
		Root:    cfg.FramesDir,
		Width:   cfg.FrameWidth,
		Height:  cfg.FrameHeight,
		Timeout: cfg.FFmpegTimeout,
	}, storage, log)
	frameClassifier := classifier.NewHTTPClassifier(classifier.HTTPConfig{
		Endpoint: cfg.ClassifierURL,
		Token:    cfg.ClassifierToken,
		Timeout:  cfg.ClassifierTimeout,
	}, vocabulary, log)
	mock := classifier.NewMockClassifier(uint64(time.Now().UnixNano()))

	var reviewer port.ReviewPublisher
	if cfg.ReviewBundles {
		reviewer = review.NewBundler(storage, filepath.Join(cfg.TempDir, "review"), log)
	}

	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use cases
	process := usecase.NewProcessVideoUseCase(
		repo, prober, sampler, frameClassifier, mock,
		broadcaster, reviewer, log,
		usecase.ProcessVideoConfig{
			FrameCount:        cfg.FrameCount,
			ClassifierDelay:   cfg.ClassifierDelay,
			Availability:      availability,
			VocabularyVersion: vocabulary.Version,
		},
	)
	dispatch = usecase.NewDispatchVideoUseCase(
		repo, storage, pool, process,
		broadcaster, dlqPub, notifier,
		log,
		usecase.DispatchVideoConfig{TempDir: cfg.TempDir},
	)

	// HTTP: metrics, health and the progress websocket
	httpSrv := metrics.StartServer(ctx, cfg.HTTPPort, log, map[string]http.Handler{
		websocket.Route: websocket.NewGateway(hub, log),
	})

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info(tracing.ServiceName+" started, consuming messages", zap.String("store", cfg.StoreBackend))

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Let queued jobs finish before tearing down their dependencies.
	drained := make(chan struct{})
	go func() {
		pool.Close()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warn("worker pool did not drain in time, cancelling running jobs")
		poolCancel()
		<-drained
	}
	if relay != nil {
		relay.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info(tracing.ServiceName + " stopped")
}

func vocabularyFromConfig(cfg *config.Config) classifier.Vocabulary {
	v := classifier.DefaultVocabulary()
	if cfg.ClassifierVocabVersion != "" {
		v.Version = cfg.ClassifierVocabVersion
	}
	if len(cfg.ClassifierUnsafeLabels) > 0 {
		v.Unsafe = cfg.ClassifierUnsafeLabels
	}
	if len(cfg.ClassifierSafeLabels) > 0 {
		v.Safe = cfg.ClassifierSafeLabels
	}
	if len(cfg.ClassifierAmbiguousLabels) > 0 {
		v.Ambiguous = cfg.ClassifierAmbiguousLabels
	}
	return v
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
