package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lumina-knowledge-base/internal/ai"
	appsvc "lumina-knowledge-base/internal/app"
	"lumina-knowledge-base/internal/cache"
	"lumina-knowledge-base/internal/config"
	"lumina-knowledge-base/internal/metrics"
	"lumina-knowledge-base/internal/model"
	"lumina-knowledge-base/internal/pkg/textextract"
	"lumina-knowledge-base/internal/platform/filestore"
	"lumina-knowledge-base/internal/platform/logger"
	mysqlClient "lumina-knowledge-base/internal/platform/mysql"
	rabbitmqClient "lumina-knowledge-base/internal/platform/rabbitmq"
	redisClient "lumina-knowledge-base/internal/platform/redis"
	"lumina-knowledge-base/internal/repository"
	"lumina-knowledge-base/internal/worker"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	MySQL    *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Registry *prometheus.Registry

	AuthService     *appsvc.AuthService
	DocumentService *appsvc.DocumentService
	SearchService   *appsvc.SearchService

	IndexPublisher *rabbitmqClient.IndexTaskPublisher
	IndexWorker    *worker.IndexWorker

	StartedAt time.Time
}

// New wires every dependency and starts the index worker. Anything opened
// before a failure is closed again.
func New(ctx context.Context) (_ *App, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.MySQL, err = mysqlClient.New(ctx, mysqlClient.Options{
		DSN:          cfg.MySQLDSN(),
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		SlowQuery:    time.Duration(cfg.MySQL.SlowQueryThreshold) * time.Millisecond,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	if err := a.MySQL.AutoMigrate(&model.User{}, &model.Document{}, &model.Chunk{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IndexQueue)
	if err != nil {
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.Registry)

	files, err := filestore.NewLocal(cfg.Storage.UploadDir)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(a.MySQL)
	docRepo := repository.NewDocumentRepository(a.MySQL)
	chunkRepo := repository.NewChunkRepository(a.MySQL)

	chunker, err := appsvc.NewChunker(cfg.Chunking.TargetSize, cfg.Chunking.Overlap, cfg.Chunking.PageGroupSize)
	if err != nil {
		return nil, err
	}

	embeddingClient := ai.NewOpenAICompatibleClient(&http.Client{
		Timeout: time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})
	embedder := ai.NewEmbedder(embeddingClient, ai.EmbeddingConfig{
		Provider:  cfg.Embedding.Provider,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		ModeParam: cfg.Embedding.ModeParam,
	}, ai.EmbedderOptions{
		BatchSize:         cfg.Embedding.BatchSize,
		MaxInputChars:     cfg.Embedding.MaxInputChars,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, log, m)

	generationClient := ai.NewOpenAICompatibleClient(&http.Client{
		Timeout: time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
	})
	synthesizer := appsvc.NewSynthesizer(generationClient, ai.ChatConfig{
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
	}, log)

	retriever := appsvc.NewRetriever(docRepo, chunkRepo, embedder, cfg.Retrieval.RelevanceThreshold, log, m)
	indexer := appsvc.NewIndexer(docRepo, files, textextract.New(log), chunker, embedder, log, m)

	a.IndexPublisher = rabbitmqClient.NewIndexTaskPublisher(a.MQConn, cfg.RabbitMQ.IndexQueue)
	a.AuthService = appsvc.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.JWTExpiration(), log)
	a.DocumentService = appsvc.NewDocumentService(docRepo, files, a.IndexPublisher, appsvc.DocumentServiceOptions{
		MaxUploadBytes:    cfg.Storage.MaxUploadBytes,
		AllowedExtensions: cfg.Storage.AllowedExtensions,
	}, log)
	a.SearchService = appsvc.NewSearchService(retriever, synthesizer, cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK, log, m)

	lock := cache.NewIndexLock(a.Redis, time.Duration(cfg.Redis.IndexLockTTLSeconds)*time.Second)
	a.IndexWorker = worker.NewIndexWorker(a.MQConn, indexer, lock, worker.Options{
		QueueName:      cfg.RabbitMQ.IndexQueue,
		Workers:        cfg.RabbitMQ.IndexWorkers,
		Prefetch:       cfg.RabbitMQ.Prefetch,
		LockRetryDelay: time.Duration(cfg.RabbitMQ.LockRetrySeconds) * time.Second,
	}, log)
	if err := a.IndexWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start index worker failed: %w", err)
	}

	return a, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IndexWorker != nil {
		a.IndexWorker.Close()
	}
	if a.IndexPublisher != nil {
		if err := a.IndexPublisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
