package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/diarygraph/internal/queue"
	"github.com/OFFIS-RIT/diarygraph/internal/storage"
	"github.com/OFFIS-RIT/diarygraph/internal/util"
	"github.com/OFFIS-RIT/diarygraph/pkg/ai"
	"github.com/OFFIS-RIT/diarygraph/pkg/ai/cache"
	oai "github.com/OFFIS-RIT/diarygraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/diarygraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/diarygraph/pkg/graph"
	"github.com/OFFIS-RIT/diarygraph/pkg/leaselock"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger/console"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"
	graphmirror "github.com/OFFIS-RIT/diarygraph/pkg/store/neo4j"
	pgstore "github.com/OFFIS-RIT/diarygraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Could not create S3 client", "err", err)
	}

	// GraphAiClient
	adapter := util.GetEnv("AI_ADAPTER")
	parallelReq := int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15))
	dimensions := int(util.GetEnvNumeric("AI_EMBED_DIM", 0))
	timeoutMin := int(util.GetEnvNumeric("AI_TIMEOUT_MIN", 0))
	var aiClient ai.GraphAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			Dimensions:     dimensions,

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: parallelReq,
			TimeoutMin:            timeoutMin,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			Dimensions:     dimensions,

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: parallelReq,
			TimeoutMin:            timeoutMin,
		})
	}

	// Optional embedding cache
	if addr := util.GetEnv("REDIS_ADDR"); addr != "" {
		kv, closeKV, err := cache.NewRedisKV(addr)
		if err != nil {
			logger.Warn("Redis unavailable, embeddings are not cached", "addr", addr, "err", err)
		} else {
			defer closeKV()
			aiClient = cache.NewCachedClient(cache.NewCachedClientParams{
				Client:    aiClient,
				KV:        kv,
				TTL:       time.Duration(util.GetEnvNumeric("REDIS_TTL_HOURS", 24*7)) * time.Hour,
				Namespace: util.GetEnv("AI_EMBED_MODEL"),
			})
			logger.Info("Caching embeddings in redis", "addr", addr)
		}
	}

	// Init pgx client
	poolCfg, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to parse database url", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Optional graph mirror
	mirror, err := graphmirror.NewFromEnv(ctx)
	if err != nil {
		logger.Fatal("Unable to connect to neo4j", "err", err)
	}
	var storeOpts []pgstore.GraphDBStorageOption
	if mirror != nil {
		defer mirror.Close(context.Background())
		storeOpts = append(storeOpts, pgstore.WithMirror(mirror))
	}
	storeOpts = append(storeOpts, pgstore.WithMaxParallel(int(parallelReq)))

	graphClient := graph.NewGraphClient(graph.NewGraphClientParams{
		ParallelRequests: int(util.GetEnvNumeric("MERGE_PARALLEL", 10)),
		MaxRetries:       int(util.GetEnvNumeric("MERGE_RETRIES", 3)),
	})

	var discoverer ai.EdgeDiscoverer
	if util.GetEnvBool("DISCOVERY_ENABLED", true) {
		discoverer = ai.NewAIEdgeDiscoverer(ai.NewAIEdgeDiscovererParams{
			Client:          aiClient,
			MaxPromptTokens: int(util.GetEnvNumeric("DISCOVERY_MAX_TOKENS", 4000)),
			MaxRetries:      int(util.GetEnvNumeric("MERGE_RETRIES", 3)),
		})
	}

	processor := queue.NewProcessor(queue.NewProcessorParams{
		Objects: s3Client,
		Stores: func(userID string) (store.GlobalStore, error) {
			return pgstore.NewGraphDBStorageWithConnection(pgConn, aiClient, userID, storeOpts...)
		},
		Locker:     leaselock.New(pgConn),
		Graph:      graphClient,
		Discoverer: discoverer,
	})

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.SegmentQueue}); err != nil {
		logger.Fatal("Failed to setup queues", "err", err)
	}

	// One message at a time; merges of different users still serialize on
	// their own leases when several workers run.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.SegmentQueue,
		fmt.Sprintf("%s_consumer", queue.SegmentQueue),
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.SegmentQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.SegmentQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed", "queue", queue.SegmentQueue)
					stop()
					return
				}

				startTime := time.Now()
				logger.Info("Received message", "queue", queue.SegmentQueue)

				if err := processor.ProcessSegmentMessage(ctx, msg.Body); err != nil {
					logger.Error("Error processing message", "queue", queue.SegmentQueue, "err", err)
					queue.HandleProcessingError(ch, msg, queue.SegmentQueue, err)
				} else {
					if err := msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", queue.SegmentQueue)
				}

				metrics := aiClient.GetMetrics()
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
				)
				logger.Info("Processing time", "duration", formatDuration(time.Since(startTime)))
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
