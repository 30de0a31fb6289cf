// Package main 异步问答与索引工作进程入口（qa-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"video-memory-qa/internal/config"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/infrastructure/eino/callback"
	"video-memory-qa/internal/infrastructure/messaging"
	rediscache "video-memory-qa/internal/infrastructure/persistence/redis"
	"video-memory-qa/internal/wire"
	"video-memory-qa/pkg/logger"
	"video-memory-qa/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "qa-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	callback.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	streamCfg := cfg.Messaging.RedisStream
	backoff := messaging.BackoffConfig{
		Initial:    streamCfg.RetryBackoff.Initial,
		Max:        streamCfg.RetryBackoff.Max,
		Multiplier: streamCfg.RetryBackoff.Multiplier,
	}

	qaConsumer := messaging.NewConsumer(worker.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamQABatch,
		Group:         messaging.ConsumerGroupQAWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  streamCfg.BlockTimeout,
		ClaimInterval: streamCfg.ClaimInterval,
		RetryLimit:    streamCfg.RetryLimit,
		Backoff:       backoff,
	})

	qaConsumer.RegisterHandler("qa_batch", func(msgCtx context.Context, msg *messaging.Message) error {
		var payload messaging.QABatchMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		questions := make([]*entity.Question, 0, len(payload.Questions))
		for _, item := range payload.Questions {
			questions = append(questions, &entity.Question{
				ID:      item.QuestionID,
				VideoID: payload.VideoID,
				Text:    item.Text,
			})
		}

		if err := worker.QAService.AnswerVideo(msgCtx, payload.VideoID, questions); err != nil {
			return err
		}

		// 结果已更新，丢弃读穿缓存
		if err := worker.Cache.Delete(msgCtx, rediscache.BuildResultsKey(payload.VideoID)); err != nil {
			logger.Warn(msgCtx, "failed to drop results cache", "video_id", payload.VideoID, "error", err)
		}
		return nil
	})

	ingestConsumer := messaging.NewConsumer(worker.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamGraphIngest,
		Group:         messaging.ConsumerGroupGraphIngest,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  streamCfg.BlockTimeout,
		ClaimInterval: streamCfg.ClaimInterval,
		RetryLimit:    streamCfg.RetryLimit,
		Backoff:       backoff,
	})

	ingestConsumer.RegisterHandler("graph_ingest", func(msgCtx context.Context, msg *messaging.Message) error {
		var payload messaging.GraphIngestMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return worker.IngestService.IndexVideo(msgCtx, payload.VideoID)
	})

	if err := qaConsumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start qa consumer", err)
	}
	if err := ingestConsumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start ingest consumer", err)
	}

	logger.Info(ctx, "qa-worker started",
		"qa_stream", string(messaging.StreamQABatch),
		"ingest_stream", string(messaging.StreamGraphIngest),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down qa-worker...")
	qaConsumer.Stop()
	ingestConsumer.Stop()
	logger.Info(ctx, "qa-worker exited")
}

// hostnameConsumerName 生成稳定且可区分的消费者名
func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
