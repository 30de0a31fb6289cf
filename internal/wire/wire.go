//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"video-memory-qa/internal/config"
	"video-memory-qa/internal/domain/repository"
	"video-memory-qa/internal/infrastructure/llm"
	"video-memory-qa/internal/infrastructure/persistence/milvus"
	"video-memory-qa/internal/infrastructure/persistence/postgres"
	"video-memory-qa/internal/infrastructure/persistence/redis"
	"video-memory-qa/internal/interfaces/http/handler"
	"video-memory-qa/internal/interfaces/http/router"
	"video-memory-qa/internal/workflow/chain"
	workflowport "video-memory-qa/internal/workflow/port"
)

// DataSet 数据层提供者集合
var DataSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewGraphRepository,
	postgres.NewSegmentLogRepository,
	postgres.NewResultsRepository,
	wire.Bind(new(repository.GraphStore), new(*postgres.GraphRepository)),
	wire.Bind(new(repository.SegmentLogStore), new(*postgres.SegmentLogRepository)),
	wire.Bind(new(repository.ResultsStore), new(*postgres.ResultsRepository)),
	ProvideRedisClient,
	redis.NewCache,
	ProvideMessagingProducer,
	ProvideMilvusClient,
	ProvideVectorIndex,
	wire.Bind(new(repository.VectorIndex), new(*milvus.VectorIndex)),
)

// ReasoningSet 级联推理提供者集合
var ReasoningSet = wire.NewSet(
	ProvideEmbedder,
	ProvideMatcher,
	llm.NewEinoFactory,
	wire.Bind(new(workflowport.ChatModelFactory), new(*llm.EinoFactory)),
	chain.NewInterpretChain,
	chain.NewJudgeChain,
	chain.NewInspectChain,
	ProvideInterpreter,
	ProvideJudge,
	ProvideInspector,
	ProvidePolicy,
	ProvideController,
	ProvideQAService,
	ProvideIngestService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideRawRedis,
	handler.NewHealthHandler,
	ProvideQAHandler,
	ProvideIngestHandler,
	ProvideRecallHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// InitializeApp 初始化 HTTP 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		DataSet,
		ReasoningSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化后台工作进程
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		DataSet,
		ReasoningSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}
