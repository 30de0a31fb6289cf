// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"strings"

	"video-memory-qa/internal/application/capability"
	"video-memory-qa/internal/application/ingest"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/application/qa"
	"video-memory-qa/internal/application/reasoning"
	"video-memory-qa/internal/config"
	infraembedding "video-memory-qa/internal/infrastructure/embedding"
	"video-memory-qa/internal/infrastructure/messaging"
	"video-memory-qa/internal/infrastructure/persistence/milvus"
	"video-memory-qa/internal/infrastructure/persistence/postgres"
	"video-memory-qa/internal/infrastructure/persistence/redis"
	"video-memory-qa/internal/interfaces/http/handler"
	"video-memory-qa/internal/workflow/chain"
	"video-memory-qa/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// Worker 后台工作进程的依赖集合
type Worker struct {
	QAService     *qa.Service
	IngestService *ingest.Service
	RedisClient   *redis.Client
	Cache         *redis.Cache
	Producer      *messaging.Producer
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRawRedis 提供底层 go-redis 客户端
func ProvideRawRedis(client *redis.Client) *goredis.Client {
	return client.Redis()
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideMilvusClient 提供可选 Milvus 客户端（不可达时禁用向量召回）
func ProvideMilvusClient(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	if !cfg.Database.Milvus.Enabled {
		return nil, func() {}, nil
	}
	client, err := milvus.NewClient(ctx, &cfg.Database.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, vector recall disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideVectorIndex 提供向量索引，集合初始化失败时禁用
func ProvideVectorIndex(ctx context.Context, client *milvus.Client) *milvus.VectorIndex {
	if client == nil {
		return nil
	}
	index := milvus.NewVectorIndex(client)
	if err := index.EnsureCollections(ctx); err != nil {
		logger.Warn(ctx, "failed to ensure milvus collections, vector recall disabled", "error", err.Error())
		return nil
	}
	return index
}

// ProvideEmbedder 提供带 Redis 缓存的 Embedder（不可用时禁用近似匹配）
func ProvideEmbedder(ctx context.Context, cfg *config.Config, cache *redis.Cache) match.Embedder {
	inner, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, approximate matching disabled", "error", err.Error())
		return nil
	}
	return infraembedding.NewCachedEmbedder(inner, cache, cfg.Embedding.Model, cfg.Embedding.CacheTTL)
}

// ProvideMatcher 提供相似度匹配引擎
func ProvideMatcher(cfg *config.Config, embedder match.Embedder) *match.Matcher {
	weights := match.DefaultWeights()
	w := cfg.Reasoning.Weights
	if w.Content > 0 || w.Source > 0 || w.Target > 0 {
		weights = match.Weights{
			Content:         w.Content,
			Source:          w.Source,
			Target:          w.Target,
			ConfidenceBonus: w.ConfidenceBonus,
		}
	}
	return match.NewMatcher(embedder, weights)
}

// defaultProviderModel 解析默认 LLM Provider 与 Model
func defaultProviderModel(cfg *config.Config) (string, string) {
	provider := strings.TrimSpace(cfg.LLM.DefaultProvider)
	model := ""
	if pc, ok := cfg.LLM.Providers[provider]; ok {
		model = strings.TrimSpace(pc.Model)
	}
	return provider, model
}

// ProvideInterpreter 提供问题解析能力
func ProvideInterpreter(cfg *config.Config, c *chain.InterpretChain) *capability.Interpreter {
	provider, model := defaultProviderModel(cfg)
	return capability.NewInterpreter(c, provider, model)
}

// ProvideJudge 提供证据判定能力
func ProvideJudge(cfg *config.Config, c *chain.JudgeChain) *capability.Judge {
	provider, model := defaultProviderModel(cfg)
	return capability.NewJudge(c, provider, model)
}

// ProvideInspector 提供片段重看能力
func ProvideInspector(cfg *config.Config, c *chain.InspectChain, graphs *postgres.GraphRepository, logs *postgres.SegmentLogRepository) *capability.Inspector {
	provider, model := defaultProviderModel(cfg)
	return capability.NewInspector(c, graphs, logs, provider, model)
}

// ProvidePolicy 提供充分性校验策略
func ProvidePolicy(cfg *config.Config) *reasoning.Policy {
	return &reasoning.Policy{ConfidenceFloor: cfg.Reasoning.ConfidenceFloor}
}

// ProvideController 提供证据级联控制器
func ProvideController(cfg *config.Config, interp *capability.Interpreter, judge *capability.Judge, inspector *capability.Inspector, matcher *match.Matcher, policy *reasoning.Policy) *reasoning.Controller {
	return reasoning.NewController(interp, judge, inspector, matcher, policy, reasoning.Config{
		SegmentBudget:  cfg.Reasoning.SegmentBudget,
		NeighborWindow: cfg.Reasoning.NeighborWindow,
		TopK:           cfg.Reasoning.TopK,
		MatchThreshold: cfg.Reasoning.MatchThreshold,
	})
}

// ProvideQAService 提供问答编排服务并接通重看回写
func ProvideQAService(cfg *config.Config, graphs *postgres.GraphRepository, logs *postgres.SegmentLogRepository, results *postgres.ResultsRepository, controller *reasoning.Controller) *qa.Service {
	svc := qa.NewService(graphs, logs, results, controller, qa.Config{
		VideoConcurrency:    cfg.Reasoning.VideoConcurrency,
		QuestionConcurrency: cfg.Reasoning.QuestionConcurrency,
	})
	controller.WithWriteback(svc)
	return svc
}

// ProvideIngestService 提供图制品摄取服务
func ProvideIngestService(cfg *config.Config, graphs *postgres.GraphRepository, logs *postgres.SegmentLogRepository, index *milvus.VectorIndex, embedder match.Embedder, qaService *qa.Service, cache *redis.Cache) *ingest.Service {
	return ingest.NewService(graphs, logs, index, embedder, qaService, cache, cfg.Embedding.BatchSize)
}

// ProvideQAHandler 提供问答处理器
func ProvideQAHandler(qaService *qa.Service, graphs *postgres.GraphRepository, producer *messaging.Producer, cache *redis.Cache) *handler.QAHandler {
	return handler.NewQAHandler(qaService, graphs, producer, cache)
}

// ProvideIngestHandler 提供摄取处理器
func ProvideIngestHandler(ingestService *ingest.Service, producer *messaging.Producer) *handler.IngestHandler {
	return handler.NewIngestHandler(ingestService, producer)
}

// ProvideRecallHandler 提供召回调试处理器
func ProvideRecallHandler(graphs *postgres.GraphRepository, index *milvus.VectorIndex, embedder match.Embedder) *handler.RecallHandler {
	return handler.NewRecallHandler(graphs, index, embedder)
}
