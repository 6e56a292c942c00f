// =============================================================================
// 📦 AgentRoom 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 单轮失败策略
const (
	FailurePolicySkip  = "skip"
	FailurePolicyAbort = "abort"
)

// 存储类型
const (
	StoreDatabase = "database"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Store:     DefaultStoreConfig(),
		LLM:       DefaultLLMConfig(),
		Chat:      DefaultChatConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		IdempotencyTTL:  24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "agentroom:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "agentroom",
		Name:            "agentroom.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type: StoreDatabase,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider:     "openai",
		Timeout:             60 * time.Second,
		MaxTokens:           1000,
		RetryDelay:          time.Second,
		BreakerThreshold:    5,
		BreakerResetTimeout: 60 * time.Second,
		OpenAI: ProviderConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-3.5-turbo",
		},
		DeepSeek: ProviderConfig{
			BaseURL: "https://api.deepseek.com",
			Model:   "deepseek-chat",
		},
		Ollama: ProviderConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3",
		},
		Gemini: ProviderConfig{
			Model: "gemini-2.0-flash",
		},
	}
}

// DefaultChatConfig 返回默认群聊配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		ContextWindow:          20,
		Pacing:                 2 * time.Second,
		FailurePolicy:          FailurePolicySkip,
		WordLimit:              50,
		DebateStartTemplate:    "本次辩论的主题是：{topic}，请各位辩手开始发言。",
		GroupChatStartTemplate: "本次群聊的主题是：{topic}，请大家开始讨论。",
		EndTemplate:            "群聊已结束，感谢大家的参与！",
		ErrorTemplate:          "对话因错误中断：{error}",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentroom",
		SampleRate:   0.1,
	}
}
