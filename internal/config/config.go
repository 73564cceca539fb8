package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds the two Redis roles: hot keeps per-user recent event
// lists, warm keeps computed recommendation lists.
type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Neo4jConfig enables the optional interaction graph used for neighbour
// lookups.
type Neo4jConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	MaxPoolSize int    `mapstructure:"max_pool_size"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  struct {
		BehaviorEvents  string `mapstructure:"behavior_events"`
		BehaviorTracked string `mapstructure:"behavior_tracked"`
		BehaviorDLQ     string `mapstructure:"behavior_dlq"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	ActionWeights map[string]float64  `mapstructure:"action_weights"`
	RatingCeiling float64             `mapstructure:"rating_ceiling"`
	MaxLimit      int                 `mapstructure:"max_limit"`
	Interactions  InteractionConfig   `mapstructure:"interactions"`
	Collaborative CollaborativeConfig `mapstructure:"collaborative"`
	ContentBased  ContentBasedConfig  `mapstructure:"content_based"`
	Trending      TrendingConfig      `mapstructure:"trending"`
	Seasonal      SeasonalConfig      `mapstructure:"seasonal"`
	Hybrid        HybridConfig        `mapstructure:"hybrid"`
	Caching       CachingConfig       `mapstructure:"caching"`
	Tracking      TrackingConfig      `mapstructure:"tracking"`
}

type InteractionConfig struct {
	RecentCapacity int           `mapstructure:"recent_capacity"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	RecordRetries  int           `mapstructure:"record_retries"`
	RecordTimeout  time.Duration `mapstructure:"record_timeout"`
}

type CollaborativeConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Weight         float64 `mapstructure:"weight"`
	TopK           int     `mapstructure:"top_k"`
	CandidatePool  int     `mapstructure:"candidate_pool"`
	MinSimilarity  float64 `mapstructure:"min_similarity"`
	NeighborSource string  `mapstructure:"neighbor_source"` // postgres, neo4j
}

type ContentBasedConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Weight          float64       `mapstructure:"weight"`
	TopCategories   int           `mapstructure:"top_categories"`
	TopTags         int           `mapstructure:"top_tags"`
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`
	CandidatePool   int           `mapstructure:"candidate_pool"`
}

type TrendingConfig struct {
	PurchaseWeight float64 `mapstructure:"purchase_weight"`
	ViewWeight     float64 `mapstructure:"view_weight"`
	CandidatePool  int     `mapstructure:"candidate_pool"`
}

type SeasonalConfig struct {
	Boost         float64 `mapstructure:"boost"`
	CandidatePool int     `mapstructure:"candidate_pool"`
}

type HybridConfig struct {
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout"`
	BackfillWeight  float64       `mapstructure:"backfill_weight"`
}

type CachingConfig struct {
	Backend         string        `mapstructure:"backend"` // redis or memory
	PersonalizedTTL time.Duration `mapstructure:"personalized_ttl"`
	TrendingTTL     time.Duration `mapstructure:"trending_ttl"`
	SeasonalTTL     time.Duration `mapstructure:"seasonal_ttl"`
	SimilarTTL      time.Duration `mapstructure:"similar_ttl"`
}

type TrackingConfig struct {
	Async     bool `mapstructure:"async"`
	Workers   int  `mapstructure:"workers"`
	QueueSize int  `mapstructure:"queue_size"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig caps API requests per tenant in a sliding window.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(err)
	}
	return &config
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.url", "postgres://localhost:5432/shoprec")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.hot.url", "localhost:6379")
	v.SetDefault("redis.hot.max_retries", 3)
	v.SetDefault("redis.hot.pool_size", 10)
	v.SetDefault("redis.hot.timeout", "500ms")
	v.SetDefault("redis.warm.url", "localhost:6379")
	v.SetDefault("redis.warm.max_retries", 1)
	v.SetDefault("redis.warm.pool_size", 10)
	v.SetDefault("redis.warm.timeout", "250ms")

	// Neo4j defaults
	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.url", "neo4j://localhost:7687")
	v.SetDefault("neo4j.max_pool_size", 10)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "shoprec-behavior")
	v.SetDefault("kafka.topics.behavior_events", "commerce-user-behavior")
	v.SetDefault("kafka.topics.behavior_tracked", "recommendation-behavior-tracked")
	v.SetDefault("kafka.topics.behavior_dlq", "commerce-user-behavior-dlq")

	// Auth defaults
	v.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Recommendation defaults
	v.SetDefault("recommendation.action_weights", map[string]float64{
		"view":        1,
		"add_to_cart": 2,
		"purchase":    4,
		"review":      5,
		"like":        3,
		"share":       3,
	})
	v.SetDefault("recommendation.rating_ceiling", 5.0)
	v.SetDefault("recommendation.max_limit", 100)

	v.SetDefault("recommendation.interactions.recent_capacity", 200)
	v.SetDefault("recommendation.interactions.max_age", "2160h")
	v.SetDefault("recommendation.interactions.record_retries", 3)
	v.SetDefault("recommendation.interactions.record_timeout", "2s")

	v.SetDefault("recommendation.collaborative.enabled", true)
	v.SetDefault("recommendation.collaborative.weight", 0.5)
	v.SetDefault("recommendation.collaborative.top_k", 20)
	v.SetDefault("recommendation.collaborative.candidate_pool", 100)
	v.SetDefault("recommendation.collaborative.min_similarity", 0.0)
	v.SetDefault("recommendation.collaborative.neighbor_source", "postgres")

	v.SetDefault("recommendation.content_based.enabled", true)
	v.SetDefault("recommendation.content_based.weight", 0.5)
	v.SetDefault("recommendation.content_based.top_categories", 5)
	v.SetDefault("recommendation.content_based.top_tags", 10)
	v.SetDefault("recommendation.content_based.recency_half_life", "720h")
	v.SetDefault("recommendation.content_based.candidate_pool", 200)

	v.SetDefault("recommendation.trending.purchase_weight", 10.0)
	v.SetDefault("recommendation.trending.view_weight", 0.01)
	v.SetDefault("recommendation.trending.candidate_pool", 200)

	v.SetDefault("recommendation.seasonal.boost", 0.5)
	v.SetDefault("recommendation.seasonal.candidate_pool", 200)

	v.SetDefault("recommendation.hybrid.strategy_timeout", "300ms")
	v.SetDefault("recommendation.hybrid.request_timeout", "2s")
	v.SetDefault("recommendation.hybrid.fallback_timeout", "500ms")
	v.SetDefault("recommendation.hybrid.backfill_weight", 0.1)

	// Caching defaults
	v.SetDefault("recommendation.caching.backend", "redis")
	v.SetDefault("recommendation.caching.personalized_ttl", "15m")
	v.SetDefault("recommendation.caching.trending_ttl", "5m")
	v.SetDefault("recommendation.caching.seasonal_ttl", "30m")
	v.SetDefault("recommendation.caching.similar_ttl", "15m")

	v.SetDefault("recommendation.tracking.async", true)
	v.SetDefault("recommendation.tracking.workers", 4)
	v.SetDefault("recommendation.tracking.queue_size", 1000)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests", 1200)
	v.SetDefault("security.rate_limit.window", "1m")
}
