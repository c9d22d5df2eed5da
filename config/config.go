package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"120"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Redis (pipeline lock and optional artifact store)
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka producer (review and batch events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"review-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	TracingExporter     string        `env:"TRACING_EXPORTER" env-default:"console"`
	TracingOTLPEndpoint string        `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4317"`
	TracingOTLPProtocol string        `env:"TRACING_OTLP_PROTOCOL" env-default:"grpc"`
	TracingOTLPInsecure bool          `env:"TRACING_OTLP_INSECURE" env-default:"true"`
	TracingOTLPTimeout  time.Duration `env:"TRACING_OTLP_TIMEOUT" env-default:"10s"`

	// Embedding
	EmbeddingBackend       string `env:"EMBEDDING_BACKEND" env-default:"onnx"`
	EncoderModelPath       string `env:"ENCODER_MODEL_PATH" env-default:"models/encoder.onnx"`
	EncoderTokenizerPath   string `env:"ENCODER_TOKENIZER_PATH" env-default:"models/tokenizer.json"`
	OnnxRuntimeLibraryPath string `env:"ONNXRUNTIME_LIBRARY_PATH" env-default:""`
	EncoderMaxLength       int    `env:"ENCODER_MAX_LENGTH" env-default:"512"`
	EncoderBatchSize       int    `env:"ENCODER_BATCH_SIZE" env-default:"32"`
	EmbeddingDimension     int    `env:"EMBEDDING_DIMENSION" env-default:"768"`
	EmbeddingCacheEnabled  bool   `env:"EMBEDDING_CACHE_ENABLED" env-default:"true"`

	// Matching
	CandidateCount         int           `env:"MATCH_CANDIDATE_COUNT" env-default:"5"`
	MatchWorkers           int           `env:"MATCH_WORKERS" env-default:"4"`
	MatchLockTTL           time.Duration `env:"MATCH_LOCK_TTL" env-default:"5m"`
	ArtifactStore          string        `env:"ARTIFACT_STORE" env-default:"file"`
	ArtifactPath           string        `env:"ARTIFACT_PATH" env-default:"data/artifact.zst"`
	ArtifactRedisKey       string        `env:"ARTIFACT_REDIS_KEY" env-default:"fern:artifact"`
	ArtifactTTL            time.Duration `env:"ARTIFACT_TTL" env-default:"0s"`
	RerankerModelPath      string        `env:"RERANKER_MODEL_PATH" env-default:""`
	RerankerRounds         int           `env:"RERANKER_ROUNDS" env-default:"100"`
	RerankerLearningRate   float64       `env:"RERANKER_LEARNING_RATE" env-default:"0.01"`
	RerankerValidationFrac float64       `env:"RERANKER_VALIDATION_FRACTION" env-default:"0.25"`
	RerankerSeed           int64         `env:"RERANKER_SEED" env-default:"42"`
}

// Load reads an optional .env file and then the environment.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", envFile)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}
	return &cfg, nil
}
