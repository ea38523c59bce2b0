package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	Admin       AdminConfig      `json:"admin"`
	Database    DatabaseConfig   `json:"database"`
	LogConfig   logger.LogConfig `json:"log_config"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	Ingest      IngestConfig     `json:"ingest"`
	Fleet       FleetConfig      `json:"fleet"`
	Session     SessionConfig    `json:"session"`
}

type AdminConfig struct {
	User         string `json:"user"`
	PasswordHash string `json:"password_hash"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type      string   `json:"type"`
	Dir       string   `json:"dir"`
	PublicURL string   `json:"public_url"`
	S3        S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type AIProviderConfig struct {
	Name string      `json:"name"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Providers      []AIProviderConfig `json:"providers"`
	EmbedModel     string             `json:"embed_model"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	EmbedCacheSize int                `json:"embed_cache_size"`
}

type RetrievalConfig struct {
	TopK     int     `json:"top_k"`
	MinScore float64 `json:"min_score"`
}

type IngestConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
	Workers      int `json:"workers"`
	QueueSize    int `json:"queue_size"`
}

type FleetConfig struct {
	ReconcileIntervalSeconds int `json:"reconcile_interval_seconds"`
	StopGraceSeconds         int `json:"stop_grace_seconds"`
}

type SessionConfig struct {
	HistorySize            int `json:"history_size"`
	TTLMinutes             int `json:"ttl_minutes"`
	PasswordMaxAttempts    int `json:"password_max_attempts"`
	PasswordWindowMinutes  int `json:"password_window_minutes"`
	CleanupIntervalMinutes int `json:"cleanup_interval_minutes"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if len(cfg.AI.Providers) == 0 {
		return nil, fmt.Errorf("ai.providers is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.AI.EmbedCacheSize == 0 {
		cfg.AI.EmbedCacheSize = 10000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = 0.55
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return nil, fmt.Errorf("ingest.chunk_overlap must be smaller than ingest.chunk_size")
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 2
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 256
	}
	if cfg.Fleet.ReconcileIntervalSeconds == 0 {
		cfg.Fleet.ReconcileIntervalSeconds = 20
	}
	if cfg.Fleet.StopGraceSeconds == 0 {
		cfg.Fleet.StopGraceSeconds = 5
	}
	if cfg.Session.HistorySize == 0 {
		cfg.Session.HistorySize = 6
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 120
	}
	if cfg.Session.PasswordMaxAttempts == 0 {
		cfg.Session.PasswordMaxAttempts = 5
	}
	if cfg.Session.PasswordWindowMinutes == 0 {
		cfg.Session.PasswordWindowMinutes = 10
	}
	if cfg.Session.CleanupIntervalMinutes == 0 {
		cfg.Session.CleanupIntervalMinutes = 10
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			return nil, fmt.Errorf("file_store.dir is required for local store")
		}
	case "s3":
		if cfg.FileStore.S3.Endpoint == "" || cfg.FileStore.S3.Bucket == "" || cfg.FileStore.S3.SecretID == "" || cfg.FileStore.S3.SecretKey == "" {
			return nil, fmt.Errorf("file_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
		if cfg.FileStore.S3.Region == "" {
			cfg.FileStore.S3.Region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("file_store.type must be local or s3")
	}
	return &cfg, nil
}
