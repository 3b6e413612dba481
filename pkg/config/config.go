package config

import "time"

// ChatEngine definition chat_engine YAML structure
type ChatEngine struct {
	Port string `mapstructure:"port"`

	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Minio      MinioConfig    `mapstructure:"minio"`
	RabbitMQ   RabbitConfig   `mapstructure:"rabbitmq"`

	Sync SyncConfig `mapstructure:"sync"`
}

// SyncConfig 同步引擎的時間參數
type SyncConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	TypingIdle        time.Duration `mapstructure:"typing_idle"`
	TypingStale       time.Duration `mapstructure:"typing_stale"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	ReconnectBase     time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	BackfillLimit     int64         `mapstructure:"backfill_limit"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
}

// MinioConfig definition minio setting
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RabbitConfig definition rabbitmq setting
type RabbitConfig struct {
	URL string `mapstructure:"url"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}
