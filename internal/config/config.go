package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Compose   ComposeConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	APIKeys   []string
}

type StorageConfig struct {
	UploadDir      string
	OutputDir      string
	WorkDir        string
	MaxFileSize    int64 // bytes, per uploaded file
	MaxRemoteSize  int64 // bytes, per fetched remote file
	AllowedDomains []string
	FetchTimeout   time.Duration
}

type ComposeConfig struct {
	DefaultSceneDuration float64 // seconds, for image scenes without one
}

type WorkerConfig struct {
	Concurrency  int
	StageTimeout time.Duration
	FFmpegBinary string
	FFprobeBin   string
}

type RateLimitConfig struct {
	ComposePerHour int
	UploadPerHour  int
	StatusPerMin   int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("auth.jwt_secret", "change-me-in-production")
	viper.SetDefault("auth.api_keys", []string{})
	viper.SetDefault("storage.upload_dir", "./data/uploads")
	viper.SetDefault("storage.output_dir", "./data/outputs")
	viper.SetDefault("storage.work_dir", "./data/work")
	viper.SetDefault("storage.max_file_size", 100*1024*1024)
	viper.SetDefault("storage.max_remote_size", 200*1024*1024)
	viper.SetDefault("storage.allowed_domains", []string{})
	viper.SetDefault("storage.fetch_timeout", "60s")
	viper.SetDefault("compose.default_scene_duration", 5.0)
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.stage_timeout", "10m")
	viper.SetDefault("worker.ffmpeg_binary", "ffmpeg")
	viper.SetDefault("worker.ffprobe_binary", "ffprobe")
	viper.SetDefault("ratelimit.compose_per_hour", 20)
	viper.SetDefault("ratelimit.upload_per_hour", 50)
	viper.SetDefault("ratelimit.status_per_min", 120)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("auth.jwt_secret"),
			APIKeys:   viper.GetStringSlice("auth.api_keys"),
		},
		Storage: StorageConfig{
			UploadDir:      viper.GetString("storage.upload_dir"),
			OutputDir:      viper.GetString("storage.output_dir"),
			WorkDir:        viper.GetString("storage.work_dir"),
			MaxFileSize:    viper.GetInt64("storage.max_file_size"),
			MaxRemoteSize:  viper.GetInt64("storage.max_remote_size"),
			AllowedDomains: viper.GetStringSlice("storage.allowed_domains"),
			FetchTimeout:   viper.GetDuration("storage.fetch_timeout"),
		},
		Compose: ComposeConfig{
			DefaultSceneDuration: viper.GetFloat64("compose.default_scene_duration"),
		},
		Worker: WorkerConfig{
			Concurrency:  viper.GetInt("worker.concurrency"),
			StageTimeout: viper.GetDuration("worker.stage_timeout"),
			FFmpegBinary: viper.GetString("worker.ffmpeg_binary"),
			FFprobeBin:   viper.GetString("worker.ffprobe_binary"),
		},
		RateLimit: RateLimitConfig{
			ComposePerHour: viper.GetInt("ratelimit.compose_per_hour"),
			UploadPerHour:  viper.GetInt("ratelimit.upload_per_hour"),
			StatusPerMin:   viper.GetInt("ratelimit.status_per_min"),
		},
	}

	return cfg, nil
}
