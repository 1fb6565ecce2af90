package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Model   ModelConfig
	App     AppConfig
	Storage StorageConfig
	S3      S3Config
	Gene    GeneConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type ModelConfig struct {
	Path         string
	MetadataPath string
	// RuntimeLib is the onnxruntime shared library. Empty means the
	// library default lookup.
	RuntimeLib string
}

type AppConfig struct {
	UploadDir         string
	MaxUploadSize     int64
	AllowedExtensions []string
	UploadRetention   time.Duration
}

type StorageConfig struct {
	Backend string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type GeneConfig struct {
	// Seed for the mutation flag RNG. Zero seeds from the clock.
	Seed int64
}

type LogConfig struct {
	Level string
}

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Load reads configuration from the environment and, when path is not
// empty, from a config file. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		Model: ModelConfig{
			Path:         v.GetString("MODEL_PATH"),
			MetadataPath: v.GetString("MODEL_METADATA_PATH"),
			RuntimeLib:   v.GetString("ONNXRUNTIME_LIB"),
		},
		App: AppConfig{
			UploadDir:         v.GetString("APP_UPLOAD_DIR"),
			MaxUploadSize:     v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			AllowedExtensions: normalizeExtensions(v.GetStringSlice("APP_ALLOWED_EXTENSIONS")),
			UploadRetention:   v.GetDuration("APP_UPLOAD_RETENTION"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
		},
		Gene: GeneConfig{
			Seed: v.GetInt64("GENE_SEED"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == BackendLocal {
		if err := os.MkdirAll(cfg.App.UploadDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", cfg.App.UploadDir, err)
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("MODEL_PATH", "models/model.onnx")
	v.SetDefault("MODEL_METADATA_PATH", "models/model_metadata.json")
	v.SetDefault("ONNXRUNTIME_LIB", "")
	v.SetDefault("APP_UPLOAD_DIR", "uploads")
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 32*1024*1024) // 32MB
	v.SetDefault("APP_ALLOWED_EXTENSIONS", []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "dcm"})
	v.SetDefault("APP_UPLOAD_RETENTION", 0)
	v.SetDefault("STORAGE_BACKEND", BackendLocal)
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "mri-uploads")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("GENE_SEED", 0)
	v.SetDefault("LOG_LEVEL", "info")
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendLocal, BackendS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.App.MaxUploadSize <= 0 {
		return fmt.Errorf("APP_MAX_UPLOAD_SIZE must be positive, got %d", c.App.MaxUploadSize)
	}
	if len(c.App.AllowedExtensions) == 0 {
		return fmt.Errorf("APP_ALLOWED_EXTENSIONS must not be empty")
	}
	return nil
}

// normalizeExtensions lower-cases and strips leading dots, so ".PNG" and
// "png" configure the same entry. Viper only splits env values on
// whitespace, so comma separated lists are split here.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, entry := range exts {
		for _, ext := range strings.Split(entry, ",") {
			ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
			if ext != "" {
				out = append(out, ext)
			}
		}
	}
	return out
}
