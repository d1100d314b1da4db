package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/menta2k/photo-annotator/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Surface SurfaceConfig `mapstructure:"surface"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Vision  VisionConfig  `mapstructure:"vision"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	StaticDir    string        `mapstructure:"static_dir"`
	// SessionTTL closes sessions idle for longer; 0 keeps them forever
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

// SurfaceConfig holds the drawing surface settings
type SurfaceConfig struct {
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	Stroke     int    `mapstructure:"stroke"`
	ShowLabels bool   `mapstructure:"show_labels"`
	TagMode    string `mapstructure:"tag_mode"`
}

// CatalogConfig holds the remote product catalog settings
type CatalogConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// UploadConfig holds the submission and image intake settings
type UploadConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxSize  int64         `mapstructure:"max_size"`
}

// RedisConfig holds the product cache settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// VisionConfig holds the product suggestion settings
type VisionConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configPath (YAML) on top of the defaults. A missing file is
// not an error. Values from a .env file and ANNOTATOR_* variables override
// both, e.g. ANNOTATOR_UPLOAD_ENDPOINT.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("annotator")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("failed to read config file: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("server.session_ttl", d.Server.SessionTTL)

	v.SetDefault("surface.width", d.Surface.Width)
	v.SetDefault("surface.height", d.Surface.Height)
	v.SetDefault("surface.stroke", d.Surface.Stroke)
	v.SetDefault("surface.show_labels", d.Surface.ShowLabels)
	v.SetDefault("surface.tag_mode", d.Surface.TagMode)

	v.SetDefault("catalog.endpoint", d.Catalog.Endpoint)
	v.SetDefault("catalog.timeout", d.Catalog.Timeout)

	v.SetDefault("upload.endpoint", d.Upload.Endpoint)
	v.SetDefault("upload.timeout", d.Upload.Timeout)
	v.SetDefault("upload.max_size", d.Upload.MaxSize)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("vision.enabled", d.Vision.Enabled)
	v.SetDefault("vision.backend", d.Vision.Backend)
	v.SetDefault("vision.url", d.Vision.URL)
	v.SetDefault("vision.model", d.Vision.Model)
	v.SetDefault("vision.timeout", d.Vision.Timeout)
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			StaticDir:    "./static",
			SessionTTL:   30 * time.Minute,
		},
		Surface: SurfaceConfig{
			Width:      500,
			Height:     500,
			Stroke:     2,
			ShowLabels: true,
			TagMode:    "catalog",
		},
		Catalog: CatalogConfig{
			Endpoint: "https://strefa.indigo-nails.com/api/products",
			Timeout:  30 * time.Second,
		},
		Upload: UploadConfig{
			Endpoint: "https://strefa.indigo-nails.com/api/upload",
			Timeout:  60 * time.Second,
			MaxSize:  20 * 1024 * 1024,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
			TTL:     10 * time.Minute,
		},
		Vision: VisionConfig{
			Enabled: false,
			Backend: "ollama",
			URL:     "http://localhost:11435",
			Model:   "openbmb/minicpm-v4.5",
			Timeout: 60 * time.Second,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if c.Server.SessionTTL < 0 {
		return fmt.Errorf("server.session_ttl cannot be negative")
	}

	if c.Surface.Width < 1 || c.Surface.Height < 1 {
		return fmt.Errorf("surface.width and surface.height must be positive")
	}

	if c.Surface.Stroke < 1 {
		return fmt.Errorf("surface.stroke must be positive")
	}

	if _, err := types.ParseTagKind(c.Surface.TagMode); err != nil {
		return fmt.Errorf("surface.tag_mode: %w", err)
	}

	if c.Upload.Endpoint == "" {
		return fmt.Errorf("upload.endpoint cannot be empty")
	}

	if c.Upload.MaxSize < 0 {
		return fmt.Errorf("upload.max_size cannot be negative")
	}

	if kind, _ := types.ParseTagKind(c.Surface.TagMode); kind == types.TagCatalog && c.Catalog.Endpoint == "" {
		return fmt.Errorf("catalog.endpoint is required in catalog tag mode")
	}

	if c.Vision.Enabled {
		switch c.Vision.Backend {
		case "ollama", "llamacpp":
		default:
			return fmt.Errorf("vision.backend must be ollama or llamacpp, got %q", c.Vision.Backend)
		}
	}

	return nil
}

// TagKind returns the parsed surface.tag_mode
func (c *Config) TagKind() types.TagKind {
	kind, _ := types.ParseTagKind(c.Surface.TagMode)
	return kind
}
