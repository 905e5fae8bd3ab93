// Package config loads settings from defaults, an optional YAML file,
// LIFEOS_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stevemurr/lifeos/blob"
	"github.com/stevemurr/lifeos/logging"
	"github.com/stevemurr/lifeos/store"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores: store.backend is LIFEOS_STORE_BACKEND.
const EnvPrefix = "LIFEOS"

// Config is the resolved configuration.
type Config struct {
	DataDir string
	Store   store.Config
	Sync    SyncConfig
	Log     logging.Options
	Server  ServerConfig
	Blob    blob.Config
	// MetricsFile, when set, receives the store and sync counters of each
	// command in Prometheus text format for a node_exporter textfile
	// collector.
	MetricsFile string
}

type SyncConfig struct {
	Endpoint        string
	Timeout         time.Duration
	SuccessCooldown time.Duration
	ErrorCooldown   time.Duration
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// PrefsPath is where the sync id and last sync time are kept.
func (c Config) PrefsPath() string {
	return filepath.Join(c.DataDir, "prefs.yaml")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("sync.endpoint", "https://api.npoint.io")
	v.SetDefault("sync.timeout", 30*time.Second)
	v.SetDefault("sync.success_cooldown", 3*time.Second)
	v.SetDefault("sync.error_cooldown", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.allowed_origins", "*")
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.dir", "")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.prefix", "blobs/")
	v.SetDefault("metrics.textfile", "")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".lifeos")
}

// ReadFile merges the config file at path into v. An empty path looks for
// config.yaml in the working directory and in $HOME/.lifeos, and a missing
// file is not an error in that case.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".lifeos"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves v into a Config.
func Load(v *viper.Viper) (Config, error) {
	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		return Config{}, errors.New("data_dir must not be empty")
	}
	blobDir := v.GetString("blob.dir")
	if blobDir == "" {
		blobDir = filepath.Join(dataDir, "blobs")
	}
	c := Config{
		DataDir: dataDir,
		Store: store.Config{
			Backend: v.GetString("store.backend"),
			DataDir: dataDir,
			DSN:     v.GetString("store.dsn"),
		},
		Sync: SyncConfig{
			Endpoint:        v.GetString("sync.endpoint"),
			Timeout:         v.GetDuration("sync.timeout"),
			SuccessCooldown: v.GetDuration("sync.success_cooldown"),
			ErrorCooldown:   v.GetDuration("sync.error_cooldown"),
		},
		Log: logging.Options{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: splitList(v.GetString("server.allowed_origins")),
		},
		Blob: blob.Config{
			Driver: blob.Driver(v.GetString("blob.driver")),
			Dir:    blobDir,
			S3: blob.S3Config{
				Bucket:    v.GetString("blob.s3.bucket"),
				Region:    v.GetString("blob.s3.region"),
				Endpoint:  v.GetString("blob.s3.endpoint"),
				PathStyle: v.GetBool("blob.s3.path_style"),
				Prefix:    v.GetString("blob.s3.prefix"),
			},
		},
		MetricsFile: v.GetString("metrics.textfile"),
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return Config{}, errors.New("store.dsn is required for the postgres backend")
	}
	if c.Sync.SuccessCooldown < 0 || c.Sync.ErrorCooldown < 0 {
		return Config{}, errors.New("sync cool-downs must not be negative")
	}
	return c, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
