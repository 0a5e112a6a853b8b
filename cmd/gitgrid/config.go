package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gitgrid/gitgrid/internal/auth"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultBindHost           = "127.0.0.1"
	defaultAPIPort            = 5000
	defaultQueryTimeout       = 30 * time.Second
	defaultMaxConcurrentReads = 8
	defaultCORSOrigin         = "http://localhost:4200"
	defaultRateLimit          = 100
	defaultRateLimitWindow    = 5 * time.Minute
	defaultLogMaxSizeMB       = 50
	defaultLogMaxBackups      = 5
	defaultLogMaxAgeDays      = 28
	defaultBackupInterval     = 6 * time.Hour
	defaultBackupKeepLast     = 24
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host               string        `mapstructure:"host" yaml:"host"`
	APIPort            int           `mapstructure:"api-port" yaml:"api-port"`
	APIAddr            string        `mapstructure:"api-addr" yaml:"api-addr,omitempty"`
	DBPath             string        `mapstructure:"db-path" yaml:"db-path"`
	FiltersDBPath      string        `mapstructure:"filters-db-path" yaml:"filters-db-path"`
	QueryTimeout       time.Duration `mapstructure:"query-timeout" yaml:"query-timeout"`
	MaxConcurrentReads int           `mapstructure:"max-concurrent-queries" yaml:"max-concurrent-queries"`
	Development        bool          `mapstructure:"development" yaml:"development"`
	CORSOrigin         string        `mapstructure:"cors-origin" yaml:"cors-origin"`
	RateLimit          int           `mapstructure:"rate-limit" yaml:"rate-limit"`
	RateLimitWindow    time.Duration `mapstructure:"rate-limit-window" yaml:"rate-limit-window"`

	JWTSecret       string `mapstructure:"jwt-secret" yaml:"jwt-secret"`
	JWTIssuer       string `mapstructure:"jwt-issuer" yaml:"jwt-issuer"`
	JWTAudience     string `mapstructure:"jwt-audience" yaml:"jwt-audience"`
	AllowHeaderAuth bool   `mapstructure:"allow-header-auth" yaml:"allow-header-auth"`

	LogFile       string `mapstructure:"log-file" yaml:"log-file"`
	LogStderr     bool   `mapstructure:"log-stderr" yaml:"log-stderr"`
	LogMaxSizeMB  int    `mapstructure:"log-max-size" yaml:"log-max-size"`
	LogMaxBackups int    `mapstructure:"log-max-backups" yaml:"log-max-backups"`
	LogMaxAgeDays int    `mapstructure:"log-max-age" yaml:"log-max-age"`
	LogCompress   bool   `mapstructure:"log-compress" yaml:"log-compress"`

	BackupEnabled        bool          `mapstructure:"backup-enabled" yaml:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval" yaml:"backup-interval"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir" yaml:"backup-local-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last" yaml:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url" yaml:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint" yaml:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region" yaml:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key" yaml:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key" yaml:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token" yaml:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl" yaml:"backup-s3-use-ssl"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}

// dataDir is where databases and snapshots live by default.
func dataDir(home string) string {
	return filepath.Join(home, ".local", "share", "gitgrid")
}

func defaultConfigPath(home string) string {
	return filepath.Join(home, ".config", "gitgrid", "config.yml")
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("host", defaultBindHost)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("db-path", filepath.Join(dataDir(home), "gitgrid.duckdb"))
	v.SetDefault("filters-db-path", filepath.Join(dataDir(home), "filters.db"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("development", false)
	v.SetDefault("cors-origin", defaultCORSOrigin)
	v.SetDefault("rate-limit", defaultRateLimit)
	v.SetDefault("rate-limit-window", defaultRateLimitWindow)
	v.SetDefault("jwt-secret", "")
	v.SetDefault("jwt-issuer", auth.DefaultIssuer)
	v.SetDefault("jwt-audience", auth.DefaultAudience)
	v.SetDefault("allow-header-auth", false)
	v.SetDefault("log-file", "")
	v.SetDefault("log-stderr", false)
	v.SetDefault("log-max-size", defaultLogMaxSizeMB)
	v.SetDefault("log-max-backups", defaultLogMaxBackups)
	v.SetDefault("log-max-age", defaultLogMaxAgeDays)
	v.SetDefault("log-compress", true)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(dataDir(home), "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "us-east-1")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-session-token", "")
	v.SetDefault("backup-s3-use-ssl", true)
}

// loadEnvFiles loads .env and .env.local from the working directory and
// from the config file's directory. Variables already set win.
func loadEnvFiles(configPath string) {
	envFiles := []string{".env", ".env.local"}
	dirs := []string{"."}
	if configPath != "" {
		dirs = append(dirs, filepath.Dir(configPath))
	}
	for _, dir := range dirs {
		for _, name := range envFiles {
			_ = godotenv.Load(filepath.Join(dir, name))
		}
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("GITGRID")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	setDefaults(v, home)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(defaultConfigPath(home))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.FiltersDBPath = expandHome(home, cfg.FiltersDBPath)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)
	cfg.LogFile = expandHome(home, cfg.LogFile)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}
	return cfg, nil
}

func (cfg appConfig) validate() error {
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("invalid query-timeout: %s", cfg.QueryTimeout)
	}
	if cfg.MaxConcurrentReads < 0 {
		return fmt.Errorf("invalid max-concurrent-queries: %d", cfg.MaxConcurrentReads)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("invalid rate-limit: %d", cfg.RateLimit)
	}
	if cfg.RateLimit > 0 && cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("invalid rate-limit-window: %s", cfg.RateLimitWindow)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("invalid db-path: must not be empty")
	}
	if cfg.BackupEnabled && cfg.BackupInterval <= 0 {
		return fmt.Errorf("invalid backup-interval: %s", cfg.BackupInterval)
	}
	if cfg.BackupKeepLast < 0 {
		return fmt.Errorf("invalid backup-keep-last: %d", cfg.BackupKeepLast)
	}
	if cfg.BackupEnabled && cfg.BackupBucketURL != "" &&
		(cfg.BackupS3AccessKey == "" || cfg.BackupS3SecretKey == "") {
		return fmt.Errorf("backup-s3-access-key and backup-s3-secret-key are required with backup-bucket-url")
	}
	return nil
}

// validateServe checks settings only the API server needs.
func (cfg appConfig) validateServe() error {
	if cfg.JWTSecret == "" && !cfg.AllowHeaderAuth {
		return fmt.Errorf("invalid jwt-secret: required unless allow-header-auth is enabled")
	}
	return nil
}

func (cfg appConfig) authConfig() auth.Config {
	return auth.Config{
		Secret:      cfg.JWTSecret,
		Issuer:      cfg.JWTIssuer,
		Audience:    cfg.JWTAudience,
		AllowHeader: cfg.AllowHeaderAuth,
	}
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
