package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Imports  ImportsConfig
	Rules    RulesConfig
}

// DatabaseConfig describes where the relational store lives. DataDir is used
// for the default SQLite file; URL, when set, overrides the whole target.
type DatabaseConfig struct {
	DataDir      string
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Enabled    bool
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ImportsConfig governs how import reports are retained and how uploads are processed.
type ImportsConfig struct {
	ReportsEnabled bool
	ReportTTL      time.Duration
	MaxUploadBytes int64
	QueueBuffer    int
	UploadDir      string
}

// RulesConfig holds the parameters of the elective concentration rule.
type RulesConfig struct {
	ElectiveType    string
	RequiredCount   int
	RiskTarget      int
	TargetElectives int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		DataDir:      v.GetString("DB_DATA_DIR"),
		URL:          strings.TrimSpace(v.GetString("DATABASE_URL")),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Enabled:    v.GetBool("AUTH_ENABLED"),
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("IMPORT_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 20 * 1024 * 1024
	}
	cfg.Imports = ImportsConfig{
		ReportsEnabled: v.GetBool("IMPORT_REPORTS_ENABLED"),
		ReportTTL:      parseDuration(v.GetString("IMPORT_REPORT_TTL"), 72*time.Hour),
		MaxUploadBytes: maxUpload,
		QueueBuffer:    v.GetInt("IMPORT_QUEUE_BUFFER"),
		UploadDir:      v.GetString("IMPORT_UPLOAD_DIR"),
	}
	if cfg.Imports.UploadDir == "" {
		cfg.Imports.UploadDir = filepath.Join(cfg.Database.dataDir(), "uploads")
	}

	cfg.Rules = RulesConfig{
		ElectiveType:    v.GetString("ELECTIVE_TYPE"),
		RequiredCount:   v.GetInt("RULE_REQUIRED_COUNT"),
		RiskTarget:      v.GetInt("RISK_TARGET_COUNT"),
		TargetElectives: v.GetInt("RULE_TARGET_ELECTIVES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DATA_DIR", "data")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 4)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "rutas-academicas")
	v.SetDefault("JWT_EXPIRATION", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("IMPORT_REPORTS_ENABLED", false)
	v.SetDefault("IMPORT_REPORT_TTL", "72h")
	v.SetDefault("IMPORT_MAX_UPLOAD_BYTES", 20*1024*1024)
	v.SetDefault("IMPORT_QUEUE_BUFFER", 8)
	v.SetDefault("IMPORT_UPLOAD_DIR", "")

	v.SetDefault("ELECTIVE_TYPE", "electiva")
	v.SetDefault("RULE_REQUIRED_COUNT", 5)
	v.SetDefault("RISK_TARGET_COUNT", 5)
	v.SetDefault("RULE_TARGET_ELECTIVES", 8)
}

// SQLitePath returns the database file used when no URL override is set.
func (c DatabaseConfig) SQLitePath() string {
	return filepath.Join(c.dataDir(), "app.db")
}

func (c DatabaseConfig) dataDir() string {
	if c.DataDir == "" {
		return "data"
	}
	return c.DataDir
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
