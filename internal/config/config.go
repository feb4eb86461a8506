package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Game     GameConfig     `yaml:"game"`
	Storage  StorageConfig  `yaml:"storage"`
	Stats    StatsConfig    `yaml:"stats"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
	// gin 模式：debug/release/test
	Mode        string   `yaml:"mode" validate:"oneof=debug release test"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	// mysql 为线上部署，sqlite 用于本地开发
	Driver   string `yaml:"driver" validate:"oneof=mysql sqlite"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
	// sqlite 文件路径（driver=sqlite 时使用）
	Path string `yaml:"path"`
	// 直接给出完整 DSN 时优先使用（对应环境变量 DATABASE_URL）
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"min=0"`
	// gorm 日志级别：silent/error/warn/info
	LogLevel string `yaml:"log_level" validate:"oneof=silent error warn info"`
}

type GameConfig struct {
	// 关卡未配置 seconds_limit 时的默认时限
	DefaultTimeLimitSeconds int `yaml:"default_time_limit_seconds" validate:"min=1"`
	// 随机种子，0 表示按启动时间取种
	Seed int64 `yaml:"seed"`
}

type StorageConfig struct {
	// 证明图片存储后端：local/supabase/gcs
	Backend        string         `yaml:"backend" validate:"oneof=local supabase gcs"`
	MaxUploadBytes int64          `yaml:"max_upload_bytes" validate:"min=1"`
	AllowedTypes   []string       `yaml:"allowed_types" validate:"min=1,dive,required"`
	RatePerMinute  int            `yaml:"rate_per_minute" validate:"min=0"`
	Local          LocalStorage   `yaml:"local"`
	Supabase       SupabaseConfig `yaml:"supabase"`
	GCS            GCSConfig      `yaml:"gcs"`
}

type LocalStorage struct {
	Dir string `yaml:"dir"`
	// 对外访问前缀，例如 http://localhost:8000/proofs
	PublicBaseURL string `yaml:"public_base_url"`
}

type SupabaseConfig struct {
	URL            string `yaml:"url"`
	ServiceRoleKey string `yaml:"service_role_key"`
	Bucket         string `yaml:"bucket"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

type StatsConfig struct {
	// cron 表达式，为空则不启动定时统计
	RefreshCron string `yaml:"refresh_cron"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

var validate = validator.New()

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML，叠加环境变量并补默认值后校验
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv 兼容旧后端的 .env 变量名
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SUPABASE_URL")); v != "" {
		c.Storage.Supabase.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")); v != "" {
		c.Storage.Supabase.ServiceRoleKey = v
	}
	if v := strings.TrimSpace(os.Getenv("SUPABASE_BUCKET")); v != "" {
		c.Storage.Supabase.Bucket = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:5173"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Charset == "" {
			c.Database.Charset = "utf8mb4"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/runquest.db"
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Game.DefaultTimeLimitSeconds == 0 {
		c.Game.DefaultTimeLimitSeconds = 60
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = 5 * 1024 * 1024
	}
	if len(c.Storage.AllowedTypes) == 0 {
		c.Storage.AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}
	if c.Storage.Local.Dir == "" {
		c.Storage.Local.Dir = "data/proofs"
	}
	if c.Storage.Local.PublicBaseURL == "" {
		c.Storage.Local.PublicBaseURL = fmt.Sprintf("http://localhost:%d/proofs", c.Server.Port)
	}
	if c.Storage.Supabase.Bucket == "" {
		c.Storage.Supabase.Bucket = "proofs"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "runquest"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	var errs []string
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err.Error())
	}

	// 跨字段校验：按后端检查必填项
	switch c.Database.Driver {
	case "mysql":
		if c.Database.DSN == "" && (c.Database.User == "" || c.Database.DBName == "") {
			errs = append(errs, "database.user 与 database.dbname 必填（或提供 DATABASE_URL）")
		}
	}
	switch c.Storage.Backend {
	case "supabase":
		if c.Storage.Supabase.URL == "" || c.Storage.Supabase.ServiceRoleKey == "" {
			errs = append(errs, "storage.supabase.url 与 service_role_key 必填")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" || c.Storage.GCS.CredentialsFile == "" {
			errs = append(errs, "storage.gcs.bucket 与 credentials_file 必填")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置校验失败: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
