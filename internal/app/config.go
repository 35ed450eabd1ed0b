package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/trackflow-backend/internal/data/db"
	"github.com/yungbote/trackflow-backend/internal/platform/envutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/temporalx"
)

// Config is read from the YAML file named by TRACKFLOW_CONFIG (optional), then overridden
// key by key from the environment.
type Config struct {
	Port        string   `yaml:"port"`
	LogMode     string   `yaml:"log_mode"`
	ServiceName string   `yaml:"service_name"`
	Environment string   `yaml:"environment"`
	CORSOrigins []string `yaml:"cors_allowed_origins"`
	RunServer   bool     `yaml:"run_server"`
	RunWorker   bool     `yaml:"run_worker"`

	JWTSecretKey string `yaml:"jwt_secret_key"`

	DBDriver         string        `yaml:"db_driver"`
	PostgresHost     string        `yaml:"postgres_host"`
	PostgresPort     string        `yaml:"postgres_port"`
	PostgresUser     string        `yaml:"postgres_user"`
	PostgresPassword string        `yaml:"postgres_password"`
	PostgresName     string        `yaml:"postgres_name"`
	PostgresSSLMode  string        `yaml:"postgres_sslmode"`
	SQLitePath       string        `yaml:"sqlite_path"`
	DBMaxOpenConns   int           `yaml:"db_max_open_conns"`
	DBSlowThreshold  time.Duration `yaml:"db_slow_threshold"`

	ObjectStorageMode   string `yaml:"object_storage_mode"`
	StorageEmulatorHost string `yaml:"storage_emulator_host"`
	QCImageBucket       string `yaml:"qc_gcs_bucket_name"`
	QCImageCDNDomain    string `yaml:"qc_cdn_domain"`
	DrawingBucket       string `yaml:"drawing_gcs_bucket_name"`
	DrawingCDNDomain    string `yaml:"drawing_cdn_domain"`
	StoragePublicURL    string `yaml:"object_storage_public_base_url"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisChannel  string `yaml:"redis_channel"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	MetricsAddr string `yaml:"metrics_addr"`

	Temporal temporalx.Config `yaml:"temporal"`
}

func defaultConfig() Config {
	return Config{
		Port:           "8080",
		LogMode:        "development",
		ServiceName:    "trackflow-api",
		Environment:    "development",
		RunServer:      true,
		DBDriver:       db.DriverPostgres,
		PostgresHost:   "localhost",
		PostgresPort:   "5432",
		PostgresUser:   "postgres",
		PostgresName:   "trackflow",
		SQLitePath:     "trackflow.db",
		DBMaxOpenConns: 25,
		RedisChannel:   "trackflow:sse",
		KafkaTopic:     "trackflow.tracking",
		MetricsAddr:    ":9090",
	}
}

// LoadConfig never fails on a missing file; an unreadable or malformed file is an error.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("TRACKFLOW_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if log != nil {
		log.Info("Config resolved",
			"db_driver", cfg.DBDriver,
			"storage_mode", cfg.ObjectStorageMode,
			"redis", cfg.RedisAddr != "",
			"kafka", len(cfg.KafkaBrokers) > 0,
			"temporal", cfg.Temporal.Enabled(),
			"run_server", cfg.RunServer,
			"run_worker", cfg.RunWorker,
		)
	}
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = envutil.String("APP_ENV", cfg.Environment)
	cfg.CORSOrigins = envutil.List("CORS_ALLOWED_ORIGINS", cfg.CORSOrigins)
	cfg.RunServer = envutil.Bool("RUN_SERVER", cfg.RunServer)
	cfg.RunWorker = envutil.Bool("RUN_WORKER", cfg.RunWorker)
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)

	cfg.DBDriver = envutil.String("DB_DRIVER", cfg.DBDriver)
	cfg.PostgresHost = envutil.String("POSTGRES_HOST", cfg.PostgresHost)
	cfg.PostgresPort = envutil.String("POSTGRES_PORT", cfg.PostgresPort)
	cfg.PostgresUser = envutil.String("POSTGRES_USER", cfg.PostgresUser)
	cfg.PostgresPassword = envutil.String("POSTGRES_PASSWORD", cfg.PostgresPassword)
	cfg.PostgresName = envutil.String("POSTGRES_NAME", cfg.PostgresName)
	cfg.PostgresSSLMode = envutil.String("POSTGRES_SSLMODE", cfg.PostgresSSLMode)
	cfg.SQLitePath = envutil.String("SQLITE_PATH", cfg.SQLitePath)
	cfg.DBMaxOpenConns = envutil.Int("DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns)
	cfg.DBSlowThreshold = envutil.Duration("DB_SLOW_THRESHOLD", cfg.DBSlowThreshold)

	cfg.ObjectStorageMode = envutil.String("OBJECT_STORAGE_MODE", cfg.ObjectStorageMode)
	cfg.StorageEmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.StorageEmulatorHost)
	cfg.QCImageBucket = envutil.String("QC_GCS_BUCKET_NAME", cfg.QCImageBucket)
	cfg.QCImageCDNDomain = envutil.String("QC_CDN_DOMAIN", cfg.QCImageCDNDomain)
	cfg.DrawingBucket = envutil.String("DRAWING_GCS_BUCKET_NAME", cfg.DrawingBucket)
	cfg.DrawingCDNDomain = envutil.String("DRAWING_CDN_DOMAIN", cfg.DrawingCDNDomain)
	cfg.StoragePublicURL = envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", cfg.StoragePublicURL)

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envutil.String("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisChannel = envutil.String("REDIS_CHANNEL", cfg.RedisChannel)

	cfg.KafkaBrokers = envutil.List("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envutil.String("KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)

	cfg.Temporal = temporalx.LoadConfig(cfg.Temporal)
	return cfg
}

func (c Config) validate() error {
	if c.RunServer && strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required when RUN_SERVER is set")
	}
	if c.RunWorker && !c.Temporal.Enabled() {
		return fmt.Errorf("RUN_WORKER requires TEMPORAL_ADDRESS")
	}
	switch c.DBDriver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

func (c Config) DBConfig() db.Config {
	return db.Config{
		Driver:           c.DBDriver,
		PostgresHost:     c.PostgresHost,
		PostgresPort:     c.PostgresPort,
		PostgresUser:     c.PostgresUser,
		PostgresPassword: c.PostgresPassword,
		PostgresName:     c.PostgresName,
		PostgresSSLMode:  c.PostgresSSLMode,
		SQLitePath:       c.SQLitePath,
		MaxOpenConns:     c.DBMaxOpenConns,
		MaxIdleConns:     c.DBMaxOpenConns / 2,
		ConnMaxLifetime:  30 * time.Minute,
		SlowThreshold:    c.DBSlowThreshold,
	}
}
