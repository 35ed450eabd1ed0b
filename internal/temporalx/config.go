package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/trackflow-backend/internal/platform/envutil"
)

const (
	DefaultNamespace = "trackflow"
	DefaultTaskQueue = "trackflow"
)

type Config struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`

	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	ClientCAPath   string `yaml:"client_ca_path"`

	AutoRegisterNamespace bool          `yaml:"auto_register_namespace"`
	NamespaceRetention    time.Duration `yaml:"namespace_retention"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	DialMaxWait           time.Duration `yaml:"dial_max_wait"`
	WorkerConcurrency     int           `yaml:"worker_concurrency"`
}

// LoadConfig layers TEMPORAL_* environment variables over base.
func LoadConfig(base Config) Config {
	cfg := base.withDefaults()
	cfg.Address = envutil.String("TEMPORAL_ADDRESS", cfg.Address)
	cfg.Namespace = envutil.String("TEMPORAL_NAMESPACE", cfg.Namespace)
	cfg.TaskQueue = envutil.String("TEMPORAL_TASK_QUEUE", cfg.TaskQueue)
	cfg.ClientCertPath = envutil.String("TEMPORAL_CLIENT_CERT_PATH", cfg.ClientCertPath)
	cfg.ClientKeyPath = envutil.String("TEMPORAL_CLIENT_KEY_PATH", cfg.ClientKeyPath)
	cfg.ClientCAPath = envutil.String("TEMPORAL_CLIENT_CA_PATH", cfg.ClientCAPath)
	cfg.AutoRegisterNamespace = envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", cfg.AutoRegisterNamespace)
	cfg.NamespaceRetention = envutil.Duration("TEMPORAL_NAMESPACE_RETENTION", cfg.NamespaceRetention)
	cfg.DialTimeout = envutil.Duration("TEMPORAL_DIAL_TIMEOUT", cfg.DialTimeout)
	cfg.DialMaxWait = envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", cfg.DialMaxWait)
	cfg.WorkerConcurrency = envutil.Int("WORKER_CONCURRENCY", cfg.WorkerConcurrency)
	return cfg.withDefaults()
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func (c Config) usesTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func (c Config) withDefaults() Config {
	c.Address = strings.TrimSpace(c.Address)
	if strings.TrimSpace(c.Namespace) == "" {
		c.Namespace = DefaultNamespace
	}
	if strings.TrimSpace(c.TaskQueue) == "" {
		c.TaskQueue = DefaultTaskQueue
	}
	if c.NamespaceRetention < 24*time.Hour {
		c.NamespaceRetention = 7 * 24 * time.Hour
	}
	if c.NamespaceRetention > 365*24*time.Hour {
		c.NamespaceRetention = 365 * 24 * time.Hour
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DialMaxWait < 0 {
		c.DialMaxWait = 0
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 4
	}
	return c
}
