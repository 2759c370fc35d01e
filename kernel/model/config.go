package model

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	ConfigFileName    = "awsprov_config.json"
	TemplatesFileName = "awsprov_templates.json"
)

const (
	DatabaseJSON     = "json"
	DatabaseSQLite   = "sqlite"
	DatabaseDynamoDB = "dynamodb"
	DatabaseBadger   = "badger"
	DatabaseMemory   = "memory"
)

const (
	SchedulerHostFactory = "hostfactory"
	SchedulerDefault     = "default"
)

type DatabaseConfig struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`
	TablePrefix string `yaml:"tablePrefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
}

type EventsConfig struct {
	NatsURL      string `yaml:"natsUrl"`
	NatsSubject  string `yaml:"natsSubject"`
	InfluxURL    string `yaml:"influxUrl"`
	InfluxToken  string `yaml:"influxToken"`
	InfluxOrg    string `yaml:"influxOrg"`
	InfluxBucket string `yaml:"influxBucket"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// ProviderConfig is the resolved process configuration. It is loaded once by
// the command layer and handed to every component that needs it.
type ProviderConfig struct {
	ConfDir string `yaml:"-"`
	WorkDir string `yaml:"workDir"`
	LogDir  string `yaml:"logDir"`

	LogLevel string `yaml:"logLevel"`

	Region      string        `yaml:"region"`
	Profile     string        `yaml:"profile"`
	Endpoint    string        `yaml:"endpoint"`
	MaxRetries  int           `yaml:"maxRetries"`
	CallTimeout time.Duration `yaml:"callTimeout"`

	Database      DatabaseConfig `yaml:"database"`
	TemplatesFile string         `yaml:"templatesFile"`
	Scheduler     string         `yaml:"scheduler"`

	RequestRetention  time.Duration `yaml:"requestRetention"`
	ReturnGracePeriod time.Duration `yaml:"returnGracePeriod"`
	LockRequests      bool          `yaml:"lockRequests"`

	DefaultTags map[string]string `yaml:"defaultTags"`

	Events EventsConfig `yaml:"events"`
	Server ServerConfig `yaml:"server"`

	mu sync.Mutex
}

// ConfigDir resolves the provider configuration directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv("HF_PROVIDER_CONFDIR"); dir != "" {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "unable to determine working directory")
	}
	return filepath.Join(wd, "conf"), nil
}

// LoadConfig reads <confDir>/awsprov_config.json, overlays the environment and
// applies defaults. A missing file is not an error.
func LoadConfig(confDir string) (*ProviderConfig, error) {
	cfg := &ProviderConfig{ConfDir: confDir}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reload re-reads the configuration file and environment in place.
func (c *ProviderConfig) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := &ProviderConfig{ConfDir: c.ConfDir}
	if err := fresh.load(); err != nil {
		return err
	}
	c.copyFrom(fresh)
	return nil
}

func (c *ProviderConfig) copyFrom(o *ProviderConfig) {
	c.WorkDir, c.LogDir, c.LogLevel = o.WorkDir, o.LogDir, o.LogLevel
	c.Region, c.Profile, c.Endpoint = o.Region, o.Profile, o.Endpoint
	c.MaxRetries, c.CallTimeout = o.MaxRetries, o.CallTimeout
	c.Database, c.TemplatesFile, c.Scheduler = o.Database, o.TemplatesFile, o.Scheduler
	c.RequestRetention, c.ReturnGracePeriod = o.RequestRetention, o.ReturnGracePeriod
	c.LockRequests, c.DefaultTags = o.LockRequests, o.DefaultTags
	c.Events, c.Server = o.Events, o.Server
}

func (c *ProviderConfig) load() error {
	if path := c.configFile(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read config [%s]", path)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return errors.Wrapf(err, "failed to parse config [%s]", path)
		}
	}
	if err := c.applyEnv(); err != nil {
		return err
	}
	return c.CheckAndSetDefaults()
}

func (c *ProviderConfig) configFile() string {
	if c.ConfDir == "" {
		return ""
	}
	for _, name := range []string{ConfigFileName, "awsprov_config.yml", "awsprov_config.yaml"} {
		path := filepath.Join(c.ConfDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *ProviderConfig) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("HF_PROVIDER_WORKDIR", &c.WorkDir)
	setString("HF_PROVIDER_LOGDIR", &c.LogDir)
	setString("HF_LOGLEVEL", &c.LogLevel)
	setString("AWS_REGION", &c.Region)
	setString("AWS_PROFILE", &c.Profile)
	setString("HF_DB_TYPE", &c.Database.Type)
	setString("HF_DB_PATH", &c.Database.Path)
	setString("HF_DB_TABLE_PREFIX", &c.Database.TablePrefix)
	setString("HF_TEMPLATES_FILE", &c.TemplatesFile)
	setString("HF_SCHEDULER", &c.Scheduler)
	setString("HF_NATS_URL", &c.Events.NatsURL)
	setString("HF_INFLUX_URL", &c.Events.InfluxURL)
	setString("HF_INFLUX_TOKEN", &c.Events.InfluxToken)

	if v := os.Getenv("HF_AWS_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid HF_AWS_MAX_RETRIES [%s]", v)
		}
		c.MaxRetries = n
	}
	durations := map[string]*time.Duration{
		"HF_AWS_TIMEOUT":         &c.CallTimeout,
		"HF_REQUEST_RETENTION":   &c.RequestRetention,
		"HF_RETURN_GRACE_PERIOD": &c.ReturnGracePeriod,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s [%s]", key, v)
			}
			*dst = d
		}
	}
	if v := os.Getenv("HF_LOCK_REQUESTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid HF_LOCK_REQUESTS [%s]", v)
		}
		c.LockRequests = b
	}
	return nil
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *ProviderConfig) CheckAndSetDefaults() error {
	if c.WorkDir == "" {
		if c.ConfDir != "" {
			c.WorkDir = filepath.Join(filepath.Dir(c.ConfDir), "work")
		} else {
			c.WorkDir = filepath.Join(os.TempDir(), "hfprovider")
		}
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(filepath.Dir(c.WorkDir), "log")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.MaxRetries < 0 {
		return NewValidationError("maxRetries must not be negative")
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.CallTimeout < 0 {
		return NewValidationError("callTimeout must not be negative")
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}

	c.Database.Type = strings.ToLower(c.Database.Type)
	if c.Database.Type == "" {
		c.Database.Type = DatabaseJSON
	}
	switch c.Database.Type {
	case DatabaseJSON, DatabaseSQLite, DatabaseBadger:
		if c.Database.Path == "" {
			c.Database.Path = filepath.Join(c.WorkDir, defaultDatabaseFile(c.Database.Type))
		}
	case DatabaseDynamoDB:
		if c.Database.TablePrefix == "" {
			c.Database.TablePrefix = "hfprovider_"
		}
		if c.Database.Region == "" {
			c.Database.Region = c.Region
		}
	case DatabaseMemory:
	default:
		return NewValidationError("unknown database type [%s]", c.Database.Type)
	}

	if c.TemplatesFile == "" {
		c.TemplatesFile = filepath.Join(c.ConfDir, TemplatesFileName)
	}

	c.Scheduler = strings.ToLower(c.Scheduler)
	if c.Scheduler == "" {
		c.Scheduler = SchedulerHostFactory
	}
	if c.Scheduler != SchedulerHostFactory && c.Scheduler != SchedulerDefault {
		return NewValidationError("unknown scheduler [%s]", c.Scheduler)
	}

	if c.RequestRetention < 0 || c.ReturnGracePeriod < 0 {
		return NewValidationError("retention periods must not be negative")
	}
	if c.RequestRetention == 0 {
		c.RequestRetention = 14 * 24 * time.Hour
	}
	if c.ReturnGracePeriod == 0 {
		c.ReturnGracePeriod = time.Hour
	}

	if c.Events.NatsSubject == "" {
		c.Events.NatsSubject = "hfprovider.requests"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	return nil
}

func defaultDatabaseFile(dbType string) string {
	switch dbType {
	case DatabaseSQLite:
		return "request_db.sqlite"
	case DatabaseBadger:
		return "request_db.badger"
	default:
		return "request_db.json"
	}
}
