package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	AuditSinkLog   = "log"
	AuditSinkMySQL = "mysql"
)

type Config struct {
	HTTPAddr string       `yaml:"http_addr"`
	GRPCAddr string       `yaml:"grpc_addr"`
	Storage  string       `yaml:"storage"`
	MySQL    MySQLConfig  `yaml:"mysql"`
	Redis    RedisConfig  `yaml:"redis"`
	Lock     LockConfig   `yaml:"lock"`
	Ledger   LedgerConfig `yaml:"ledger"`
	Audit    AuditConfig  `yaml:"audit"`
	Log      LogConfig    `yaml:"log"`

	// Directory seeds the in-memory directory used with memory storage.
	Directory DirectorySeed `yaml:"directory"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	// Addr empty disables the benefit cache, idempotency keys and the
	// distributed lock.
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	PoolSize   int           `yaml:"pool_size"`
	BenefitTTL time.Duration `yaml:"benefit_ttl"`
}

// LockConfig bounds how long a caller waits for a (benefit, delegate) pair.
type LockConfig struct {
	Expiry     time.Duration `yaml:"expiry"`
	Tries      int           `yaml:"tries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Wait       time.Duration `yaml:"wait"`
}

type LedgerConfig struct {
	TxTimeout time.Duration `yaml:"tx_timeout"`
}

type AuditConfig struct {
	Sink      string `yaml:"sink"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

type DirectorySeed struct {
	Delegates  []DelegateSeed `yaml:"delegates"`
	Affiliates []string       `yaml:"affiliates"`
	Children   []ChildSeed    `yaml:"children"`
}

type DelegateSeed struct {
	ID     string `yaml:"id"`
	Active bool   `yaml:"active"`
}

type ChildSeed struct {
	ID          string `yaml:"id"`
	AffiliateID string `yaml:"affiliate_id"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Storage:  StorageMySQL,
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/benefits?parseTime=true&multiStatements=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   100,
			BenefitTTL: 30 * time.Second,
		},
		Lock: LockConfig{
			Expiry:     10 * time.Second,
			Tries:      10,
			RetryDelay: 50 * time.Millisecond,
			Wait:       2 * time.Second,
		},
		Ledger: LedgerConfig{TxTimeout: 5 * time.Second},
		Audit: AuditConfig{
			Sink:      AuditSinkLog,
			Workers:   4,
			QueueSize: 10000,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads defaults, then the YAML file at path (if any), then LEDGER_*
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("LEDGER_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("LEDGER_HTTP_ADDR", &c.HTTPAddr)
	str("LEDGER_GRPC_ADDR", &c.GRPCAddr)
	str("LEDGER_STORAGE", &c.Storage)
	str("LEDGER_MYSQL_DSN", &c.MySQL.DSN)
	str("LEDGER_REDIS_ADDR", &c.Redis.Addr)
	str("LEDGER_REDIS_PASSWORD", &c.Redis.Password)
	str("LEDGER_AUDIT_SINK", &c.Audit.Sink)
	str("LEDGER_LOG_LEVEL", &c.Log.Level)
	str("LEDGER_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("LEDGER_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEDGER_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	durations := map[string]*time.Duration{
		"LEDGER_TX_TIMEOUT":       &c.Ledger.TxTimeout,
		"LEDGER_LOCK_WAIT":        &c.Lock.Wait,
		"LEDGER_LOCK_RETRY_DELAY": &c.Lock.RetryDelay,
		"LEDGER_BENEFIT_TTL":      &c.Redis.BenefitTTL,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageMySQL:
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("mysql.dsn is required for mysql storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown backend %q", c.Storage))
	}
	switch c.Audit.Sink {
	case AuditSinkLog:
	case AuditSinkMySQL:
		if c.Storage != StorageMySQL {
			errs = append(errs, errors.New("audit.sink mysql requires mysql storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.sink: unknown sink %q", c.Audit.Sink))
	}
	if c.Audit.Workers <= 0 {
		errs = append(errs, errors.New("audit.workers must be positive"))
	}
	if c.Audit.QueueSize <= 0 {
		errs = append(errs, errors.New("audit.queue_size must be positive"))
	}
	if c.Lock.Tries < 1 {
		errs = append(errs, errors.New("lock.tries must be at least 1"))
	}
	if c.Lock.Expiry <= 0 || c.Lock.Wait <= 0 {
		errs = append(errs, errors.New("lock.expiry and lock.wait must be positive"))
	}
	if c.Ledger.TxTimeout <= 0 {
		errs = append(errs, errors.New("ledger.tx_timeout must be positive"))
	}
	// A lock that can lapse mid-transaction lets a second writer in.
	if c.Lock.Expiry <= c.Ledger.TxTimeout {
		errs = append(errs, errors.New("lock.expiry must exceed ledger.tx_timeout"))
	}
	return errors.Join(errs...)
}
