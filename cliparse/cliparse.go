package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultPort              = 3318
	DefaultDatabaseType      = "sqlite"
	DefaultNATSSubject       = "annotate.assignments"
	DefaultMaxAssignAttempts = 5
	DefaultSweepInterval     = time.Minute
)

type Config struct {
	Port              int
	DatabaseURL       string
	DatabaseType      string
	IPHashSalt        string
	NATSURL           string
	NATSSubject       string
	MaxAssignAttempts int
	SweepInterval     time.Duration
}

// FileConfig is the optional YAML config file layout.
type FileConfig struct {
	Port     int `yaml:"port"`
	Database struct {
		URL  string `yaml:"url"`
		Type string `yaml:"type"`
	} `yaml:"database"`
	IPHashSalt string `yaml:"ip_hash_salt"`
	NATS       struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
	Assignment struct {
		MaxAttempts   int           `yaml:"max_attempts"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"assignment"`
}

// LoadFile reads a YAML config file.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file: %w", err)
	}
	return fc, nil
}

// ParseFlags validates flags and fills the rest from the environment,
// an optional .env file, an optional YAML file and defaults, in that order.
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var configFile, envFile string

	fs := flag.NewFlagSet("quickly-annotate", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.NATSURL, "nats", "", "NATS URL for assignment events (optional)")
	fs.StringVar(&cfg.NATSSubject, "nats-subject", "", "NATS subject for assignment events")

	// Engine tuning
	fs.IntVar(&cfg.MaxAssignAttempts, "max-attempts", 0, "Commit attempts before a lost race counts as quota full")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 0, "How often stale sessions are expired")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.IPHashSalt, "ip-salt", "", "IP hash salt (prefer env)")

	fs.StringVar(&configFile, "c", "", "YAML config file")
	fs.StringVar(&envFile, "env", ".env", "dotenv file, ignored when missing")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// godotenv never overrides variables that are already set
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	var file FileConfig
	if configFile != "" {
		var err error
		file, err = LoadFile(configFile)
		if err != nil {
			return Config{}, err
		}
	}

	// Fall back to environment variables, then the file, then defaults
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else if file.Port != 0 {
			cfg.Port = file.Port
		} else {
			cfg.Port = DefaultPort
		}
	}

	cfg.DatabaseURL = firstNonEmpty(cfg.DatabaseURL, os.Getenv("DATABASE_URL"), file.Database.URL)
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	cfg.DatabaseType = firstNonEmpty(cfg.DatabaseType, os.Getenv("DATABASE_TYPE"), file.Database.Type, DefaultDatabaseType)
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	cfg.NATSURL = firstNonEmpty(cfg.NATSURL, os.Getenv("NATS_URL"), file.NATS.URL)
	cfg.NATSSubject = firstNonEmpty(cfg.NATSSubject, os.Getenv("NATS_SUBJECT"), file.NATS.Subject, DefaultNATSSubject)

	if cfg.MaxAssignAttempts == 0 {
		if v := os.Getenv("MAX_ASSIGN_ATTEMPTS"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return Config{}, errors.New("invalid MAX_ASSIGN_ATTEMPTS env variable")
			}
			cfg.MaxAssignAttempts = n
		} else if file.Assignment.MaxAttempts != 0 {
			cfg.MaxAssignAttempts = file.Assignment.MaxAttempts
		} else {
			cfg.MaxAssignAttempts = DefaultMaxAssignAttempts
		}
	}
	if cfg.MaxAssignAttempts < 1 {
		return Config{}, errors.New("max assign attempts must be at least 1")
	}

	if cfg.SweepInterval == 0 {
		if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, errors.New("invalid SWEEP_INTERVAL env variable")
			}
			cfg.SweepInterval = d
		} else if file.Assignment.SweepInterval != 0 {
			cfg.SweepInterval = file.Assignment.SweepInterval
		} else {
			cfg.SweepInterval = DefaultSweepInterval
		}
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, errors.New("sweep interval must be positive")
	}

	// Secrets - MUST be provided
	cfg.IPHashSalt = firstNonEmpty(cfg.IPHashSalt, os.Getenv("IP_HASH_SALT"), file.IPHashSalt)
	if cfg.IPHashSalt == "" {
		return Config{}, errors.New("IP_HASH_SALT required")
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
