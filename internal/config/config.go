// Package config loads service configuration from defaults, an optional
// YAML file named by NLDI_CONFIG, and environment overrides, in that
// order. YAML values may reference environment variables as ${VAR}.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/internetofwater/nldi-go/internal/errs"
)

// Server holds the HTTP listener and public URL settings.
type Server struct {
	URL         string  `yaml:"url"`
	BasePath    string  `yaml:"base_path"`
	Port        int     `yaml:"port"`
	PrettyPrint bool    `yaml:"pretty_print"`
	RateLimit   float64 `yaml:"rate_limit"`
}

// Database holds the PostGIS connection settings.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DBName   string `yaml:"dbname"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	PoolSize int    `yaml:"pool_size"`
}

// Pygeoapi holds the remote geoprocessing endpoint settings.
type Pygeoapi struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Logging selects the zap environment and level.
type Logging struct {
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
}

// Metadata feeds the landing page and the OpenAPI document.
type Metadata struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Source is one crawler source definition used by align-sources. Field
// names follow the nldi_data.crawler_source columns.
type Source struct {
	ID             int    `yaml:"crawler_source_id"`
	SourceName     string `yaml:"source_name"`
	SourceSuffix   string `yaml:"source_suffix"`
	SourceURI      string `yaml:"source_uri"`
	FeatureID      string `yaml:"feature_id"`
	FeatureName    string `yaml:"feature_name"`
	FeatureURI     string `yaml:"feature_uri"`
	FeatureReach   string `yaml:"feature_reach"`
	FeatureMeasure string `yaml:"feature_measure"`
	IngestType     string `yaml:"ingest_type"`
	FeatureType    string `yaml:"feature_type"`
}

// Config is the root of all runtime settings.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Pygeoapi Pygeoapi `yaml:"pygeoapi"`
	Logging  Logging  `yaml:"logging"`
	Metadata Metadata `yaml:"metadata"`
	Sources  []Source `yaml:"sources"`
}

func defaults() Config {
	return Config{
		Server: Server{
			URL:      "http://127.0.0.1:80",
			BasePath: "/api/nldi",
			Port:     80,
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			DBName:   "nldi",
			User:     "nldi",
			Password: "changeMe",
			PoolSize: 4,
		},
		Pygeoapi: Pygeoapi{
			URL:            "https://labs.waterdata.usgs.gov/api/nldi/pygeoapi",
			TimeoutSeconds: 30,
		},
		Logging: Logging{
			Environment: "production",
			Level:       "info",
		},
		Metadata: Metadata{
			Title:       "Network Linked Data Index",
			Description: "The NLDI is a search service that takes a watershed outlet identifier and returns linked data from the hydro network.",
		},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}^{]+)\}`)

// interpolate replaces ${VAR} references in raw YAML with environment
// values. Undefined variables resolve to the empty string.
func interpolate(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads configuration from defaults, the optional YAML file named
// by NLDI_CONFIG, and environment variables.
func Load(log *zap.Logger) (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := defaults()

	if path := os.Getenv("NLDI_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errs.Wrap(errs.ConfigurationError, err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(interpolate(raw), &cfg); err != nil {
			return cfg, errs.Wrap(errs.ConfigurationError, err, "parsing config file %s", path)
		}
		log.Info("loaded configuration file", zap.String("path", path))
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("NLDI_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("NLDI_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("NLDI_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errs.New(errs.ConfigurationError, "invalid NLDI_PORT: %s", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("NLDI_PRETTY"); v != "" {
		c.Server.PrettyPrint = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("NLDI_RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.ConfigurationError, "invalid NLDI_RATE_LIMIT: %s", v)
		}
		c.Server.RateLimit = limit
	}
	if v := os.Getenv("NLDI_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("NLDI_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errs.New(errs.ConfigurationError, "invalid NLDI_DB_PORT: %s", v)
		}
		c.Database.Port = port
	}
	if v := os.Getenv("NLDI_DB_NAME"); v != "" {
		c.Database.DBName = v
	}
	if v := os.Getenv("NLDI_DB_USERNAME"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("NLDI_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("NLDI_DB_POOL_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return errs.New(errs.ConfigurationError, "invalid NLDI_DB_POOL_SIZE: %s", v)
		}
		c.Database.PoolSize = size
	}
	if v := os.Getenv("PYGEOAPI_URL"); v != "" {
		c.Pygeoapi.URL = v
	}
	if v := os.Getenv("PYGEOAPI_TIMEOUT"); v != "" {
		timeout, err := strconv.Atoi(v)
		if err != nil {
			return errs.New(errs.ConfigurationError, "invalid PYGEOAPI_TIMEOUT: %s", v)
		}
		c.Pygeoapi.TimeoutSeconds = timeout
	}
	if v := os.Getenv("NLDI_ENV"); v != "" {
		c.Logging.Environment = v
	}
	if v := os.Getenv("NLDI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errs.New(errs.ConfigurationError, "server port out of range: %d", c.Server.Port)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return errs.New(errs.ConfigurationError, "database port out of range: %d", c.Database.Port)
	}
	if c.Database.PoolSize < 1 {
		return errs.New(errs.ConfigurationError, "pool size must be at least 1: %d", c.Database.PoolSize)
	}
	if c.Pygeoapi.TimeoutSeconds <= 0 {
		return errs.New(errs.ConfigurationError, "pygeoapi timeout must be positive: %d", c.Pygeoapi.TimeoutSeconds)
	}
	if c.Server.RateLimit < 0 {
		return errs.New(errs.ConfigurationError, "rate limit must not be negative: %v", c.Server.RateLimit)
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		suffix := strings.ToLower(src.SourceSuffix)
		if suffix == "" {
			return errs.New(errs.ConfigurationError, "source %d has no suffix", src.ID)
		}
		if suffix == "comid" {
			return errs.New(errs.ConfigurationError, "the comid source suffix is reserved")
		}
		if _, dup := seen[suffix]; dup {
			return errs.New(errs.ConfigurationError, "duplicate source suffix: %s", suffix)
		}
		seen[suffix] = struct{}{}
	}
	return nil
}

// RootURL returns the public base URL of the service, with the base path
// appended and no trailing slash.
func (c Config) RootURL() string {
	u := strings.TrimRight(c.Server.URL, "/")
	p := strings.Trim(c.Server.BasePath, "/")
	if p == "" {
		return u
	}
	return u + "/" + p
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// DSN builds the pgx connection string. The password never appears in
// logs; callers log Redacted() instead.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// Redacted returns the DSN with the password masked.
func (d Database) Redacted() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s",
		d.User, d.Host, d.Port, d.DBName)
}
