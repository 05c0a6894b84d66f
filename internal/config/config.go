package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Attribution AttributionConfig `yaml:"attribution" mapstructure:"attribution"`
	Source      SourceConfig      `yaml:"source" mapstructure:"source"`
	Processor   ProcessorConfig   `yaml:"processor" mapstructure:"processor"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// AttributionConfig holds the static tables the attribution engine depends on.
type AttributionConfig struct {
	Engines       map[string]string `yaml:"engines" mapstructure:"engines"`
	EnginesFile   string            `yaml:"engines_file" mapstructure:"engines_file"`
	KeywordParams []string          `yaml:"keyword_params" mapstructure:"keyword_params"`
	PurchaseEvent string            `yaml:"purchase_event" mapstructure:"purchase_event"`
	RevenueIndex  int               `yaml:"revenue_index" mapstructure:"revenue_index"`
}

// SourceConfig configures how hit records are read.
type SourceConfig struct {
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	Delimiter       string        `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding        string        `yaml:"encoding" mapstructure:"encoding"`
	DataDir         string        `yaml:"data_dir" mapstructure:"data_dir"`
	Columns         ColumnsConfig `yaml:"columns" mapstructure:"columns"`
	HTTPTimeoutSecs int           `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"`
	ClickHouseTable string        `yaml:"clickhouse_table" mapstructure:"clickhouse_table"`
	S3Region        string        `yaml:"s3_region" mapstructure:"s3_region"`
}

// ColumnsConfig maps hit record fields to input column names.
type ColumnsConfig struct {
	Timestamp string `yaml:"timestamp" mapstructure:"timestamp"`
	Visitor   string `yaml:"visitor" mapstructure:"visitor"`
	Referrer  string `yaml:"referrer" mapstructure:"referrer"`
	Events    string `yaml:"events" mapstructure:"events"`
	Products  string `yaml:"products" mapstructure:"products"`
}

// ProcessorConfig selects the execution model.
type ProcessorConfig struct {
	Mode    string `yaml:"mode" mapstructure:"mode"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig configures where reports land.
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Suffix   string `yaml:"suffix" mapstructure:"suffix"`
	S3Region string `yaml:"s3_region" mapstructure:"s3_region"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the run history API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultEngines maps known search engine hostnames to a canonical domain.
func DefaultEngines() map[string]string {
	return map[string]string{
		"google.com":          "google.com",
		"www.google.com":      "google.com",
		"google.co.uk":        "google.com",
		"www.google.co.uk":    "google.com",
		"bing.com":            "bing.com",
		"www.bing.com":        "bing.com",
		"msn.com":             "bing.com",
		"search.msn.com":      "bing.com",
		"yahoo.com":           "yahoo.com",
		"www.yahoo.com":       "yahoo.com",
		"search.yahoo.com":    "yahoo.com",
		"uk.search.yahoo.com": "yahoo.com",
		"duckduckgo.com":      "duckduckgo.com",
		"www.duckduckgo.com":  "duckduckgo.com",
		"ask.com":             "ask.com",
		"www.ask.com":         "ask.com",
	}
}

// DefaultKeywordParams lists query parameters that may carry the search
// keyword, in lookup order.
func DefaultKeywordParams() []string {
	return []string{"q", "p", "query", "qs", "text", "searchTerm", "keyword"}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KEYWORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("attribution.engines_file", "")
	v.SetDefault("attribution.keyword_params", DefaultKeywordParams())
	v.SetDefault("attribution.purchase_event", "1")
	v.SetDefault("attribution.revenue_index", 3)
	v.SetDefault("source.batch_size", 10_000)
	v.SetDefault("source.delimiter", "\t")
	v.SetDefault("source.encoding", "utf-8")
	v.SetDefault("source.data_dir", "data")
	v.SetDefault("source.columns.timestamp", "hit_time_gmt")
	v.SetDefault("source.columns.visitor", "ip")
	v.SetDefault("source.columns.referrer", "referrer")
	v.SetDefault("source.columns.events", "event_list")
	v.SetDefault("source.columns.products", "product_list")
	v.SetDefault("source.http_timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.clickhouse_table", "hits")
	v.SetDefault("source.s3_region", "us-east-1")
	v.SetDefault("processor.mode", "sequential")
	v.SetDefault("processor.workers", 8)
	v.SetDefault("output.dir", "")
	v.SetDefault("output.suffix", "_SearchKeywordPerformance.tab")
	v.SetDefault("output.s3_region", "us-east-1")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "keyword.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// viper lowercases map keys, which is what the engine table wants anyway.
	if len(cfg.Attribution.Engines) == 0 {
		cfg.Attribution.Engines = DefaultEngines()
	}
	if cfg.Attribution.EnginesFile != "" {
		engines, err := LoadEngines(cfg.Attribution.EnginesFile)
		if err != nil {
			return nil, err
		}
		cfg.Attribution.Engines = engines
	}

	return &cfg, nil
}

// Validate checks settings the report pipeline cannot run without.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Attribution.Engines) == 0 {
		problems = append(problems, "attribution.engines must not be empty")
	}
	if len(c.Attribution.KeywordParams) == 0 {
		problems = append(problems, "attribution.keyword_params must not be empty")
	}
	if strings.TrimSpace(c.Attribution.PurchaseEvent) == "" {
		problems = append(problems, "attribution.purchase_event is required")
	}
	if c.Attribution.RevenueIndex < 0 {
		problems = append(problems, "attribution.revenue_index must be >= 0")
	}
	if c.Source.BatchSize <= 0 {
		problems = append(problems, "source.batch_size must be > 0")
	}
	if len([]rune(c.Source.Delimiter)) != 1 {
		problems = append(problems, "source.delimiter must be a single character")
	}
	switch c.Processor.Mode {
	case "sequential", "parallel":
	default:
		problems = append(problems, "processor.mode must be sequential or parallel")
	}
	if c.Processor.Workers <= 0 {
		problems = append(problems, "processor.workers must be > 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		problems = append(problems, "store.driver must be sqlite, postgres, or none")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// enginesFile is the on-disk layout of an engines override file.
type enginesFile struct {
	Engines map[string]string `yaml:"engines"`
}

// LoadEngines reads a YAML file with an `engines:` hostname to domain map.
// Hostnames and domains are lowercased and trimmed.
func LoadEngines(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read engines file %s", path)
	}

	var f enginesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse engines file %s", path)
	}
	if len(f.Engines) == 0 {
		return nil, eris.Errorf("config: engines file %s has no engines", path)
	}

	engines := make(map[string]string, len(f.Engines))
	for host, domain := range f.Engines {
		host = strings.ToLower(strings.TrimSpace(host))
		domain = strings.ToLower(strings.TrimSpace(domain))
		if host == "" || domain == "" {
			continue
		}
		engines[host] = domain
	}
	return engines, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
