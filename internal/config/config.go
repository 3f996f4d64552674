package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/phlwatch/digest-cli/internal/provider"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Provider    ProviderConfig    `yaml:"provider" mapstructure:"provider"`
	Geodata     GeodataConfig     `yaml:"geodata" mapstructure:"geodata"`
	Digest      DigestConfig      `yaml:"digest" mapstructure:"digest"`
	Buttondown  ButtondownConfig  `yaml:"buttondown" mapstructure:"buttondown"`
	Subscribers SubscribersConfig `yaml:"subscribers" mapstructure:"subscribers"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderConfig configures the ArcGIS record source.
type ProviderConfig struct {
	PermitsURL  string  `yaml:"permits_url" mapstructure:"permits_url"`
	AppealsURL  string  `yaml:"appeals_url" mapstructure:"appeals_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
}

// GeodataConfig configures boundary datasets.
type GeodataConfig struct {
	Dir                string `yaml:"dir" mapstructure:"dir"`
	NeighborhoodsURL   string `yaml:"neighborhoods_url" mapstructure:"neighborhoods_url"`
	DistrictsURL       string `yaml:"districts_url" mapstructure:"districts_url"`
	NeighborhoodsFile  string `yaml:"neighborhoods_file" mapstructure:"neighborhoods_file"`
	DistrictsFile      string `yaml:"districts_file" mapstructure:"districts_file"`
	ShapefileNameField string `yaml:"shapefile_name_field" mapstructure:"shapefile_name_field"`
}

// DigestConfig configures digest assembly.
type DigestConfig struct {
	MinUnits             int `yaml:"min_units" mapstructure:"min_units"`
	LookbackDays         int `yaml:"lookback_days" mapstructure:"lookback_days"`
	FreshnessWarningDays int `yaml:"freshness_warning_days" mapstructure:"freshness_warning_days"`
}

// ButtondownConfig holds Buttondown API settings.
type ButtondownConfig struct {
	APIKey  string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// SubscribersConfig points at the local subscriber file used when no
// Buttondown key is configured.
type SubscribersConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "digest.db")
	v.SetDefault("provider.permits_url", "https://services.arcgis.com/fLeGjb7u4uXqeF9q/arcgis/rest/services/PERMITS/FeatureServer/0/query")
	v.SetDefault("provider.appeals_url", "https://services.arcgis.com/fLeGjb7u4uXqeF9q/arcgis/rest/services/APPEALS/FeatureServer/0/query")
	v.SetDefault("provider.user_agent", "digest-cli/1.0")
	v.SetDefault("provider.timeout_secs", 30)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.rps", 4)
	v.SetDefault("geodata.dir", "geodata")
	v.SetDefault("geodata.neighborhoods_url", provider.NeighborhoodsURL)
	v.SetDefault("geodata.districts_url", provider.CouncilDistrictsURL)
	v.SetDefault("geodata.neighborhoods_file", "neighborhoods.geojson")
	v.SetDefault("geodata.districts_file", "council_districts.geojson")
	v.SetDefault("geodata.shapefile_name_field", "NAME")
	v.SetDefault("digest.min_units", 3)
	v.SetDefault("digest.lookback_days", 7)
	v.SetDefault("digest.freshness_warning_days", 7)
	v.SetDefault("buttondown.base_url", "https://api.buttondown.email/v1")
	v.SetDefault("buttondown.rps", 2)
	v.SetDefault("subscribers.file", "subscribers.yaml")
	v.SetDefault("server.port", 8080)
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

	return &cfg, nil
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
