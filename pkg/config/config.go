package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Scheduler struct {
		DiscoveryInterval   time.Duration `mapstructure:"DISCOVERY_INTERVAL"`
		MaintenanceInterval time.Duration `mapstructure:"MAINTENANCE_INTERVAL"`
		PoolSize            int           `mapstructure:"POOL_SIZE"`
		BatchSize           int           `mapstructure:"BATCH_SIZE"`
		HandlerTimeout      time.Duration `mapstructure:"HANDLER_TIMEOUT"`
		BackoffUnit         time.Duration `mapstructure:"BACKOFF_UNIT"`
		StallTimeout        time.Duration `mapstructure:"STALL_TIMEOUT"`
		RetentionHorizon    time.Duration `mapstructure:"RETENTION_HORIZON"`
		DefaultMaxRetries   int           `mapstructure:"DEFAULT_MAX_RETRIES"`
	} `mapstructure:"SCHEDULER"`
	Intent struct {
		Addr    string        `mapstructure:"ADDR"`
		Timeout time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"INTENT"`
	Notify struct {
		Enabled    bool   `mapstructure:"ENABLED"`
		WebhookURL string `mapstructure:"WEBHOOK_URL"`
	} `mapstructure:"NOTIFY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "agentplane")

	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("DATABASE.DBNAME", "agentplane.db")

	v.SetDefault("SCHEDULER.DISCOVERY_INTERVAL", 15*time.Second)
	v.SetDefault("SCHEDULER.MAINTENANCE_INTERVAL", 5*time.Minute)
	v.SetDefault("SCHEDULER.POOL_SIZE", 4)
	v.SetDefault("SCHEDULER.BATCH_SIZE", 50)
	v.SetDefault("SCHEDULER.HANDLER_TIMEOUT", 2*time.Minute)
	v.SetDefault("SCHEDULER.BACKOFF_UNIT", time.Minute)
	v.SetDefault("SCHEDULER.STALL_TIMEOUT", 10*time.Minute)
	v.SetDefault("SCHEDULER.RETENTION_HORIZON", 720*time.Hour)
	v.SetDefault("SCHEDULER.DEFAULT_MAX_RETRIES", 3)

	v.SetDefault("INTENT.TIMEOUT", 10*time.Second)
}
