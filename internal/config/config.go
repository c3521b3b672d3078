// Package config provides configuration loading, validation, and management
// for the pubplan application. It handles reading from YAML files, environment
// variables, setting default values, and validating configuration parameters.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	apperrors "github.com/edgard/pubplan/internal/errors"
)

// Config defines the application configuration parameters for all components
// of the pubplan system: logging, HTTP API, Telegram bot, database, and the
// background job scheduler.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"       validate:"required"`
	UploadDir string `mapstructure:"upload_dir" validate:"required"`
}

// TelegramConfig holds bot credentials and the publication channel.
type TelegramConfig struct {
	Token     string `mapstructure:"token"      validate:"required"`
	AdminID   int64  `mapstructure:"admin_id"   validate:"required,gt=0"`
	ChannelID int64  `mapstructure:"channel_id"`
}

// DatabaseConfig holds the SQLite database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig configures the background job scheduler.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a single scheduled task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig reads configuration from the given YAML file, layering
// PUBPLAN_* environment variables over it, applies defaults for optional
// fields, and validates the result. A missing config file is not an error;
// defaults and environment variables are used instead.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PUBPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, apperrors.NewConfigError("failed to read config file", err)
		}
		slog.Info("configuration file not found, using defaults", "path", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to parse config", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	slog.Debug("configuration loaded",
		"log_level", cfg.Log.Level,
		"server_addr", cfg.Server.Addr,
		"db_path", cfg.Database.Path,
		"scheduler_tasks", len(cfg.Scheduler.Tasks))

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.upload_dir", "./uploads")

	v.SetDefault("database.path", "pubplan.db")

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"publish_dispatcher": {Enabled: true, Schedule: "* * * * *"},
		"sql_maintenance":    {Enabled: true, Schedule: "0 4 * * 0"},
	})
}
