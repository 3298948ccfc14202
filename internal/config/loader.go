package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "GENSCHED"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("gensched")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gensched")
		v.AddConfigPath("/etc/gensched")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

// setViperDefaults registers every key so that environment overrides work
// for keys absent from the config file.
func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("scheduler.retry_on_failure", cfg.Scheduler.RetryOnFailure)
	v.SetDefault("scheduler.max_retry", cfg.Scheduler.MaxRetry)
	v.SetDefault("scheduler.retry_wait_delay", cfg.Scheduler.RetryWaitDelay)
	v.SetDefault("scheduler.late_execution_tolerance", cfg.Scheduler.LateExecutionTolerance)
	v.SetDefault("scheduler.database_check_interval", cfg.Scheduler.DatabaseCheckInterval)
	v.SetDefault("scheduler.max_tasks_degree_of_parallelism", cfg.Scheduler.MaxTasksDegreeOfParallelism)
	v.SetDefault("scheduler.auto_delete_inactive_tasks", cfg.Scheduler.AutoDeleteInactiveTasks)
	v.SetDefault("scheduler.eligibility_poll_interval", cfg.Scheduler.EligibilityPollInterval)
	v.SetDefault("scheduler.history_retention", cfg.Scheduler.HistoryRetention)

	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.wal_mode", cfg.Database.WALMode)
	v.SetDefault("database.cache_size", cfg.Database.CacheSize)
	v.SetDefault("database.busy_timeout", cfg.Database.BusyTimeout)
	v.SetDefault("database.foreign_keys", cfg.Database.ForeignKeys)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	v.SetDefault("server.enabled", cfg.Server.Enabled)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)
	v.SetDefault("server.auth.jwt_secret", cfg.Server.Auth.JWTSecret)
	v.SetDefault("server.auth.issuer", cfg.Server.Auth.Issuer)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.caller", cfg.Logging.Caller)
	v.SetDefault("logging.timestamp", cfg.Logging.Timestamp)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("tasks.file", cfg.Tasks.File)
	v.SetDefault("tasks.watch", cfg.Tasks.Watch)

	v.SetDefault("archive.enabled", cfg.Archive.Enabled)
	v.SetDefault("archive.bucket", cfg.Archive.Bucket)
	v.SetDefault("archive.prefix", cfg.Archive.Prefix)
	v.SetDefault("archive.region", cfg.Archive.Region)
	v.SetDefault("archive.endpoint", cfg.Archive.Endpoint)
	v.SetDefault("archive.access_key_id", cfg.Archive.AccessKeyID)
	v.SetDefault("archive.secret_access_key", cfg.Archive.SecretAccessKey)
	v.SetDefault("archive.use_path_style", cfg.Archive.UsePathStyle)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"gensched.yaml",
		"gensched.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "gensched", "gensched.yaml"),
		"/etc/gensched/gensched.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
