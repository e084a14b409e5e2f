package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"filekeeper/internal/service/s3"
)

const envPrefix = "FILEKEEPER"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Recycle  RecycleConfig  `mapstructure:"recycle"`
	Share    ShareConfig    `mapstructure:"share"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	GRPCPort        string        `mapstructure:"grpc_port" validate:"omitempty,numeric"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

type StorageConfig struct {
	Backend    string    `mapstructure:"backend" validate:"required,oneof=local s3"`
	Root       string    `mapstructure:"root"`
	RecycleDir string    `mapstructure:"recycle_dir" validate:"required"`
	S3         s3.Config `mapstructure:"s3"`
}

type AuthConfig struct {
	Mode      string `mapstructure:"mode" validate:"required,oneof=jwt grpc"`
	JWTSecret string `mapstructure:"jwt_secret"`
	GRPCAddr  string `mapstructure:"grpc_addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
}

type RecycleConfig struct {
	// Retention is how long trashed items are kept before the cleanup job
	// purges them. Zero disables the job.
	Retention       time.Duration `mapstructure:"retention" validate:"gte=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
	// SweepExpiredGrants also deletes expired grants on each cleanup tick.
	SweepExpiredGrants bool `mapstructure:"sweep_expired_grants"`
}

type ShareConfig struct {
	TokenBytes int `mapstructure:"token_bytes" validate:"gte=16,lte=64"`
	BcryptCost int `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "2525")
	v.SetDefault("server.grpc_port", "50051")
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.request_timeout", 30*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "filekeeper")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.root", "data")
	v.SetDefault("storage.recycle_dir", ".recycle")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("auth.mode", "jwt")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.grpc_addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("recycle.retention", 30*24*time.Hour)
	v.SetDefault("recycle.cleanup_interval", time.Hour)
	v.SetDefault("recycle.sweep_expired_grants", true)

	v.SetDefault("share.token_bytes", 32)
	v.SetDefault("share.bcrypt_cost", 10)
}

// Load reads configuration from the file at path (YAML, TOML, JSON or .env),
// then applies FILEKEEPER_* environment variables and finally command-line
// flags. A missing file is not an error; the remaining sources still apply.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for existing deployments.
	v.BindEnv("database.host", envPrefix+"_DATABASE_HOST", "DATABASE_HOST")
	v.BindEnv("database.port", envPrefix+"_DATABASE_PORT", "DATABASE_PORT")
	v.BindEnv("database.user", envPrefix+"_DATABASE_USER", "DATABASE_USER")
	v.BindEnv("database.password", envPrefix+"_DATABASE_PASSWORD", "DATABASE_PASSWORD")
	v.BindEnv("database.name", envPrefix+"_DATABASE_NAME", "DATABASE_NAME")
	v.BindEnv("database.sslmode", envPrefix+"_DATABASE_SSLMODE", "DATABASE_SSLMODE")
	v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "HTTP_PORT")
	v.BindEnv("server.grpc_port", envPrefix+"_SERVER_GRPC_PORT", "GRPC_PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps config keys to the flag names RegisterFlags defines.
var flagKeys = map[string]string{
	"server.port":     "port",
	"logging.level":   "log-level",
	"database.driver": "db-driver",
	"storage.root":    "storage-root",
}

// RegisterFlags declares the command-line overrides understood by Load.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("port", "", "HTTP listen port")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("db-driver", "", "metadata store driver (postgres, memory)")
	flags.String("storage-root", "", "root directory of the local storage backend")
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// MigrationURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}
