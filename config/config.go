package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	ResetTTL      time.Duration `mapstructure:"reset_ttl"`
}

type AuthConfig struct {
	BcryptCost           int    `mapstructure:"bcrypt_cost"`
	ResetURL             string `mapstructure:"reset_url"`
	SingleUseResetTokens bool   `mapstructure:"single_use_reset_tokens"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Redis      RedisConfig `mapstructure:"redis"`
	JWT        JWTConfig   `mapstructure:"jwt"`
	Auth       AuthConfig  `mapstructure:"auth"`
	Mail       MailConfig  `mapstructure:"mail"`
	Revocation struct {
		Backend string `mapstructure:"backend"`
	} `mapstructure:"revocation"`
	RateLimit struct {
		PerMinute int `mapstructure:"per_minute"`
	} `mapstructure:"rate_limit"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "glucocheck")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "glucocheck")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrations_path", "db/migrations")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.access_secret", "")
	v.SetDefault("jwt.refresh_secret", "")
	v.SetDefault("jwt.access_ttl", time.Hour)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("jwt.reset_ttl", 30*time.Minute)

	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.reset_url", "http://localhost:8080/reset-password")
	v.SetDefault("auth.single_use_reset_tokens", false)

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@glucocheck.local")
	v.SetDefault("mail.use_tls", true)

	v.SetDefault("revocation.backend", "memory")
	v.SetDefault("rate_limit.per_minute", 30)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yml from path (if present) and overlays environment
// variables such as JWT_ACCESS_SECRET or DATABASE_HOST.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the auth core cannot run safely with.
func (c *Config) Validate() error {
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("jwt.access_secret and jwt.refresh_secret must be set")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("jwt.access_secret and jwt.refresh_secret must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 || c.JWT.ResetTTL <= 0 {
		return errors.New("jwt token lifetimes must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database.driver: %s (supported: postgres, memory)", c.Database.Driver)
	}
	switch c.Revocation.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported revocation.backend: %s (supported: memory, redis)", c.Revocation.Backend)
	}
	return nil
}

// DSN builds the lib/pq connection string. Values are quoted so spaces and quotes survive.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dsnQuote(d.Host), dsnQuote(d.Port), dsnQuote(d.User), dsnQuote(d.Password), dsnQuote(d.Name), dsnQuote(d.SSLMode))
}

// SafeDSN is DSN without the password, for logging.
func (d DatabaseConfig) SafeDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		dsnQuote(d.Host), dsnQuote(d.Port), dsnQuote(d.User), dsnQuote(d.Name), dsnQuote(d.SSLMode))
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func dsnQuote(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

// URL is the postgres:// form golang-migrate expects, with credentials percent-encoded.
func (d DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
