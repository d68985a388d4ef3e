package config

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds application level configuration loaded from environment variables.
// It is built once at startup and passed down by value; nothing reads the
// environment after Load returns.
type Config struct {
	ServerPort  string `env:"SERVER_PORT, default=8080"`
	BaseURL     string `env:"BASE_URL, default=http://localhost:8080"`
	Debug       bool   `env:"DEBUG, default=false"`
	LogLevel    string `env:"LOG_LEVEL, default=info"`
	SwaggerHost string `env:"SWAGGER_HOST"`

	// SecretKey signs password reset tokens.
	SecretKey string `env:"SECRET_KEY, default=change-me"`
	JWTSecret string `env:"JWT_SECRET, default=change-me"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL, default=15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL, default=168h"`

	PasswordResetTimeout time.Duration `env:"PASSWORD_RESET_TIMEOUT, default=24h"`
	PasswordMinLength    int           `env:"PASSWORD_MIN_LENGTH, default=8"`

	Database DatabaseConfig `env:", prefix=DB_"`
	Redis    RedisConfig    `env:", prefix=REDIS_"`
	Mail     MailConfig     `env:", prefix=EMAIL_"`
	Storage  StorageConfig  `env:", prefix=STORAGE_"`
}

// DatabaseConfig selects the gorm dialector and its DSN.
type DatabaseConfig struct {
	Driver string `env:"DRIVER, default=mysql"`
	DSN    string `env:"DSN, default=user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=Local"`
}

// RedisConfig points at the token and user cache.
type RedisConfig struct {
	Addr     string `env:"ADDR, default=localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB, default=0"`
}

// MailConfig carries SMTP credentials for outbound mail.
type MailConfig struct {
	Backend  string `env:"BACKEND, default=smtp"`
	Host     string `env:"HOST, default=smtp.gmail.com"`
	Port     int    `env:"PORT, default=587"`
	Username string `env:"HOST_USER"`
	Password string `env:"HOST_PASSWORD"`
	From     string `env:"FROM"`
	UseTLS   bool   `env:"USE_TLS, default=true"`
}

// StorageConfig selects where profile images live.
type StorageConfig struct {
	Backend   string `env:"BACKEND, default=local"`
	MediaRoot string `env:"MEDIA_ROOT, default=media"`
	MediaURL  string `env:"MEDIA_URL, default=/media/"`

	S3Endpoint       string        `env:"S3_ENDPOINT"`
	S3Region         string        `env:"S3_REGION, default=us-east-1"`
	S3Bucket         string        `env:"S3_BUCKET"`
	S3AccessKey      string        `env:"S3_ACCESS_KEY"`
	S3SecretKey      string        `env:"S3_SECRET_KEY"`
	S3ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE, default=true"`
	PresignTTL       time.Duration `env:"PRESIGN_TTL, default=15m"`
}

// Load builds Config from the environment, reading a .env file first when present.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom builds Config from an arbitrary lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MailFrom returns the sender address, falling back to the SMTP user.
func (c *Config) MailFrom() string {
	if c.Mail.From != "" {
		return c.Mail.From
	}
	return c.Mail.Username
}
