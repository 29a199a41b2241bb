package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Storage. DB_DRIVER selects mongo (default), mysql or sqlite.
	DBDriver     string `mapstructure:"DB_DRIVER"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	SQLDSN       string `mapstructure:"SQL_DSN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisAuthDB   int    `mapstructure:"REDIS_AUTH_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Transfer codes.
	OTPLength         int           `mapstructure:"OTP_LENGTH"`
	OTPTTL            time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts    int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPResendCooldown time.Duration `mapstructure:"OTP_RESEND_COOLDOWN"`
	OTPMaxResends     int           `mapstructure:"OTP_MAX_RESENDS"`
	OTPHashCost       int           `mapstructure:"OTP_HASH_COST"`

	// Transfer lifecycle.
	TransferTTL        time.Duration `mapstructure:"TRANSFER_TTL"`
	TransferSessionTTL time.Duration `mapstructure:"TRANSFER_SESSION_TTL"`
	SweepInterval      time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepBatchSize     int           `mapstructure:"SWEEP_BATCH_SIZE"`
	LookupCacheTTL     time.Duration `mapstructure:"LOOKUP_CACHE_TTL"`

	// Delivery.
	WhatsAppAPIURL      string `mapstructure:"WHATSAPP_API_URL"`
	WhatsAppAPIToken    string `mapstructure:"WHATSAPP_API_TOKEN"`
	FirebaseCredentials string `mapstructure:"FIREBASE_CREDENTIALS"`
	GeolocationAPIURL   string `mapstructure:"GEOLOCATION_API_URL"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 100)

	v.SetDefault("DB_DRIVER", "mongo")
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("DATABASE_NAME", "guardget")
	v.SetDefault("SQL_DSN", "file:guardget.db?_busy_timeout=5000")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_AUTH_DB", 1)
	v.SetDefault("REDIS_QUEUE_DB", 2)

	v.SetDefault("OTP_LENGTH", 8)
	v.SetDefault("OTP_TTL", "15m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_RESEND_COOLDOWN", "30s")
	v.SetDefault("OTP_MAX_RESENDS", 5)
	v.SetDefault("OTP_HASH_COST", 10)

	v.SetDefault("TRANSFER_TTL", "504h")
	v.SetDefault("TRANSFER_SESSION_TTL", "1h")
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_BATCH_SIZE", 100)
	v.SetDefault("LOOKUP_CACHE_TTL", "1m")

	v.SetDefault("WHATSAPP_API_URL", "")
	v.SetDefault("WHATSAPP_API_TOKEN", "")
	v.SetDefault("FIREBASE_CREDENTIALS", "")
	v.SetDefault("GEOLOCATION_API_URL", "https://ipapi.co")
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// OTPPolicy is the code issuing policy derived from configuration.
type OTPPolicy struct {
	Length         int
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	HashCost       int
}

// TransferPolicy is the lifecycle policy of transfer requests.
type TransferPolicy struct {
	TransferTTL    time.Duration
	SessionTTL     time.Duration
	MaxResends     int
	SweepBatchSize int
}

// DefaultOTPPolicy matches the documented defaults.
func DefaultOTPPolicy() OTPPolicy {
	return OTPPolicy{Length: 8, TTL: 15 * time.Minute, MaxAttempts: 5, ResendCooldown: 30 * time.Second, HashCost: 10}
}

// DefaultTransferPolicy matches the documented defaults.
func DefaultTransferPolicy() TransferPolicy {
	return TransferPolicy{TransferTTL: 21 * 24 * time.Hour, SessionTTL: time.Hour, MaxResends: 5, SweepBatchSize: 100}
}

// OTP returns the configured OTP policy, falling back to defaults for unset values.
func (c Config) OTP() OTPPolicy {
	p := DefaultOTPPolicy()
	if c.OTPLength > 0 {
		p.Length = c.OTPLength
	}
	if c.OTPTTL > 0 {
		p.TTL = c.OTPTTL
	}
	if c.OTPMaxAttempts > 0 {
		p.MaxAttempts = c.OTPMaxAttempts
	}
	if c.OTPResendCooldown > 0 {
		p.ResendCooldown = c.OTPResendCooldown
	}
	if c.OTPHashCost > 0 {
		p.HashCost = c.OTPHashCost
	}
	return p
}

// Transfer returns the configured transfer policy.
func (c Config) Transfer() TransferPolicy {
	p := DefaultTransferPolicy()
	if c.TransferTTL > 0 {
		p.TransferTTL = c.TransferTTL
	}
	if c.TransferSessionTTL > 0 {
		p.SessionTTL = c.TransferSessionTTL
	}
	if c.OTPMaxResends > 0 {
		p.MaxResends = c.OTPMaxResends
	}
	if c.SweepBatchSize > 0 {
		p.SweepBatchSize = c.SweepBatchSize
	}
	return p
}
