/**
 * @description
 * Configuration for the CandicePay bot service. Values come from a local
 * `.env.local` file when present, then `.env`, with process environment taking
 * precedence over both.
 *
 * @dependencies
 * - github.com/spf13/viper: key binding, defaults and unmarshalling.
 * - github.com/joho/godotenv: loads `.env.local` into the process environment.
 */

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultAdminTelegramIDs = "7967638943"

// Config holds every tunable of the service.
type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	ServerPort string `mapstructure:"SERVER_PORT"`
	DomainURL  string `mapstructure:"DOMAIN_URL"`

	BotToken string `mapstructure:"BOT_TOKEN"`

	PaystackSecretKey     string `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackPublicKey     string `mapstructure:"PAYSTACK_PUBLIC_KEY"`
	PaystackBaseURL       string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackPreferredBank string `mapstructure:"PAYSTACK_PREFERRED_BANK"`

	DeepSeekAPIKey  string `mapstructure:"DEEPSEEK_API_KEY"`
	DeepSeekBaseURL string `mapstructure:"DEEPSEEK_BASE_URL"`
	DeepSeekModel   string `mapstructure:"DEEPSEEK_MODEL"`

	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      int    `mapstructure:"SMTP_PORT"`
	SMTPUser      string `mapstructure:"SMTP_USER"`
	SMTPPass      string `mapstructure:"SMTP_PASS"`
	SMTPFromEmail string `mapstructure:"SMTP_FROM_EMAIL"`
	SMTPFromName  string `mapstructure:"SMTP_FROM_NAME"`

	AdminUsername    string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword    string `mapstructure:"ADMIN_PASSWORD"`
	AdminEmail       string `mapstructure:"ADMIN_EMAIL"`
	AdminTelegramRaw string `mapstructure:"ADMIN_TELEGRAM_IDS"`
	AdminTelegramIDs []int64
	JWTSecret        string `mapstructure:"JWT_SECRET"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RedisPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	EventQueue  string `mapstructure:"PAYSTACK_EVENT_QUEUE"`

	SessionTTLMinutes      int    `mapstructure:"SESSION_TTL_MINUTES"`
	BotRateLimitPerMinute  int    `mapstructure:"BOT_RATE_LIMIT_PER_MINUTE"`
	BankRefreshSchedule    string `mapstructure:"BANK_REFRESH_SCHEDULE"`
	ReconcileSchedule      string `mapstructure:"RECONCILE_SCHEDULE"`
	OutboundTimeoutSeconds int    `mapstructure:"OUTBOUND_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from `.env.local`/`.env` under path and the environment.
func LoadConfig(path string) (config Config, err error) {
	// godotenv never overrides variables that are already set.
	if loadErr := godotenv.Load(filepath.Join(path, ".env.local")); loadErr != nil && !errors.Is(loadErr, fs.ErrNotExist) {
		log.Printf("level=warn component=config msg=\"failed to read .env.local\" err=%v", loadErr)
	}

	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("DOMAIN_URL", "http://localhost:3000")
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("PAYSTACK_PREFERRED_BANK", "wema-bank")
	viper.SetDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1")
	viper.SetDefault("DEEPSEEK_MODEL", "deepseek-chat")
	viper.SetDefault("SMTP_PORT", 465)
	viper.SetDefault("SMTP_FROM_NAME", "CandicePay")
	viper.SetDefault("ADMIN_USERNAME", "admin")
	viper.SetDefault("ADMIN_PASSWORD", "admin123")
	viper.SetDefault("ADMIN_EMAIL", "admin@candicepay.com")
	viper.SetDefault("ADMIN_TELEGRAM_IDS", defaultAdminTelegramIDs)
	viper.SetDefault("REDIS_KEY_PREFIX", "candicepay")
	viper.SetDefault("PAYSTACK_EVENT_QUEUE", "candicepay.paystack_events")
	viper.SetDefault("SESSION_TTL_MINUTES", 30)
	viper.SetDefault("BOT_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("BANK_REFRESH_SCHEDULE", "@every 6h")
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	viper.SetDefault("OUTBOUND_TIMEOUT_SECONDS", 30)

	_ = viper.BindEnv("APP_ENV")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DOMAIN_URL")
	_ = viper.BindEnv("BOT_TOKEN", "BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("PAYSTACK_PUBLIC_KEY")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_PREFERRED_BANK")
	_ = viper.BindEnv("DEEPSEEK_API_KEY")
	_ = viper.BindEnv("DEEPSEEK_BASE_URL")
	_ = viper.BindEnv("DEEPSEEK_MODEL")
	_ = viper.BindEnv("SMTP_HOST")
	_ = viper.BindEnv("SMTP_PORT")
	_ = viper.BindEnv("SMTP_USER")
	_ = viper.BindEnv("SMTP_PASS")
	_ = viper.BindEnv("SMTP_FROM_EMAIL")
	_ = viper.BindEnv("SMTP_FROM_NAME")
	_ = viper.BindEnv("ADMIN_USERNAME")
	_ = viper.BindEnv("ADMIN_PASSWORD")
	_ = viper.BindEnv("ADMIN_EMAIL")
	_ = viper.BindEnv("ADMIN_TELEGRAM_IDS")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYSTACK_EVENT_QUEUE")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("BOT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("BANK_REFRESH_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("OUTBOUND_TIMEOUT_SECONDS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DomainURL = strings.TrimRight(strings.TrimSpace(config.DomainURL), "/")
	config.PaystackBaseURL = strings.TrimRight(strings.TrimSpace(config.PaystackBaseURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisPrefix = strings.TrimSpace(config.RedisPrefix)
	if config.RedisPrefix == "" {
		config.RedisPrefix = "candicepay"
	}

	config.AdminTelegramIDs = parseTelegramIDs(config.AdminTelegramRaw)

	if strings.TrimSpace(config.JWTSecret) == "" {
		config.JWTSecret = randomSecret()
		log.Println("level=warn component=config msg=\"JWT_SECRET not set; generated an ephemeral secret, admin sessions will not survive restarts\"")
	}

	if config.SMTPPort <= 0 {
		log.Printf("level=warn component=config msg=\"invalid smtp port; coercing to default\" port=%d", config.SMTPPort)
		config.SMTPPort = 465
	}
	if config.SessionTTLMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"invalid session ttl; coercing to default\" minutes=%d", config.SessionTTLMinutes)
		config.SessionTTLMinutes = 30
	}
	if config.BotRateLimitPerMinute <= 0 {
		log.Printf("level=warn component=config msg=\"invalid bot rate limit; coercing to default\" per_minute=%d", config.BotRateLimitPerMinute)
		config.BotRateLimitPerMinute = 30
	}
	if config.OutboundTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"invalid outbound timeout; coercing to default\" seconds=%d", config.OutboundTimeoutSeconds)
		config.OutboundTimeoutSeconds = 30
	}
	if strings.TrimSpace(config.BankRefreshSchedule) == "" {
		config.BankRefreshSchedule = "@every 6h"
	}
	if strings.TrimSpace(config.ReconcileSchedule) == "" {
		config.ReconcileSchedule = "@every 5m"
	}

	return
}

// IsAdminTelegramID reports whether id is on the operator allow-list.
func (c Config) IsAdminTelegramID(id int64) bool {
	for _, allowed := range c.AdminTelegramIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// MailEnabled reports whether enough SMTP settings are present to send email.
func (c Config) MailEnabled() bool {
	return strings.TrimSpace(c.SMTPHost) != "" && strings.TrimSpace(c.SMTPFromEmail) != ""
}

func parseTelegramIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("level=warn component=config msg=\"ignoring invalid admin telegram id\" value=%q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "candicepay-insecure-fallback-secret"
	}
	return hex.EncodeToString(buf)
}
