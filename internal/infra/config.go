package infra

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// Допустимые хранилища для защиты от повторного решения.
const (
	ClaimStoreNone   = "none"
	ClaimStoreMemory = "memory"
	ClaimStoreRedis  = "redis"
)

// Config — корневая структура конфигурации бота.
type Config struct {
	Slack    SlackConfig    `mapstructure:"slack"`
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Quote    QuoteConfig    `mapstructure:"quote"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// SlackConfig содержит токены и режим подключения к платформе.
type SlackConfig struct {
	BotToken      string  `mapstructure:"bot_token"`
	AppToken      string  `mapstructure:"app_token"`      // Только для Socket Mode
	SigningSecret string  `mapstructure:"signing_secret"` // Только для HTTP Events
	SocketMode    bool    `mapstructure:"socket_mode"`
	RatePerSecond float64 `mapstructure:"rate_per_second"` // Лимит исходящих вызовов API
	Burst         int     `mapstructure:"burst"`
	Debug         bool    `mapstructure:"debug"`
}

// ServerConfig описывает HTTP-сервер (health, metrics и HTTP Events).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr возвращает адрес для http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisConfig нужен только если approval.claim_store=redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ApprovalConfig настраивает сам workflow согласования.
type ApprovalConfig struct {
	Command    string        `mapstructure:"command"`
	ClaimStore string        `mapstructure:"claim_store"`
	ClaimTTL   time.Duration `mapstructure:"claim_ttl"`
}

// QuoteConfig — внешний API случайных цитат.
type QuoteConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Attempts uint          `mapstructure:"attempts"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: SLACK_BOT_TOKEN перекроет slack.bot_token
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// PORT — привычное имя переменной у хостингов
	if err := v.BindEnv("server.port", "SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Без явного дефолта AutomaticEnv не увидит ключ при Unmarshal
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.app_token", "")
	v.SetDefault("slack.signing_secret", "")
	v.SetDefault("slack.socket_mode", true)
	v.SetDefault("slack.rate_per_second", 1.0)
	v.SetDefault("slack.burst", 5)
	v.SetDefault("slack.debug", false)
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("approval.command", domain.ApprovalCommand)
	v.SetDefault("approval.claim_store", ClaimStoreMemory)
	v.SetDefault("approval.claim_ttl", 24*time.Hour)
	v.SetDefault("quote.url", "https://zenquotes.io/api/random")
	v.SetDefault("quote.timeout", 3*time.Second)
	v.SetDefault("quote.attempts", 3)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate проверяет, что для выбранного режима есть все секреты.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return errors.New("config: slack.bot_token (SLACK_BOT_TOKEN) is required")
	}
	if c.Slack.SocketMode && c.Slack.AppToken == "" {
		return errors.New("config: slack.app_token (SLACK_APP_TOKEN) is required in socket mode")
	}
	if !c.Slack.SocketMode && c.Slack.SigningSecret == "" {
		return errors.New("config: slack.signing_secret (SLACK_SIGNING_SECRET) is required in http mode")
	}
	if !strings.HasPrefix(c.Approval.Command, "/") {
		return fmt.Errorf("config: approval.command %q must start with '/'", c.Approval.Command)
	}
	if slices.Contains(domain.UtilityCommands(), c.Approval.Command) {
		return fmt.Errorf("config: approval.command %q collides with a built-in command", c.Approval.Command)
	}
	switch c.Approval.ClaimStore {
	case ClaimStoreNone, ClaimStoreMemory, ClaimStoreRedis:
	default:
		return fmt.Errorf("config: unknown approval.claim_store %q", c.Approval.ClaimStore)
	}
	return nil
}
