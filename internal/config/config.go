package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	HTTPPort    string   `mapstructure:"HTTP_PORT"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	LLMProvider string `mapstructure:"LLM_PROVIDER"`

	GeminiAPIKey         string `mapstructure:"GEMINI_API_KEY"`
	GeminiFastModel      string `mapstructure:"GEMINI_FAST_MODEL"`
	GeminiReasoningModel string `mapstructure:"GEMINI_REASONING_MODEL"`

	OpenAIAPIKey         string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL        string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIFastModel      string `mapstructure:"OPENAI_FAST_MODEL"`
	OpenAIReasoningModel string `mapstructure:"OPENAI_REASONING_MODEL"`

	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	SessionIdleTTL  time.Duration `mapstructure:"SESSION_IDLE_TTL"`
}

var AppConfig Config

// MinSessionIdleTTL keeps the session sweeper interval (a quarter of the TTL) sane.
const MinSessionIdleTTL = time.Minute

var keys = []string{
	"HTTP_PORT", "DATABASE_URL", "LOG_LEVEL", "JWT_SECRET", "CORS_ORIGINS",
	"LLM_PROVIDER",
	"GEMINI_API_KEY", "GEMINI_FAST_MODEL", "GEMINI_REASONING_MODEL",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_FAST_MODEL", "OPENAI_REASONING_MODEL",
	"PROVIDER_TIMEOUT", "SESSION_IDLE_TTL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_URL", "superapp.db")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("LLM_PROVIDER", ProviderGemini)
	v.SetDefault("GEMINI_FAST_MODEL", "gemini-3-flash-preview")
	v.SetDefault("GEMINI_REASONING_MODEL", "gemini-3-pro-preview")
	v.SetDefault("OPENAI_FAST_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_REASONING_MODEL", "gpt-4o")
	v.SetDefault("PROVIDER_TIMEOUT", 60*time.Second)
	v.SetDefault("SESSION_IDLE_TTL", 2*time.Hour)
}

// LoadConfig reads .env, the optional YAML file named by CONFIG_FILE and the
// process environment, in increasing order of precedence.
func LoadConfig() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := load(viper.New())
	if err != nil {
		return err
	}
	AppConfig = *cfg
	return nil
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about during Unmarshal.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the secrets required by the selected provider are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be > 0")
	}
	if c.SessionIdleTTL < MinSessionIdleTTL {
		return fmt.Errorf("SESSION_IDLE_TTL must be at least %s", MinSessionIdleTTL)
	}
	return nil
}
