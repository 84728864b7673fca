package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	Debug        bool     `env:"DEBUG" envDefault:"false"`
	SecretKey    string   `env:"SECRET_KEY,required"`
	AllowedHosts []string `env:"ALLOWED_HOSTS" envSeparator:"," envDefault:"localhost,127.0.0.1"`

	// Key-value store (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Completion provider
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4.1-nano"`

	// Ad bidding (Thrad SSP)
	ThradAPIKey         string `env:"THRAD_API_KEY"`
	ThradAPIKeyFallback string `env:"THRAD_API_KEY_FALLBACK"`
	ThradAllowedOrigin  string `env:"THRAD_ALLOWED_ORIGIN"`

	// Transactional email (Brevo)
	BrevoAPIKey      string `env:"BREVO_API_KEY,required"`
	EmailFromAddress string `env:"EMAIL_FROM_ADDRESS,required"`
}

// Load reads a .env file if present and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
