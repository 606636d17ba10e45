package config

import (
	"log"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Redis      `yaml:"redis"`
	Push       `yaml:"push"`
	Scheduler  `yaml:"scheduler"`
	Session    `yaml:"session"`
}

type HTTPServer struct {
	Address string `yaml:"address" env:"ADDR" env-default:":8080"`
}

type Database struct {
	// Empty URL selects the in-memory store (development mode).
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Push struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	Subscriber      string `yaml:"subscriber" env:"PUSH_SUBSCRIBER" env-default:"admin@example.com"`
	TTL             int    `yaml:"ttl" env:"PUSH_TTL" env-default:"300"`
}

type Scheduler struct {
	ResyncSpec string `yaml:"resync" env:"SCHEDULER_RESYNC" env-default:"@every 15m"`
}

type Session struct {
	// Cookies are written by the external auth service; the secret only
	// has to match its signing key.
	Secret string `yaml:"secret" env:"SESSION_SECRET" env-default:"secret-key-change-in-production"`
}

// MustLoad reads CONFIG_PATH as YAML when set, falling back to environment
// variables only. Exits on a malformed config.
func MustLoad() *Config {
	// .env is optional; Docker environments inject variables directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg Config
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			log.Fatalf("cannot read config %s: %s", configPath, err)
		}
		return &cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("cannot read config from environment: %s", err)
	}
	return &cfg
}
