package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
		// Public base URL used to build ad return/redirect links,
		// e.g. https://videogate.example.com (no trailing slash).
		Domain string `env:"DOMAIN" envDefault:"http://localhost:8080"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Telegram struct {
		BotToken string  `env:"BOT_TOKEN,required"`
		AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`
	}

	Quota struct {
		// Free deliveries per cycle for non-premium users.
		FreeLimit int `env:"FREE_LIMIT" envDefault:"5"`
	}

	Shortlink struct {
		APIURL string `env:"SHORTLINK_API_URL" envDefault:""`
		APIKey string `env:"SHORTLINK_API_KEY" envDefault:""`
		// Ad host the /ad/redirect endpoint forwards to.
		TargetURL string `env:"AD_TARGET_URL" envDefault:""`
	}
}

func Load() *Config {
	// .env is optional; in production variables come from the environment.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
