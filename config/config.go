package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Branding identifies the API operator in response payloads. The legacy
// deployments scattered these as module-level constants across every script
// variant; here they are loaded once and passed into the result composer.
type Branding struct {
	APIOwner  string `json:"api_owner"`
	Contact   string `json:"contact"`
	Portfolio string `json:"portfolio"`
	Channel   string `json:"channel"`
}

type Config struct {
	ServerPort string
	LogLevel   string

	TelegramBaseURL string
	FragmentBaseURL string
	RatesURL        string

	TelegramTimeout    time.Duration
	FragmentTimeout    time.Duration
	FragmentAPITimeout time.Duration
	RatesTimeout       time.Duration
	HealthProbeTimeout time.Duration

	CacheTTL     time.Duration
	CacheMaxSize int
	BatchWorkers int

	// RenderedFallback enables the headless-browser fetch path for
	// marketplace pages behind a JS challenge. Off by default since it
	// requires a Chrome binary on the host.
	RenderedFallback bool

	Branding Branding
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		TelegramBaseURL: getEnv("TELEGRAM_BASE_URL", "https://t.me"),
		FragmentBaseURL: getEnv("FRAGMENT_BASE_URL", "https://fragment.com"),
		RatesURL:        getEnv("RATES_URL", "https://api.coingecko.com/api/v3/simple/price?ids=the-open-network&vs_currencies=usd,eur"),

		TelegramTimeout:    getEnvDurationSeconds("TELEGRAM_TIMEOUT_SECONDS", 10),
		FragmentTimeout:    getEnvDurationSeconds("FRAGMENT_TIMEOUT_SECONDS", 15),
		FragmentAPITimeout: getEnvDurationSeconds("FRAGMENT_API_TIMEOUT_SECONDS", 20),
		RatesTimeout:       getEnvDurationSeconds("RATES_TIMEOUT_SECONDS", 10),
		HealthProbeTimeout: getEnvDurationSeconds("HEALTH_PROBE_TIMEOUT_SECONDS", 5),

		CacheTTL:     time.Duration(getEnvInt("CACHE_TTL_MINUTES", 5)) * time.Minute,
		CacheMaxSize: getEnvInt("CACHE_MAX_SIZE", 1000),
		BatchWorkers: getEnvInt("BATCH_WORKERS", 5),

		RenderedFallback: getEnvBool("RENDERED_FALLBACK", false),

		Branding: Branding{
			APIOwner:  getEnv("API_OWNER", "Paras Chourasiya"),
			Contact:   getEnv("API_CONTACT", "https://t.me/Aotpy"),
			Portfolio: getEnv("API_PORTFOLIO", "https://aotpy.vercel.app"),
			Channel:   getEnv("API_CHANNEL", "@obitoapi / @obitostuffs"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %t", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvDurationSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSeconds)) * time.Second
}
