package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	IdentityTokenSecret string // HS256 key for bearer identity tokens; empty disables bearer auth
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	LogLevel            string

	LockTTL            time.Duration // 0 = locks never expire
	LockSweepInterval  time.Duration
	EsimBatchLimit     int
	EsimSerialLength   int
	ReconcileOnStartup bool
	ReconcileInterval  time.Duration // 0 = no periodic pass
	GuardTTL           time.Duration
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOCK_TTL", "0s")
	viper.SetDefault("LOCK_SWEEP_INTERVAL", "1m")
	viper.SetDefault("ESIM_BATCH_LIMIT", 500)
	viper.SetDefault("ESIM_SERIAL_LENGTH", 20)
	viper.SetDefault("RECONCILE_ON_STARTUP", true)
	viper.SetDefault("RECONCILE_INTERVAL", "0s")
	viper.SetDefault("GUARD_TTL", "2m")

	env := viper.GetString("NODE_ENV")
	if env == "" {
		env = viper.GetString("APP_ENV")
	}
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		IdentityTokenSecret: viper.GetString("IDENTITY_TOKEN_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		LockTTL:             viper.GetDuration("LOCK_TTL"),
		LockSweepInterval:   viper.GetDuration("LOCK_SWEEP_INTERVAL"),
		EsimBatchLimit:      viper.GetInt("ESIM_BATCH_LIMIT"),
		EsimSerialLength:    viper.GetInt("ESIM_SERIAL_LENGTH"),
		ReconcileOnStartup:  viper.GetBool("RECONCILE_ON_STARTUP"),
		ReconcileInterval:   viper.GetDuration("RECONCILE_INTERVAL"),
		GuardTTL:            viper.GetDuration("GUARD_TTL"),
	}, nil
}
