package config

import (
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Application struct {
		Name        string        `envconfig:"APPLICATION_NAME" default:"np-settlement"`
		Environment string        `envconfig:"APPLICATION_ENVIRONMENT" default:"development"`
		Port        int           `envconfig:"APPLICATION_PORT" default:"9030"`
		Debug       bool          `envconfig:"APPLICATION_DEBUG" default:"false"`
		Timeout     time.Duration `envconfig:"APPLICATION_TIMEOUT" default:"10s"`
		BaseURL     string        `envconfig:"APPLICATION_BASE_URL" default:"http://localhost:9030"`
	}

	Settlement struct {
		ReservationGracePeriod time.Duration `envconfig:"SETTLEMENT_RESERVATION_GRACE_PERIOD" default:"5m"`
		ReconcileBatchSize     int64         `envconfig:"SETTLEMENT_RECONCILE_BATCH_SIZE" default:"100"`
	}

	Postgres struct {
		Host            string        `envconfig:"POSTGRES_HOST" default:"localhost"`
		Port            int           `envconfig:"POSTGRES_PORT" default:"5432"`
		User            string        `envconfig:"POSTGRES_USER" default:"postgres"`
		Password        string        `envconfig:"POSTGRES_PASSWORD"`
		Database        string        `envconfig:"POSTGRES_DATABASE" default:"np_settlement"`
		SSLMode         string        `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
		MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"25"`
		MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"30m"`
	}

	Redis struct {
		Address  string `envconfig:"REDIS_ADDRESS" default:"localhost:6379"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	Kafka struct {
		BootstrapServers string `envconfig:"KAFKA_BOOTSTRAP_SERVERS" default:"localhost:9092"`
		SASLUsername     string `envconfig:"KAFKA_SASL_USERNAME"`
		SASLPassword     string `envconfig:"KAFKA_SASL_PASSWORD"`
	}

	JWT struct {
		PublicKey []byte `envconfig:"JWT_PUBLIC_KEY"`
	}

	GCP struct {
		ProjectID      string `envconfig:"GCP_PROJECT_ID"`
		Location       string `envconfig:"GCP_LOCATION" default:"asia-southeast2"`
		ServiceAccount []byte `envconfig:"GCP_SERVICE_ACCOUNT"`
	}

	CORS struct {
		AllowedOrigins   []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
		AllowedMethods   []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST"`
		AllowedHeaders   []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Authorization,Content-Type"`
		ExposedHeaders   []string `envconfig:"CORS_EXPOSED_HEADERS"`
		MaxAge           int      `envconfig:"CORS_MAX_AGE" default:"300"`
		AllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	}
}

var (
	c    *Config
	once sync.Once
)

func Get() *Config {
	once.Do(func() {
		c = &Config{}
		if err := envconfig.Process("", c); err != nil {
			panic(err)
		}
	})

	return c
}
