// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек сервиса биллинга.
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	Webhook                 `yaml:"webhook"`
	PaymentProvider         `yaml:"payment_provider"`
	JWTToken                `yaml:"jwttoken"`
	AuditQueue              `yaml:"audit_queue"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// Webhook — настройки проверки подписи входящих событий провайдера.
// Секрет обязателен: без него нельзя отличить события провайдера от
// подделки, поэтому сервис падает на старте, а не на первом запросе.
type Webhook struct {
	Secret    string        `yaml:"secret" env:"WEBHOOK_SECRET"`
	Tolerance time.Duration `yaml:"tolerance" env-default:"5m"`
}

// PaymentProvider — настройки исходящего клиента платёжного провайдера.
type PaymentProvider struct {
	SecretKey  string `yaml:"secret_key" env:"PROVIDER_SECRET_KEY"`
	APIURL     string `yaml:"api_url" env-default:"https://api.payproc.example.com/v1"`
	SuccessURL string `yaml:"success_url"`
	CancelURL  string `yaml:"cancel_url"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// AuditQueue — настройки публикации аудиторских событий в RabbitMQ.
type AuditQueue struct {
	AMQPURL  string `yaml:"amqp_url" env:"AMQP_URL"`
	Exchange string `yaml:"exchange" env-default:"billing.audit"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и валидирует
// обязательные секреты. Любая ошибка фатальна.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	if cfg.Webhook.Secret == "" {
		log.Fatal("webhook secret is not set")
	}
	if cfg.PaymentProvider.SecretKey == "" {
		log.Fatal("payment provider secret key is not set")
	}
	if cfg.StorageConnectionString == "" {
		log.Fatal("storage connection string is not set")
	}
	return &cfg
}
