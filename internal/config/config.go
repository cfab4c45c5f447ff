package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/woodtypes/internal/woodtype"
)

// Config корневая структура конфигурации сервиса.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Blocks     BlocksConfig     `yaml:"blocks"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Storage    StorageConfig    `yaml:"storage"`
	EventBus   EventBusConfig   `yaml:"eventbus"`
	Cache      CacheConfig      `yaml:"cache"`
	Auth       AuthConfig       `yaml:"auth"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// BlocksConfig описывает, откуда читать определения блоков при старте.
type BlocksConfig struct {
	Dir       string `yaml:"dir"`
	Namespace string `yaml:"namespace"`
}

// RuleConfig: дополнительное правило классификации по суффиксу.
type RuleConfig struct {
	Type        string `yaml:"type"`
	Suffix      string `yaml:"suffix"`
	RequireWood bool   `yaml:"require_wood"`
}

type ClassifierConfig struct {
	ExtraRules []RuleConfig `yaml:"extra_rules"`
}

type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	ReplayOnStart bool   `yaml:"replay_on_start"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type CacheConfig struct {
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Blocks: BlocksConfig{
			Dir:       "assets/blocks",
			Namespace: woodtype.DefaultNamespace,
		},
		Storage: StorageConfig{
			Path:          "data",
			ReplayOnStart: true,
		},
		EventBus: EventBusConfig{
			Stream:    "WOODTYPES",
			Retention: 24,
			Buffer:    1024,
		},
		Cache: CacheConfig{
			Key: "woodtypes",
		},
		Auth: AuthConfig{
			Issuer: "woodtypes",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "woodtypes",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "WOODTYPES_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "WOODTYPES_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// RetentionDuration возвращает срок хранения событий в стриме
func (e *EventBusConfig) RetentionDuration() time.Duration {
	if e.Retention <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.Retention) * time.Hour
}

// Secret возвращает декодированный секрет JWT. Пустой результат означает,
// что секрет не задан ни в конфиге, ни в WOODTYPES_JWT_SECRET.
func (a *AuthConfig) Secret() ([]byte, error) {
	secret := a.JWTSecret
	if secret == "" {
		secret = os.Getenv("WOODTYPES_JWT_SECRET")
	}
	if secret == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("jwt_secret должен быть в base64: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("jwt_secret короче 32 байт")
	}
	return decoded, nil
}

// Rules строит дополнительные правила классификатора
func (c *ClassifierConfig) Rules() ([]woodtype.Rule, error) {
	rules := make([]woodtype.Rule, 0, len(c.ExtraRules))
	for i, rc := range c.ExtraRules {
		rule, err := woodtype.SuffixRule(woodtype.ComponentType(rc.Type), rc.Suffix, rc.RequireWood)
		if err != nil {
			return nil, fmt.Errorf("classifier.extra_rules[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Classifier возвращает встроенный классификатор с дополнительными правилами в конце
func (c *ClassifierConfig) Classifier() (*woodtype.Classifier, error) {
	rules, err := c.Rules()
	if err != nil {
		return nil, err
	}
	return woodtype.DefaultClassifier().With(rules...), nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается взять путь из WOODTYPES_CONFIG; если и он пуст,
// возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("WOODTYPES_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	return cfg, nil
}
