package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Configはアプリ全体の設定
// CONFIG_FILE（YAML）があれば既定値として読み、環境変数で上書きする。
type Config struct {
	Port     string `yaml:"port"`      // サーバーポート（8080）
	GoEnv    string `yaml:"go_env"`    // dev/prod
	LogLevel string `yaml:"log_level"` // debug/info/warn/error

	JWTSecret string `yaml:"jwt_secret"` // JWT署名シークレット

	// 在庫・引当の保存先（memory / postgres）
	InventoryDriver string `yaml:"inventory_driver"`

	DatabaseURL      string `yaml:"database_url"`
	PostgresUser     string `yaml:"postgres_user"`     // DBユーザー
	PostgresPassword string `yaml:"postgres_password"` // DBパスワード
	PostgresDB       string `yaml:"postgres_db"`       // DB名
	PostgresHost     string `yaml:"postgres_host"`     // DBホスト（localhost）
	PostgresPort     int    `yaml:"postgres_port"`     // DBポート（5432）
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// カートの保存先（memory / redis）
	CartStorage   string        `yaml:"cart_storage"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	CartTTL       time.Duration `yaml:"cart_ttl"` // 0 は無期限

	// 空なら Kafka には流さずログに出す
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	ReservationTTL time.Duration `yaml:"reservation_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`
	StockBuffer    int64         `yaml:"stock_buffer"` // 在庫確認時の安全在庫

	ServiceName    string `yaml:"service_name"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

func defaults() Config {
	return Config{
		Port:            "8080",
		GoEnv:           "dev",
		LogLevel:        "info",
		InventoryDriver: DriverMemory,
		PostgresPort:    5432,
		PostgresSSLMode: "disable",
		CartStorage:     DriverMemory,
		KafkaTopic:      "reservation-events",
		ReservationTTL:  15 * time.Minute,
		SweepInterval:   time.Minute,
		SweepBatchSize:  100,
		StockBuffer:     2,
		ServiceName:     "urbanjungle-cart",
	}
}

// Loadは CONFIG_FILE → 環境変数 の順で読む
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString("PORT", &cfg.Port)
	envString("GO_ENV", &cfg.GoEnv)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("JWT_SECRET", &cfg.JWTSecret)

	envString("INVENTORY_DRIVER", &cfg.InventoryDriver)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("POSTGRES_USER", &cfg.PostgresUser)
	envString("POSTGRES_PASSWORD", &cfg.PostgresPassword)
	envString("POSTGRES_DB", &cfg.PostgresDB)
	envString("POSTGRES_HOST", &cfg.PostgresHost)
	envString("POSTGRES_SSLMODE", &cfg.PostgresSSLMode)

	envString("CART_STORAGE", &cfg.CartStorage)
	envString("REDIS_ADDR", &cfg.RedisAddr)
	envString("REDIS_PASSWORD", &cfg.RedisPassword)

	envString("KAFKA_TOPIC", &cfg.KafkaTopic)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}

	envString("SERVICE_NAME", &cfg.ServiceName)
	envString("JAEGER_ENDPOINT", &cfg.JaegerEndpoint)

	for key, dst := range map[string]*int{
		"POSTGRES_PORT":    &cfg.PostgresPort,
		"REDIS_DB":         &cfg.RedisDB,
		"SWEEP_BATCH_SIZE": &cfg.SweepBatchSize,
	} {
		if err := envInt(key, dst); err != nil {
			return err
		}
	}

	for key, dst := range map[string]*time.Duration{
		"CART_TTL":        &cfg.CartTTL,
		"RESERVATION_TTL": &cfg.ReservationTTL,
		"SWEEP_INTERVAL":  &cfg.SweepInterval,
	} {
		if err := envDuration(key, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("STOCK_BUFFER"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("STOCK_BUFFER must be number: %w", err)
		}
		cfg.StockBuffer = n
	}
	return nil
}

//必須チェック
func (cfg Config) validate() error {
	if cfg.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.InventoryDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			if cfg.PostgresUser == "" {
				return fmt.Errorf("POSTGRES_USER is required")
			}
			if cfg.PostgresDB == "" {
				return fmt.Errorf("POSTGRES_DB is required")
			}
			if cfg.PostgresHost == "" {
				return fmt.Errorf("POSTGRES_HOST is required")
			}
		}
	default:
		return fmt.Errorf("INVENTORY_DRIVER must be %s or %s", DriverMemory, DriverPostgres)
	}

	switch cfg.CartStorage {
	case DriverMemory:
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
	default:
		return fmt.Errorf("CART_STORAGE must be %s or %s", DriverMemory, DriverRedis)
	}

	if cfg.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if cfg.StockBuffer < 0 {
		return fmt.Errorf("STOCK_BUFFER must not be negative")
	}
	return nil
}

// gorm に渡す DSN。DATABASE_URL があれば最優先で使う
func (cfg Config) PostgresDSN() string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresSSLMode,
	)
}

func (cfg Config) IsProd() bool {
	return cfg.GoEnv == "prod"
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be number: %w", key, err)
	}
	*dst = i
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be duration (e.g. 15m): %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
