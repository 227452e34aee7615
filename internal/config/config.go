package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port   int   `mapstructure:"port"`
	NodeID int64 `mapstructure:"node_id"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql | postgres | sqlite
	DSN          string `mapstructure:"dsn"`    // 非空时优先使用
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderEvent  string `mapstructure:"order_event"`
	WalletEvent string `mapstructure:"wallet_event"`
}

type BusinessConfig struct {
	OrderTimeoutMinutes int           `mapstructure:"order_timeout_minutes"`
	MaxRetryCount       int           `mapstructure:"max_retry_count"`
	TxTimeout           time.Duration `mapstructure:"tx_timeout"`
	PayLockTTL          time.Duration `mapstructure:"pay_lock_ttl"`
	OrderTimeoutScan    time.Duration `mapstructure:"order_timeout_scan"`
	OutboxPollInterval  time.Duration `mapstructure:"outbox_poll_interval"`
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.node_id", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("kafka.topic.order_event", "game-order-event")
	v.SetDefault("kafka.topic.wallet_event", "game-wallet-event")
	v.SetDefault("business.order_timeout_minutes", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.tx_timeout", 10*time.Second)
	v.SetDefault("business.pay_lock_ttl", 30*time.Second)
	v.SetDefault("business.order_timeout_scan", 10*time.Second)
	v.SetDefault("business.outbox_poll_interval", 200*time.Millisecond)
	v.SetDefault("business.reconcile_interval", 10*time.Minute)
}

// LoadConfig 加载配置文件
//
// 先加载 .env（不存在则忽略），环境变量可以覆盖任意配置项，
// 例如 DATABASE_PASSWORD 覆盖 database.password。
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// minPayLockTTL 订单锁的最短持有时间，不小于一次重试间隔
const minPayLockTTL = 100 * time.Millisecond

// Validate 检查配置项
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if c.Business.OrderTimeoutMinutes <= 0 {
		return fmt.Errorf("business.order_timeout_minutes 必须大于0, 当前: %d", c.Business.OrderTimeoutMinutes)
	}
	if c.Business.TxTimeout <= 0 {
		return fmt.Errorf("business.tx_timeout 必须大于0, 当前: %v", c.Business.TxTimeout)
	}
	if c.Redis.Enabled && c.Business.PayLockTTL < minPayLockTTL {
		return fmt.Errorf("business.pay_lock_ttl 不能小于 %v, 当前: %v", minPayLockTTL, c.Business.PayLockTTL)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.enabled 为 true 时必须配置 kafka.brokers")
	}
	return nil
}

// OrderTimeout 订单支付超时时间
func (c *BusinessConfig) OrderTimeout() time.Duration {
	return time.Duration(c.OrderTimeoutMinutes) * time.Minute
}

// Default 只包含默认值的配置，测试和本地调试使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}
