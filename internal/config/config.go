package config

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig 数据库配置，driver 支持 mysql / postgres
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// DSN 按驱动拼接连接串
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
	ConsumerGroup string           `mapstructure:"consumer_group"`
}

type KafkaTopicConfig struct {
	PayResult string `mapstructure:"pay_result"`
}

type BusinessConfig struct {
	OrderTimeoutMinutes     int `mapstructure:"order_timeout_minutes"`
	MaxRetryCount           int `mapstructure:"max_retry_count"`
	ShippedAutoCompleteDays int `mapstructure:"shipped_auto_complete_days"`
	LockTTLSeconds          int `mapstructure:"lock_ttl_seconds"`
	ConfigCacheTTLSeconds   int `mapstructure:"config_cache_ttl_seconds"`
}

// GatewayConfig 外部支付网关确认配置（仅 mock）
type GatewayConfig struct {
	MockApprove    bool `mapstructure:"mock_approve"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// JobsConfig 定时任务 cron 表达式
type JobsConfig struct {
	EntitlementSweepCron    string `mapstructure:"entitlement_sweep_cron"`
	ShippedAutoCompleteCron string `mapstructure:"shipped_auto_complete_cron"`
	OutboxRequeueCron       string `mapstructure:"outbox_requeue_cron"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("kafka.topic.pay_result", "contentpay.pay_result")
	v.SetDefault("kafka.consumer_group", "contentpay-sales-stats")
	v.SetDefault("business.order_timeout_minutes", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.shipped_auto_complete_days", 7)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.config_cache_ttl_seconds", 300)
	v.SetDefault("gateway.mock_approve", true)
	v.SetDefault("gateway.timeout_seconds", 5)
	v.SetDefault("jobs.entitlement_sweep_cron", "*/10 * * * *")
	v.SetDefault("jobs.shipped_auto_complete_cron", "0 3 * * *")
	v.SetDefault("jobs.outbox_requeue_cron", "0 * * * *")
	v.SetDefault("log.level", "info")
}

// Load 读取配置文件，环境变量 CONTENTPAY_XXX_YYY 覆盖 xxx.yyy
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONTENTPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	GlobalConfig = cfg
	return cfg
}
