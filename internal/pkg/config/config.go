// internal/pkg/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 聚合了服务运行所需的全部配置。
// 结构与 configs/*.yaml 一一对应，环境变量可以覆盖关键字段。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	ServiceName string `yaml:"serviceName"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
}

type InfraConfig struct {
	Mysql     MysqlConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Outbox    OutboxConfig    `yaml:"outbox"`
}

type MysqlConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"` // "host1:port1,host2:port2"
}

type KafkaConfig struct {
	Brokers    string `yaml:"brokers"`
	OrderTopic string `yaml:"orderTopic"`
	// EventTopics 把事件类型映射为 outbox relay 的目标 topic；
	// 未列出的类型按 order.created -> order-created 规则推导。
	EventTopics map[string]string `yaml:"eventTopics"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
	// SampleRatio 取 (0,1) 时按比例采样，其余值全采样。
	SampleRatio float64 `yaml:"sampleRatio"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Servers string `yaml:"servers"`
}

type OutboxConfig struct {
	RelayInterval time.Duration `yaml:"relayInterval"`
	BatchSize     int           `yaml:"batchSize"`
	// EmbeddedRelay 为 true 时 order-service 进程内启动 relay 循环，
	// 适合单实例部署；多实例请用独立的 outbox-relay 进程竞争 ZK 租约。
	EmbeddedRelay bool `yaml:"embeddedRelay"`
}

// Load 从 YAML 文件加载配置，再用环境变量覆盖。
// 文件不存在时只使用默认值 + 环境变量，方便本地快速启动。
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "read config file %s", path)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			ServiceName: "order-service",
			Port:        8084,
			LogLevel:    "info",
		},
		Infra: InfraConfig{
			Mysql:     MysqlConfig{DSN: "root:root@tcp(localhost:3306)/meridian?charset=utf8mb4&parseTime=True&loc=Local"},
			Redis:     RedisConfig{Addrs: "localhost:6379"},
			Kafka:     KafkaConfig{Brokers: "localhost:9092", OrderTopic: "order-events"},
			Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			Zookeeper: ZookeeperConfig{Servers: "localhost:2181"},
			Outbox:    OutboxConfig{RelayInterval: 5 * time.Second, BatchSize: 100},
		},
	}
}

// applyEnvOverrides 让部署环境无需改动配置文件即可覆盖关键参数。
func applyEnvOverrides(cfg *Config) {
	set := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*target = v
		}
	}
	set("MYSQL_DSN", &cfg.Infra.Mysql.DSN)
	set("REDIS_ADDRS", &cfg.Infra.Redis.Addrs)
	set("KAFKA_BROKERS", &cfg.Infra.Kafka.Brokers)
	set("ORDER_EVENTS_TOPIC", &cfg.Infra.Kafka.OrderTopic)
	set("JAEGER_ENDPOINT", &cfg.Infra.Jaeger.Endpoint)
	if v, ok := os.LookupEnv("JAEGER_SAMPLE_RATIO"); ok {
		if ratio, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Infra.Jaeger.SampleRatio = ratio
		}
	}
	set("NACOS_SERVER_ADDRS", &cfg.Infra.Nacos.ServerAddrs)
	set("NACOS_NAMESPACE", &cfg.Infra.Nacos.Namespace)
	set("NACOS_GROUP", &cfg.Infra.Nacos.Group)
	set("ZK_SERVERS", &cfg.Infra.Zookeeper.Servers)
	set("LOG_LEVEL", &cfg.App.LogLevel)
}
