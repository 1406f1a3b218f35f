package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/israelseleshi/building-management-system-sub000/pkg/config"
	"github.com/israelseleshi/building-management-system-sub000/pkg/database"
	pkglog "github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/pubsub"
	"github.com/israelseleshi/building-management-system-sub000/pkg/storage"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Cassandra CassandraConfig `mapstructure:"cassandra"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	PubSub    pubsub.Config   `mapstructure:"pubsub"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DeepLink  DeepLinkConfig  `mapstructure:"deeplink"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Avatars   AvatarConfig    `mapstructure:"avatars"`
	Log       pkglog.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// ToDatabaseConfig converts to pkg/database Config.
func (c DatabaseConfig) ToDatabaseConfig() *database.Config {
	return &database.Config{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		TimeZone:        "UTC",
		FilePath:        c.FilePath,
		MaxIdleConns:    c.MaxIdleConns,
		MaxOpenConns:    c.MaxOpenConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
	}
}

// MessagesConfig selects where the message log lives: "gorm" or "cassandra".
type MessagesConfig struct {
	Driver string `mapstructure:"driver"`
}

type CassandraConfig struct {
	Hosts          []string      `mapstructure:"hosts"`
	Keyspace       string        `mapstructure:"keyspace"`
	Consistency    string        `mapstructure:"consistency"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CreateSchema   bool          `mapstructure:"create_schema"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig configures the history read cache. Driver is "redis" or "none".
type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// DeepLinkConfig configures auto-send tokens. TokenStore is "redis" or "memory".
type DeepLinkConfig struct {
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	TokenStore  string        `mapstructure:"token_store"`
	TokenPrefix string        `mapstructure:"token_prefix"`
}

// AvatarConfig selects how avatar references become URLs: "none", "static"
// (BaseURL + key) or "s3" (presigned, valid for URLTTL).
type AvatarConfig struct {
	Driver  string           `mapstructure:"driver"`
	BaseURL string           `mapstructure:"base_url"`
	URLTTL  time.Duration    `mapstructure:"url_ttl"`
	S3      storage.S3Config `mapstructure:"s3"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	SendBufferSize  int           `mapstructure:"send_buffer_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8095)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "messaging")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "messaging.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("messages.driver", "gorm")

	v.SetDefault("cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("cassandra.keyspace", "messaging")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("cassandra.create_schema", false)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.prefix", "messaging:history")
	v.SetDefault("cache.ttl", "30s")

	def := pubsub.DefaultConfig()
	v.SetDefault("pubsub.driver", def.Driver)
	v.SetDefault("pubsub.redis.pool_size", def.Redis.PoolSize)
	v.SetDefault("pubsub.redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("pubsub.redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("pubsub.kafka.brokers", def.Kafka.Brokers)
	v.SetDefault("pubsub.kafka.group_id", def.Kafka.GroupID)
	v.SetDefault("pubsub.kafka.partitions", def.Kafka.Partitions)
	v.SetDefault("pubsub.nats.url", def.NATS.URL)
	v.SetDefault("pubsub.nats.max_reconnects", def.NATS.MaxReconnects)
	v.SetDefault("pubsub.nats.reconnect_wait", def.NATS.ReconnectWait)

	v.SetDefault("auth.issuer", "building-management")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("deeplink.token_ttl", "24h")
	v.SetDefault("deeplink.token_store", "memory")
	v.SetDefault("deeplink.token_prefix", "messaging:deeplink")

	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.send_buffer_size", 256)

	v.SetDefault("avatars.driver", "none")
	v.SetDefault("avatars.url_ttl", "15m")
	v.SetDefault("avatars.s3.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "messaging-service")
}

// Load reads config/<name>.yaml (if present), defaults and env overrides.
func Load(configPath, configName string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, configName)
	if err != nil {
		return nil, err
	}
	return build(v)
}

// LoadFile reads one explicit config file.
func LoadFile(file string) (*Config, error) {
	v, err := pkgconfig.LoadFile(file)
	if err != nil {
		return nil, err
	}
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Env overrides (for Docker)
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	_ = v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("pubsub.nats.url", "NATS_URL")
	_ = v.BindEnv("avatars.s3.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("avatars.s3.bucket", "S3_BUCKET")
	_ = v.BindEnv("avatars.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = v.BindEnv("avatars.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// CASSANDRA_HOSTS: comma-separated, e.g. "cassandra:9042" or "host1:9042,host2:9042"
	if hosts := os.Getenv("CASSANDRA_HOSTS"); hosts != "" {
		cfg.Cassandra.Hosts = strings.Split(strings.TrimSpace(hosts), ",")
		for i, h := range cfg.Cassandra.Hosts {
			cfg.Cassandra.Hosts[i] = strings.TrimSpace(h)
		}
	}

	// pubsub.redis follows the top-level redis block unless set explicitly.
	if cfg.PubSub.Redis.Address == "" {
		cfg.PubSub.Redis.Address = cfg.Redis.Address
		cfg.PubSub.Redis.Password = cfg.Redis.Password
		cfg.PubSub.Redis.DB = cfg.Redis.DB
	}

	return &cfg, nil
}
