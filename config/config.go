package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "IM_SUPPORT"

type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	GRPC        GRPCConfig        `mapstructure:"grpc"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	Hub         HubConfig         `mapstructure:"hub"`
	Session     SessionConfig     `mapstructure:"session"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Otel        OtelConfig        `mapstructure:"otel"`

	v *viper.Viper
}

type ServiceConfig struct {
	ID       string `mapstructure:"id"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	SSEHeartbeat      time.Duration `mapstructure:"sse_heartbeat"`
}

type GRPCConfig struct {
	Address string `mapstructure:"address"`
}

type PresenceConfig struct {
	Shards      int           `mapstructure:"shards"`
	IdleWindow  time.Duration `mapstructure:"idle_window"`
	MaxTracked  int           `mapstructure:"max_tracked"`
	LockStripes int           `mapstructure:"lock_stripes"`
}

type HubConfig struct {
	EvictionInterval time.Duration `mapstructure:"eviction_interval"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MailboxSize      int           `mapstructure:"mailbox_size"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
	BufferSize       int           `mapstructure:"buffer_size"`
}

type SessionConfig struct {
	RequestTTL     time.Duration `mapstructure:"request_ttl"`
	MaxPending     int           `mapstructure:"max_pending"`
	TombstoneTTL   time.Duration `mapstructure:"tombstone_ttl"`
	MaxTombstones  int           `mapstructure:"max_tombstones"`
	ChatBufferSize int           `mapstructure:"chat_buffer_size"`
}

type DashboardConfig struct {
	Fanout      int           `mapstructure:"fanout"`
	BufferSize  int           `mapstructure:"buffer_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type DirectoryConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

type PersistenceConfig struct {
	Driver    string      `mapstructure:"driver"` // log | amqp | mongo
	QueueSize int         `mapstructure:"queue_size"`
	Workers   int         `mapstructure:"workers"`
	Exchange  string      `mapstructure:"exchange"`
	Mongo     MongoConfig `mapstructure:"mongo"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PubSubConfig struct {
	// AMQPURL empty selects the in-process gochannel bus.
	AMQPURL         string `mapstructure:"amqp_url"`
	CommandExchange string `mapstructure:"command_exchange"`
}

type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Logs        bool   `mapstructure:"logs"`
}

// flags registers every key with its default. Flags override the file,
// the file overrides defaults, env overrides everything.
func flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("im-support", pflag.ContinueOnError)

	fs.String("service.id", "im-support-1", "service instance id")
	fs.String("service.log_level", "info", "log level: debug|info|warn|error")

	fs.String("http.address", ":8080", "HTTP listen address")
	fs.Duration("http.read_header_timeout", 5*time.Second, "HTTP read header timeout")
	fs.Duration("http.shutdown_timeout", 10*time.Second, "HTTP graceful shutdown timeout")
	fs.Duration("http.poll_timeout", 30*time.Second, "long-poll hold time")
	fs.Duration("http.sse_heartbeat", 15*time.Second, "SSE keep-alive comment period")

	fs.String("grpc.address", ":9090", "gRPC health listen address")

	fs.Int("presence.shards", 32, "presence registry shards")
	fs.Duration("presence.idle_window", 60*time.Second, "heartbeat idle window")
	fs.Int("presence.max_tracked", 0, "idle tracker capacity (0 = unbounded)")
	fs.Int("presence.lock_stripes", 256, "per-user lock stripes")

	fs.Duration("hub.eviction_interval", time.Minute, "hub janitor interval")
	fs.Duration("hub.idle_timeout", 5*time.Minute, "hub cell idle timeout")
	fs.Int("hub.mailbox_size", 256, "hub cell mailbox size")
	fs.Duration("hub.send_timeout", 500*time.Millisecond, "per event send timeout")
	fs.Int("hub.buffer_size", 256, "notification stream buffer")

	fs.Duration("session.request_ttl", 2*time.Minute, "pending session request ttl")
	fs.Int("session.max_pending", 10000, "pending session request capacity")
	fs.Duration("session.tombstone_ttl", time.Hour, "closed room memory")
	fs.Int("session.max_tombstones", 10000, "closed room memory capacity")
	fs.Int("session.chat_buffer_size", 256, "chat socket buffer")

	fs.Int("dashboard.fanout", 32, "concurrent dashboard sends")
	fs.Int("dashboard.buffer_size", 16, "dashboard stream buffer")
	fs.Duration("dashboard.send_timeout", 100*time.Millisecond, "dashboard send timeout")

	fs.Int("directory.cache_size", 10000, "display name cache size")

	fs.String("persistence.driver", "log", "record sink: log|amqp|mongo")
	fs.Int("persistence.queue_size", 4096, "record queue size")
	fs.Int("persistence.workers", 2, "record writers")
	fs.String("persistence.exchange", "im_support.records", "AMQP exchange for records")
	fs.String("persistence.mongo.uri", "mongodb://localhost:27017", "mongo uri")
	fs.String("persistence.mongo.database", "im_support", "mongo database")
	fs.Duration("persistence.mongo.timeout", 5*time.Second, "mongo operation timeout")

	fs.String("pubsub.amqp_url", "", "AMQP url; empty uses the in-process bus")
	fs.String("pubsub.command_exchange", "im_support.commands", "AMQP exchange for admin commands")

	fs.String("otel.endpoint", "", "OTLP gRPC endpoint; empty disables export")
	fs.String("otel.service_name", "im-support-service", "OTel service name")
	fs.Bool("otel.logs", false, "export logs through OTLP")

	return fs
}

// LoadConfig reads file (optional) and command line args.
func LoadConfig(file string, args []string) (*Config, error) {
	fs := flags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Presence.IdleWindow <= 0 {
		errs = append(errs, errors.New("presence.idle_window must be positive"))
	}
	if c.Presence.Shards <= 0 {
		errs = append(errs, errors.New("presence.shards must be positive"))
	}
	switch c.Persistence.Driver {
	case "log", "amqp", "mongo":
	default:
		errs = append(errs, fmt.Errorf("persistence.driver %q is not one of log|amqp|mongo", c.Persistence.Driver))
	}
	if _, err := ParseLevel(c.Service.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WatchConfig re-reads the file on change and reports the new log level.
// Only the level is hot; everything else needs a restart.
func (c *Config) WatchConfig(onLevel func(slog.Level)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		lvl, err := ParseLevel(c.v.GetString("service.log_level"))
		if err != nil {
			slog.Warn("[CONFIG] ignored invalid log level", slog.Any("err", err))
			return
		}
		onLevel(lvl)
		slog.Info("[CONFIG] log level reloaded", slog.String("level", lvl.String()), slog.String("file", e.Name))
	})
	c.v.WatchConfig()
}

func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("service.log_level: %w", err)
	}
	return lvl, nil
}
