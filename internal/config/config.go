package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hazard-service/internal/alert"
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/proximity"
)

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type DatabaseConfig struct {
	// DSN empty keeps events in memory.
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	// URL or Addr enables the Redis cache; otherwise an in-process cache is used.
	URL              string        `mapstructure:"url"`
	Addr             string        `mapstructure:"addr"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerFailures  int           `mapstructure:"breaker_failures"`
	BreakerResetWait time.Duration `mapstructure:"breaker_reset"`
}

func (r RedisConfig) Enabled() bool { return r.URL != "" || r.Addr != "" }

type DedupConfig struct {
	WindowMinutes int           `mapstructure:"window_minutes"`
	Precision     int           `mapstructure:"precision"`
	TTL           time.Duration `mapstructure:"ttl"`
	MemoryMaxKeys int           `mapstructure:"memory_max_keys"`
}

type SubscriberConfig struct {
	FreshWindow           time.Duration `mapstructure:"fresh_window"`
	RepeatWindow          time.Duration `mapstructure:"repeat_window"`
	MinDisplacementMeters float64       `mapstructure:"min_displacement_meters"`
}

type GeoConfig struct {
	RegionEnabled bool          `mapstructure:"region_enabled"`
	Region        hazard.Region `mapstructure:"region"`
}

// ServiceRegion is nil when region checks are disabled.
func (g GeoConfig) ServiceRegion() *hazard.Region {
	if !g.RegionEnabled {
		return nil
	}
	r := g.Region
	return &r
}

type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	ClientID     string `mapstructure:"client_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	IngestTopic  string `mapstructure:"ingest_topic"`
	AlertPrefix  string `mapstructure:"alert_prefix"`
	PublishTopic string `mapstructure:"publish_topic"`
	QoS          byte   `mapstructure:"qos"`
}

func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type GeofenceConfig struct {
	// ZonesPath optionally seeds zones from a YAML file at startup.
	ZonesPath   string `mapstructure:"zones_path"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Proximity   proximity.Options `mapstructure:"proximity"`
	Alert       alert.Config      `mapstructure:"alert"`
	Subscribers SubscriberConfig  `mapstructure:"subscribers"`
	Geo         GeoConfig         `mapstructure:"geo"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Geofence    GeofenceConfig    `mapstructure:"geofence"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.timeout", 3*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", 2*time.Second)
	v.SetDefault("redis.breaker_failures", 5)
	v.SetDefault("redis.breaker_reset", 30*time.Second)

	v.SetDefault("dedup.window_minutes", 5)
	v.SetDefault("dedup.precision", 4)
	v.SetDefault("dedup.ttl", 1800*time.Second)
	v.SetDefault("dedup.memory_max_keys", 100000)

	v.SetDefault("proximity.max_distance_meters", proximity.DefaultMaxDistanceMeters)
	v.SetDefault("proximity.tolerance_degrees", proximity.DefaultToleranceDegrees)

	ad := alert.DefaultConfig()
	v.SetDefault("alert.warning_cooldown", ad.WarningCooldown)
	v.SetDefault("alert.hazard_cooldown", ad.HazardCooldown)
	v.SetDefault("alert.emergency_cooldown", ad.EmergencyCooldown)
	v.SetDefault("alert.queue_size", ad.QueueSize)
	v.SetDefault("alert.playback_hold", ad.PlaybackHold)

	v.SetDefault("subscribers.fresh_window", 30*time.Minute)
	v.SetDefault("subscribers.repeat_window", 2*time.Minute)
	v.SetDefault("subscribers.min_displacement_meters", proximity.DefaultMinDisplacementMeters)

	v.SetDefault("geo.region_enabled", true)
	v.SetDefault("geo.region.min_lat", hazard.DefaultRegion.MinLat)
	v.SetDefault("geo.region.max_lat", hazard.DefaultRegion.MaxLat)
	v.SetDefault("geo.region.min_lng", hazard.DefaultRegion.MinLng)
	v.SetDefault("geo.region.max_lng", hazard.DefaultRegion.MaxLng)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.ingest_topic", "hazard-eye/detections/#")
	v.SetDefault("mqtt.alert_prefix", "hazard-eye/alerts")
	v.SetDefault("mqtt.publish_topic", "hazard-eye/accepted")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "hazard-detections")

	v.SetDefault("catalog.path", "")

	v.SetDefault("geofence.zones_path", "")
	v.SetDefault("geofence.topic_prefix", "hazard-eye/geofence")
	v.SetDefault("geofence.qos", 2)
}

// Load reads defaults, an optional config file and HAZARD_* environment variables, in
// increasing precedence. DATABASE_URL and REDIS_URL are honoured as well.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("HAZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.dsn", "HAZARD_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "HAZARD_REDIS_URL", "REDIS_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Dedup.WindowMinutes <= 0 {
		errs = append(errs, errors.New("dedup.window_minutes must be positive"))
	}
	if c.Dedup.Precision < 0 || c.Dedup.Precision > 10 {
		errs = append(errs, errors.New("dedup.precision must be within [0, 10]"))
	}
	if bucket := time.Duration(c.Dedup.WindowMinutes) * time.Minute; c.Dedup.TTL < bucket {
		errs = append(errs, fmt.Errorf("dedup.ttl %s must be at least the bucket width %s", c.Dedup.TTL, bucket))
	}
	if c.Proximity.MaxDistanceMeters <= 0 {
		errs = append(errs, errors.New("proximity.max_distance_meters must be positive"))
	}
	if c.Proximity.ToleranceDegrees <= 0 || c.Proximity.ToleranceDegrees > 180 {
		errs = append(errs, errors.New("proximity.tolerance_degrees must be within (0, 180]"))
	}
	if c.Alert.QueueSize <= 0 {
		errs = append(errs, errors.New("alert.queue_size must be positive"))
	}
	if c.Geo.RegionEnabled {
		r := c.Geo.Region
		if r.MinLat >= r.MaxLat || r.MinLng >= r.MaxLng {
			errs = append(errs, errors.New("geo.region min bounds must be below max bounds"))
		}
		if r.MinLat < -90 || r.MaxLat > 90 || r.MinLng < -180 || r.MaxLng > 180 {
			errs = append(errs, errors.New("geo.region is outside valid coordinates"))
		}
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1 or 2"))
	}
	if c.Geofence.QoS > 2 {
		errs = append(errs, errors.New("geofence.qos must be 0, 1 or 2"))
	}
	return errors.Join(errs...)
}
