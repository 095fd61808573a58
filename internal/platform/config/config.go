package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Log       Log
	Database  Database
	Authority Authority
	Profile   Profile
	Notifier  Notifier
	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"MTOKEN_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	// TrustedProxies lists addresses or CIDR ranges whose forwarding headers
	// are believed. Empty means the connection peer is always the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	// DefaultAppID is used by the notifier when the caller omits appId.
	DefaultAppID string `env:"DEFAULT_APP_ID" envDefault:"MY_APP"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// BrokenConnPolicy decides what happens when the database stops answering
// health checks.
type BrokenConnPolicy string

const (
	// PolicyIsolate keeps serving and reports not-ready until the database recovers.
	PolicyIsolate BrokenConnPolicy = "isolate"
	// PolicyRestart stops the process so its supervisor can restart it.
	PolicyRestart BrokenConnPolicy = "restart"
)

type Database struct {
	// Backend selects the identity store: "postgres" or "memory".
	Backend  string `env:"STORE_BACKEND" envDefault:"postgres"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	Table    string `env:"IDENTITY_TABLE" envDefault:"personal_data"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`

	StoreTimeout        time.Duration    `env:"STORE_TIMEOUT" envDefault:"5s"`
	HealthCheckInterval time.Duration    `env:"DB_HEALTH_INTERVAL" envDefault:"15s"`
	BrokenConnPolicy    BrokenConnPolicy `env:"DB_BROKEN_CONN_POLICY" envDefault:"isolate"`
}

// DSN assembles a postgres connection URL.
func (d Database) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

// Authority configures the credential exchange with the external
// authorization service.
type Authority struct {
	URL                string        `env:"GDX_AUTH_URL"`
	ConsumerKey        string        `env:"CONSUMER_KEY"`
	ConsumerSecret     string        `env:"CONSUMER_SECRET"`
	AgentID            string        `env:"AGENT_ID"`
	Timeout            time.Duration `env:"AUTHORITY_TIMEOUT" envDefault:"10s"`
	InsecureSkipVerify bool          `env:"GDX_INSECURE_SKIP_VERIFY" envDefault:"false"`
}

// Profile configures the citizen profile endpoint. The consumer key is
// shared with Authority.
type Profile struct {
	URL     string        `env:"DEPROC_API_URL"`
	Timeout time.Duration `env:"PROFILE_TIMEOUT" envDefault:"10s"`
}

type Notifier struct {
	URL         string        `env:"DGA_NOTIFY_API_URL" envDefault:"https://api.egov.go.th/ws/dga/czp/v1/notification/push"`
	ConsumerKey string        `env:"DGA_CONSUMER_KEY"`
	Token       string        `env:"DGA_TOKEN"`
	Title       string        `env:"NOTIFY_TITLE" envDefault:"แจ้งเตือนจากระบบ"`
	Timeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

// RedisConfig configures the optional Redis connection. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures audit publishing. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"mtoken.audit"`
	Partitions int32    `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	// ReplicationFactor of -1 uses the broker default.
	ReplicationFactor int16 `env:"KAFKA_AUDIT_REPLICATION" envDefault:"-1"`
}

type RateLimit struct {
	Disabled          bool          `env:"RATE_LIMIT_DISABLED" envDefault:"false"`
	RequestsPerWindow int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	Window            time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads Config from the environment and validates it.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required settings are present. Credentials are not
// verified beyond presence.
func (c Config) Validate() error {
	var errs []error
	if c.Authority.URL == "" {
		errs = append(errs, errors.New("GDX_AUTH_URL is required"))
	}
	if c.Authority.ConsumerKey == "" {
		errs = append(errs, errors.New("CONSUMER_KEY is required"))
	}
	if c.Authority.ConsumerSecret == "" {
		errs = append(errs, errors.New("CONSUMER_SECRET is required"))
	}
	if c.Authority.AgentID == "" {
		errs = append(errs, errors.New("AGENT_ID is required"))
	}
	if c.Profile.URL == "" {
		errs = append(errs, errors.New("DEPROC_API_URL is required"))
	}
	switch c.Database.Backend {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q must be postgres or memory", c.Database.Backend))
	}
	switch c.Database.BrokenConnPolicy {
	case PolicyIsolate, PolicyRestart:
	default:
		errs = append(errs, fmt.Errorf("DB_BROKEN_CONN_POLICY %q must be isolate or restart", c.Database.BrokenConnPolicy))
	}
	if c.Database.HealthCheckInterval <= 0 {
		errs = append(errs, errors.New("DB_HEALTH_INTERVAL must be positive"))
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	return errors.Join(errs...)
}
