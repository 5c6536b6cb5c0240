package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all tunables so main stays lean. Values come from the
// environment with code defaults; nothing else in the tree reads os.Getenv.
type Config struct {
	Server    Server
	Redis     Redis
	Postgres  Postgres
	Kafka     Kafka
	Policy    Policy
	Risk      Risk
	RateLimit RateLimit
	Session   Session
	Audit     Audit
	Replay    Replay
	Tenants   map[string]Tenant
	JWTKey    string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Redis holds connection settings for the shared KV store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres holds the DSN for entitlements and the audit table.
type Postgres struct {
	DSN string
}

// Kafka holds the audit stream settings. Empty Brokers disables the stream sink.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Policy selects and configures the decision backend.
type Policy struct {
	Backend    string // "remote" or "wasm"
	RemoteURL  string
	WASMModule string // path to the compiled policy bytecode
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// Risk configures the deterministic scoring engine. The multiplier and
// thresholds are configuration, not code.
type Risk struct {
	Weight            int
	MediumThreshold   int
	HighThreshold     int
	CriticalThreshold int
}

// RateLimit carries per-risk-level request caps for the 60s window.
type RateLimit struct {
	Window     time.Duration
	Low        int
	Medium     int
	High       int
	DefaultCap int
}

// Session bounds the authoritative session store.
type Session struct {
	TTL          time.Duration
	IndexMargin  time.Duration
	StoreTimeout time.Duration
}

// Audit bounds the append path.
type Audit struct {
	QueueDepth     int
	EnqueueTimeout time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
}

// Replay bounds the anti-replay nonce window.
type Replay struct {
	TTL time.Duration
}

// Tenant is the static projection the policy input builder needs.
type Tenant struct {
	Plan      string
	Throttled bool
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: getEnv("AEGIS_ADDR", ":8080"),
		},
		Redis: Redis{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 100*time.Millisecond),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 100*time.Millisecond),
		},
		Postgres: Postgres{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "aegis.audit"),
		},
		Policy: Policy{
			Backend:    getEnv("POLICY_BACKEND", "remote"),
			RemoteURL:  getEnv("POLICY_REMOTE_URL", "http://localhost:8181"),
			WASMModule: getEnv("POLICY_WASM_MODULE", ""),
			Timeout:    getDuration("POLICY_TIMEOUT", 5*time.Second),
			CacheTTL:   getDuration("POLICY_CACHE_TTL", 5*time.Second),
		},
		Risk: Risk{
			Weight:            getInt("RISK_WEIGHT", 5),
			MediumThreshold:   getInt("RISK_MEDIUM_THRESHOLD", 30),
			HighThreshold:     getInt("RISK_HIGH_THRESHOLD", 60),
			CriticalThreshold: getInt("RISK_CRITICAL_THRESHOLD", 80),
		},
		RateLimit: RateLimit{
			Window:     getDuration("RATE_WINDOW", 60*time.Second),
			Low:        getInt("RATE_LIMIT_LOW", 1000),
			Medium:     getInt("RATE_LIMIT_MEDIUM", 200),
			High:       getInt("RATE_LIMIT_HIGH", 20),
			DefaultCap: getInt("RATE_LIMIT_DEFAULT", 10),
		},
		Session: Session{
			TTL:          getDuration("SESSION_TTL", 8*time.Hour),
			IndexMargin:  getDuration("SESSION_INDEX_MARGIN", 60*time.Second),
			StoreTimeout: getDuration("SESSION_STORE_TIMEOUT", 100*time.Millisecond),
		},
		Audit: Audit{
			QueueDepth:     getInt("AUDIT_QUEUE_DEPTH", 4096),
			EnqueueTimeout: getDuration("AUDIT_ENQUEUE_TIMEOUT", 5*time.Millisecond),
			MaxAttempts:    getInt("AUDIT_MAX_ATTEMPTS", 5),
			BaseBackoff:    getDuration("AUDIT_BASE_BACKOFF", 50*time.Millisecond),
		},
		Replay: Replay{
			TTL: getDuration("REPLAY_TTL", 5*time.Minute),
		},
		Tenants: parseTenants(getEnv("AEGIS_TENANTS", "")),
		JWTKey:  getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// parseTenants reads comma-separated id:plan[:throttled] entries, e.g.
// "acme:enterprise:true,globex:standard". Entries without a plan are skipped;
// a missing or malformed throttled flag means not throttled.
func parseTenants(s string) map[string]Tenant {
	out := map[string]Tenant{}
	for _, item := range splitNonEmpty(s) {
		parts := strings.Split(item, ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		t := Tenant{Plan: parts[1]}
		if len(parts) > 2 {
			t.Throttled, _ = strconv.ParseBool(parts[2])
		}
		out[parts[0]] = t
	}
	return out
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
