package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	id "custodia/pkg/domain"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string

	Ledger      string
	DatabaseURL string
	TxTimeout   time.Duration

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	Redis        RedisConfig
	CertCacheTTL time.Duration

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers name the client. Empty means every peer is the client.
	TrustedProxies []netip.Prefix

	Kafka     KafkaConfig
	Fees      FeeConfig
	RateLimit RateLimitConfig

	Genesis []GenesisBalance
}

// RedisConfig configures the optional certificate cache. An empty URL
// disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit outbox relay. It runs only with the
// postgres ledger and a non-empty broker list.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
	RelayBatch    int
}

// RateLimitConfig bounds requests per client IP and window. A zero limit
// disables that class.
type RateLimitConfig struct {
	Read   int
	Write  int
	Window time.Duration
}

// FeeConfig overrides the certificate fee schedule.
type FeeConfig struct {
	BoxBaseFee   uint64
	PerByteFee   uint64
	AssetReserve uint64
}

// GenesisBalance seeds an account at startup.
type GenesisBalance struct {
	Address id.Address
	Amount  uint64
}

// DevAddress is the address used for "@name" shorthands in CUSTODIA_GENESIS
// and by the token tool.
func DevAddress(name string) id.Address {
	return id.DeriveAddress("user", name)
}

// CertCacheEnabled reports whether certificate lookups go through Redis.
// The memory ledger starts empty on every boot, so cached records from an
// earlier process would describe certificates that no longer exist.
func (c Server) CertCacheEnabled() bool {
	return c.Redis.URL != "" && c.Ledger == LedgerPostgres
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Server, error) {
	p := parser{getenv: getenv}

	cfg := Server{
		Addr:          p.str("CUSTODIA_ADDR", ":8080"),
		LogLevel:      p.str("CUSTODIA_LOG_LEVEL", "info"),
		Ledger:        p.str("CUSTODIA_LEDGER", LedgerMemory),
		DatabaseURL:   p.str("DATABASE_URL", ""),
		TxTimeout:     p.duration("CUSTODIA_TX_TIMEOUT", 5*time.Second),
		JWTSigningKey: p.str("CUSTODIA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     p.str("CUSTODIA_JWT_ISSUER", "custodia"),
		JWTAudience:   p.str("CUSTODIA_JWT_AUDIENCE", "custodia-api"),
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		CertCacheTTL:   p.duration("CUSTODIA_CERT_CACHE_TTL", 24*time.Hour),
		TrustedProxies: p.prefixes("CUSTODIA_TRUSTED_PROXIES"),
		Kafka: KafkaConfig{
			Brokers:       p.list("KAFKA_BROKERS"),
			AuditTopic:    p.str("CUSTODIA_AUDIT_TOPIC", "custodia.audit"),
			RelayInterval: p.duration("CUSTODIA_RELAY_INTERVAL", time.Second),
			RelayBatch:    p.integer("CUSTODIA_RELAY_BATCH", 100),
		},
		Fees: FeeConfig{
			BoxBaseFee:   p.unsigned("CUSTODIA_FEE_BOX_BASE", 2500),
			PerByteFee:   p.unsigned("CUSTODIA_FEE_PER_BYTE", 400),
			AssetReserve: p.unsigned("CUSTODIA_FEE_ASSET_RESERVE", 100_000),
		},
		RateLimit: RateLimitConfig{
			Read:   p.integer("CUSTODIA_RATE_LIMIT_READ", 600),
			Write:  p.integer("CUSTODIA_RATE_LIMIT_WRITE", 120),
			Window: p.duration("CUSTODIA_RATE_LIMIT_WINDOW", time.Minute),
		},
	}
	if p.err != nil {
		return Server{}, p.err
	}

	genesis, err := ParseGenesis(getenv("CUSTODIA_GENESIS"))
	if err != nil {
		return Server{}, err
	}
	cfg.Genesis = genesis

	switch cfg.Ledger {
	case LedgerMemory:
	case LedgerPostgres:
		if cfg.DatabaseURL == "" {
			return Server{}, fmt.Errorf("DATABASE_URL is required for the postgres ledger")
		}
	default:
		return Server{}, fmt.Errorf("CUSTODIA_LEDGER must be %q or %q, got %q", LedgerMemory, LedgerPostgres, cfg.Ledger)
	}
	if cfg.JWTSigningKey == "" {
		return Server{}, fmt.Errorf("CUSTODIA_JWT_SIGNING_KEY must not be empty")
	}
	return cfg, nil
}

// ParseGenesis parses "ADDRESS=amount,@name=amount". "@name" stands for
// DevAddress(name).
func ParseGenesis(s string) ([]GenesisBalance, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []GenesisBalance
	seen := map[id.Address]bool{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		who, amount, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("CUSTODIA_GENESIS entry %q: want address=amount", entry)
		}
		// Balances are signed 64-bit in the postgres ledger.
		n, err := strconv.ParseUint(strings.TrimSpace(amount), 10, 63)
		if err != nil {
			return nil, fmt.Errorf("CUSTODIA_GENESIS entry %q: %w", entry, err)
		}
		who = strings.TrimSpace(who)
		var addr id.Address
		if name, dev := strings.CutPrefix(who, "@"); dev {
			if name == "" {
				return nil, fmt.Errorf("CUSTODIA_GENESIS entry %q: empty name", entry)
			}
			addr = DevAddress(name)
		} else {
			addr, err = id.ParseAddress(who)
			if err != nil {
				return nil, fmt.Errorf("CUSTODIA_GENESIS entry %q: %w", entry, err)
			}
		}
		if seen[addr] {
			return nil, fmt.Errorf("CUSTODIA_GENESIS entry %q: address listed twice", entry)
		}
		seen[addr] = true
		out = append(out, GenesisBalance{Address: addr, Amount: n})
	}
	return out, nil
}

// parser reads typed values and keeps the first error.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

// list splits a comma separated value, dropping blanks and repeats.
func (p *parser) list(key string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range strings.Split(p.getenv(key), ",") {
		v = strings.TrimSpace(v)
		if _, dup := seen[v]; v == "" || dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// prefixes reads a list of CIDRs. A bare IP stands for its single-host prefix.
func (p *parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, v := range p.list(key) {
		if addr, err := netip.ParseAddr(v); err == nil {
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(v)
		if err != nil {
			p.fail(key, err)
			return nil
		}
		out = append(out, prefix.Masked())
	}
	return out
}

func (p *parser) integer(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) unsigned(key string, def uint64) uint64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}
