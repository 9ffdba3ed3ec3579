package broker

import (
	"net"
	"sync"
	"time"

	"github.com/adred-codev/aldrin/internal/monitoring"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ConnectRateLimiter throttles how fast new connections are accepted,
// both per-remote-address and bus-wide, ahead of the heavier admission
// checks in Admission.ShouldAcceptConnection. Token-bucket per address
// absorbs a legitimate reconnect burst while still bounding a single
// noisy or malicious peer; the global bucket bounds a distributed
// flood across many addresses. Cleanup is called on a timer from
// Broker.Run rather than owning its own goroutine.
type ConnectRateLimiter struct {
	mu        sync.Mutex
	perAddr   map[string]*addrBucket
	addrTTL   time.Duration
	addrRate  float64
	addrBurst int

	global *rate.Limiter

	logger zerolog.Logger
}

type addrBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnectRateLimiterConfig configures a ConnectRateLimiter. Zero
// values fall back to conservative defaults.
type ConnectRateLimiterConfig struct {
	AddrBurst   int
	AddrRate    float64
	AddrTTL     time.Duration
	GlobalBurst int
	GlobalRate  float64
}

func NewConnectRateLimiter(cfg ConnectRateLimiterConfig, logger zerolog.Logger) *ConnectRateLimiter {
	if cfg.AddrBurst == 0 {
		cfg.AddrBurst = 10
	}
	if cfg.AddrRate == 0 {
		cfg.AddrRate = 1.0
	}
	if cfg.AddrTTL == 0 {
		cfg.AddrTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}

	return &ConnectRateLimiter{
		perAddr:   make(map[string]*addrBucket),
		addrTTL:   cfg.AddrTTL,
		addrRate:  cfg.AddrRate,
		addrBurst: cfg.AddrBurst,
		global:    rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		logger:    logger.With().Str("component", "connect_rate_limiter").Logger(),
	}
}

// Allow reports whether a new connection from remoteAddr may proceed,
// checking the global bucket before the per-address one so a single
// map lookup is skipped once the bus is already saturated.
func (l *ConnectRateLimiter) Allow(remoteAddr string) bool {
	if !l.global.Allow() {
		monitoring.ConnectionsRejected.WithLabelValues("connect_rate_global").Inc()
		return false
	}

	addr := hostOf(remoteAddr)
	if !l.bucketFor(addr).Allow() {
		l.logger.Debug().Str("addr", addr).Msg("connection rejected: per-address rate limit exceeded")
		monitoring.ConnectionsRejected.WithLabelValues("connect_rate_addr").Inc()
		return false
	}
	return true
}

func (l *ConnectRateLimiter) bucketFor(addr string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.perAddr[addr]
	if !ok {
		b = &addrBucket{limiter: rate.NewLimiter(rate.Limit(l.addrRate), l.addrBurst)}
		l.perAddr[addr] = b
	}
	b.lastAccess = time.Now()
	return b.limiter
}

// Cleanup drops buckets for addresses that haven't connected within
// addrTTL. Call on a timer; the broker runs a dedicated one-minute
// ticker goroutine for this in Run.
func (l *ConnectRateLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for addr, b := range l.perAddr {
		if now.Sub(b.lastAccess) > l.addrTTL {
			delete(l.perAddr, addr)
		}
	}
}

// hostOf strips the port from a "host:port" remote address, falling
// back to the raw string for transports (inproc) that don't format
// one.
func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
