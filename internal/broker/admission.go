package broker

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/adred-codev/aldrin/internal/config"
	"github.com/adred-codev/aldrin/internal/monitoring"
	"github.com/adred-codev/aldrin/internal/platform"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// GoroutineLimiter bounds the number of concurrently running
// per-connection goroutines (one read-pump per session).
type GoroutineLimiter struct {
	sem chan struct{}
	max int
}

func NewGoroutineLimiter(max int) *GoroutineLimiter {
	return &GoroutineLimiter{sem: make(chan struct{}, max), max: max}
}

func (g *GoroutineLimiter) Acquire() bool {
	select {
	case g.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *GoroutineLimiter) Release() {
	select {
	case <-g.sem:
	default:
	}
}

func (g *GoroutineLimiter) Current() int { return len(g.sem) }
func (g *GoroutineLimiter) Max() int     { return g.max }

// Admission decides whether the broker should accept a new connection
// and throttles per-connection control traffic and bus-event fan-out,
// based on live CPU/memory/goroutine pressure. ShouldAcceptConnection
// runs its four checks (max connections, CPU reject threshold, memory
// limit, goroutine limit) cheapest and most decisive first.
type Admission struct {
	cfg    *config.Config
	logger zerolog.Logger

	controlLimiter   *rate.Limiter
	busEventLimiter  *rate.Limiter
	goroutineLimiter *GoroutineLimiter
	cpuMonitor       *platform.CPUMonitor

	currentCPU    atomic.Value // float64
	currentMemory atomic.Value // int64
	currentConns  *int64
}

func NewAdmission(cfg *config.Config, logger zerolog.Logger, currentConns *int64) *Admission {
	a := &Admission{
		cfg:              cfg,
		logger:           logger,
		controlLimiter:   rate.NewLimiter(rate.Limit(cfg.MaxControlMessagesPerSec), cfg.MaxControlMessagesPerSec),
		busEventLimiter:  rate.NewLimiter(rate.Limit(cfg.MaxBusEventsPerSec), cfg.MaxBusEventsPerSec),
		goroutineLimiter: NewGoroutineLimiter(cfg.MaxGoroutines),
		cpuMonitor:       platform.NewCPUMonitor(logger),
		currentConns:     currentConns,
	}
	a.currentCPU.Store(float64(0))
	a.currentMemory.Store(int64(0))
	return a
}

// ShouldAcceptConnection runs the admission checks, in order, that
// gate a new Connect handshake. The order matters: cheapest and most
// decisive checks first.
func (a *Admission) ShouldAcceptConnection() (accept bool, reason string) {
	if int(atomic.LoadInt64(a.currentConns)) >= a.cfg.MaxConnections {
		monitoring.ConnectionsRejected.WithLabelValues("max_connections").Inc()
		return false, "max_connections"
	}

	cpu := a.currentCPU.Load().(float64)
	if cpu >= a.cfg.CPURejectThreshold {
		monitoring.ConnectionsRejected.WithLabelValues("cpu_threshold").Inc()
		return false, "cpu_threshold"
	}

	mem := a.currentMemory.Load().(int64)
	if a.cfg.MemoryLimit > 0 && mem >= a.cfg.MemoryLimit {
		monitoring.ConnectionsRejected.WithLabelValues("memory_limit").Inc()
		return false, "memory_limit"
	}

	if a.goroutineLimiter.Current() >= a.goroutineLimiter.Max() {
		monitoring.ConnectionsRejected.WithLabelValues("goroutine_limit").Inc()
		return false, "goroutine_limit"
	}

	return true, ""
}

// ShouldPauseBroadcast reports whether the broker is under enough CPU
// pressure that new bus-event broadcast fan-out should be paused
// (existing connections keep serving request/reply traffic).
func (a *Admission) ShouldPauseBroadcast() bool {
	cpu := a.currentCPU.Load().(float64)
	return cpu >= a.cfg.CPUPauseThreshold
}

// AllowControlMessage throttles inbound control-plane messages
// (CreateObject, CallFunction, etc.) per the configured bus-wide rate.
func (a *Admission) AllowControlMessage(ctx context.Context) (allow bool, wait time.Duration) {
	r := a.controlLimiter.Reserve()
	if !r.OK() {
		return false, 0
	}
	d := r.Delay()
	if d == 0 {
		return true, 0
	}
	r.Cancel()
	return false, d
}

// AllowBusEvent throttles outbound EmitBusEvent fan-out.
func (a *Admission) AllowBusEvent() bool {
	return a.busEventLimiter.Allow()
}

func (a *Admission) AcquireGoroutine() bool { return a.goroutineLimiter.Acquire() }
func (a *Admission) ReleaseGoroutine()      { a.goroutineLimiter.Release() }

// UpdateResources refreshes the cached CPU/memory readings consulted
// by ShouldAcceptConnection; call this on a timer (see StartMonitoring).
func (a *Admission) UpdateResources() {
	if percent, throttle, err := a.cpuMonitor.GetPercent(); err == nil {
		a.currentCPU.Store(percent)
		monitoring.CPUUsagePercent.Set(percent)
		monitoring.CPUThrottledPeriods.Add(float64(throttle.NrThrottled))
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	a.currentMemory.Store(int64(mem.Alloc))
	monitoring.MemoryUsageBytes.Set(float64(mem.Alloc))
	monitoring.GoroutinesActive.Set(float64(runtime.NumGoroutine()))
}

// StartMonitoring refreshes resource readings on interval until ctx is
// canceled.
func (a *Admission) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.UpdateResources()
			case <-ctx.Done():
				return
			}
		}
	}()
}
