package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	gameCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchr",
			Subsystem: "game",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of the running game's primary process.",
		}, []string{"game"},
	)
	gameMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchr",
			Subsystem: "game",
			Name:      "memory_mb",
			Help:      "Resident memory in MB of the running game's primary process.",
		}, []string{"game"},
	)
	gameNumThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchr",
			Subsystem: "game",
			Name:      "num_threads",
			Help:      "Thread count of the running game's primary process.",
		}, []string{"game"},
	)
)

func resourceCollectors() []prometheus.Collector {
	return []prometheus.Collector{gameCPUPercent, gameMemoryMB, gameNumThreads}
}

// Sample is one resource reading of a game process.
type Sample struct {
	GameID     string
	PID        int32
	CPUPercent float64
	MemoryMB   float64
	NumThreads int32
}

// Target reports the game currently worth sampling; ok=false when nothing runs.
type Target func() (gameID string, pid int, ok bool)

// ResourceSampler periodically reads CPU and memory of the running game.
type ResourceSampler struct {
	interval time.Duration
	target   Target
	log      *slog.Logger
	last     string
}

func NewResourceSampler(interval time.Duration, target Target, log *slog.Logger) *ResourceSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ResourceSampler{interval: interval, target: target, log: log.With("component", "resources")}
}

// Run samples until ctx is done.
func (s *ResourceSampler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.clear()
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *ResourceSampler) tick(ctx context.Context) {
	gameID, pid, ok := s.target()
	if !ok {
		s.clear()
		return
	}
	if s.last != "" && s.last != gameID {
		s.clear()
	}
	smp, err := Collect(ctx, gameID, pid)
	if err != nil {
		s.log.Debug("resource sample failed", "game_id", gameID, "pid", pid, "error", err)
		return
	}
	s.last = gameID
	if regOK.Load() {
		gameCPUPercent.WithLabelValues(gameID).Set(smp.CPUPercent)
		gameMemoryMB.WithLabelValues(gameID).Set(smp.MemoryMB)
		gameNumThreads.WithLabelValues(gameID).Set(float64(smp.NumThreads))
	}
}

func (s *ResourceSampler) clear() {
	if s.last == "" {
		return
	}
	gameCPUPercent.DeleteLabelValues(s.last)
	gameMemoryMB.DeleteLabelValues(s.last)
	gameNumThreads.DeleteLabelValues(s.last)
	s.last = ""
}

// Collect reads one resource sample for pid.
func Collect(ctx context.Context, gameID string, pid int) (Sample, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Sample{}, err
	}
	smp := Sample{GameID: gameID, PID: p.Pid}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		smp.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		smp.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		smp.NumThreads = n
	}
	return smp, nil
}
