package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/event"
	"github.com/MrTroxy/cockpit-tools/internal/model"
)

// HistorySource exposes the current history window for run accounting.
type HistorySource interface {
	Records() []model.HistoryRecord
}

// RuntimeStats is the wake.runtime.stats event payload.
type RuntimeStats struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUUsage      float64   `json:"cpu_usage"`
	MemoryUsage   float64   `json:"memory_usage"`
	Goroutines    int       `json:"goroutines"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	RunsTotal     int       `json:"runs_total"`
	RunsFailed    int       `json:"runs_failed"`
}

// StatsSampler periodically samples host and process load together with
// run outcomes and publishes a snapshot for listening UIs.
type StatsSampler struct {
	logger    *zap.Logger
	publisher event.Publisher
	hist      HistorySource
	interval  time.Duration
	startedAt time.Time
	stop      chan struct{}
}

// NewStatsSampler creates a sampler. hist may be nil; run counters then
// stay zero.
func NewStatsSampler(publisher event.Publisher, hist HistorySource, interval time.Duration, logger *zap.Logger) *StatsSampler {
	return &StatsSampler{
		logger:    logger.Named("stats"),
		publisher: publisher,
		hist:      hist,
		interval:  interval,
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}
}

// Start launches the sampling loop.
func (s *StatsSampler) Start(ctx context.Context) {
	s.logger.Info("Starting stats sampler", zap.Duration("interval", s.interval))
	go s.sampleLoop(ctx)
}

// Stop halts the sampling loop.
func (s *StatsSampler) Stop() {
	s.logger.Info("Stopping stats sampler")
	close(s.stop)
}

func (s *StatsSampler) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *StatsSampler) sample() {
	stats, err := s.Sample()
	if err != nil {
		s.logger.Warn("Failed to sample runtime stats", zap.Error(err))
		return
	}

	if err := s.publisher.Publish(event.SubjectRuntimeStats, stats); err != nil {
		s.logger.Warn("Failed to publish runtime stats", zap.Error(err))
		return
	}

	s.logger.Debug("Runtime stats sampled",
		zap.Float64("cpu_usage", stats.CPUUsage),
		zap.Float64("memory_usage", stats.MemoryUsage),
		zap.Int("runs_total", stats.RunsTotal))
}

// Sample takes one snapshot without publishing it.
func (s *StatsSampler) Sample() (RuntimeStats, error) {
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return RuntimeStats{}, err
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return RuntimeStats{}, err
	}

	stats := RuntimeStats{
		Timestamp:     time.Now(),
		MemoryUsage:   memInfo.UsedPercent,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if len(cpuPercent) > 0 {
		stats.CPUUsage = cpuPercent[0]
	}

	if s.hist != nil {
		for _, record := range s.hist.Records() {
			stats.RunsTotal++
			if !record.Success {
				stats.RunsFailed++
			}
		}
	}

	return stats, nil
}
