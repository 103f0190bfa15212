package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

const defaultStatsInterval = 30 * time.Second

// StatsWorker periodically logs the relay's footprint:
// registry occupancy alongside the process CPU and resident memory.
type StatsWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	interval time.Duration
	pid      int32
}

func NewStatsWorker(log *slog.Logger, registry contract.IRegistry, interval time.Duration) *StatsWorker {
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	return &StatsWorker{log: log, registry: registry, interval: interval, pid: int32(os.Getpid())}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats reporting")
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *StatsWorker) report(p *process.Process) {
	stats := w.registry.Stats()
	attrs := []any{"connections", stats.Connections, "channels", stats.Channels}

	if cpu, err := p.CPUPercent(); err != nil {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	} else {
		attrs = append(attrs, "cpu_percent", cpu)
	}
	if mem, err := p.MemoryInfo(); err != nil {
		w.log.Debug("Error while finding process memory usage", "err", err)
	} else {
		attrs = append(attrs, "rss_bytes", mem.RSS)
	}
	w.log.Info("Relay stats", attrs...)
}
