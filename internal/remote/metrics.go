package remote

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"mc-dashboard-backend/config"
	"mc-dashboard-backend/internal/parse"
)

const pgrepPattern = `java.*minecraft|java.*forge|java.*neoforge`

// DefaultTPS is reported when no TPS figure can be found in the logs.
const DefaultTPS = 20.0

// Metrics holds host metrics for the game server process.
type Metrics struct {
	TPS           float64
	CPUPercent    float64
	MemoryUsedMB  int
	MemoryTotalMB int
	DiskUsedGB    float64
	DiskTotalGB   float64
}

// FallbackMetrics is used when metrics have never been collected successfully.
func FallbackMetrics() Metrics {
	return Metrics{TPS: DefaultTPS}
}

// Collector gathers Metrics over one remote session per call.
type Collector struct {
	connector Connector
	serverDir string
	diskPath  string

	mu        sync.Mutex
	cachedPID int
}

// NewCollector creates a metrics collector.
func NewCollector(connector Connector, cfg config.SSHConfig) *Collector {
	return &Collector{
		connector: connector,
		serverDir: cfg.ServerDir,
		diskPath:  cfg.DiskPath,
	}
}

// FetchMetrics connects, runs the introspection commands and parses their output.
// A missing game process yields zero CPU and memory rather than an error.
func (c *Collector) FetchMetrics(ctx context.Context) (*Metrics, error) {
	shell, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer shell.Close()

	m := Metrics{TPS: DefaultTPS}

	if pid, ok := c.discoverPID(shell); ok {
		out, err := shell.Run(fmt.Sprintf("ps -p %d -o %%cpu,rss --no-headers", pid))
		if err != nil {
			return nil, fmt.Errorf("process stats: %w", err)
		}
		cpu, mem, err := parse.ParseProcessStats(out)
		if err != nil {
			return nil, err
		}
		m.CPUPercent = round(cpu, 1)
		m.MemoryUsedMB = mem
	} else {
		log.Println("Warning: could not find game server process")
	}

	out, err := shell.Run("free -m")
	if err != nil {
		return nil, fmt.Errorf("memory total: %w", err)
	}
	if m.MemoryTotalMB, err = parse.ParseMemTotal(out); err != nil {
		return nil, err
	}

	out, err = shell.Run(fmt.Sprintf("df -BG %s", ShellQuote(c.diskPath)))
	if err != nil {
		return nil, fmt.Errorf("disk usage: %w", err)
	}
	used, total, err := parse.ParseDiskUsage(out)
	if err != nil {
		return nil, err
	}
	m.DiskUsedGB, m.DiskTotalGB = round(used, 1), round(total, 1)

	// grep exits non-zero when nothing matches, so only the output matters.
	logPath := c.serverDir + "/logs/latest.log"
	out, _ = shell.Run(fmt.Sprintf("tail -100 %s 2>/dev/null | grep -i 'tps\\|tick' | tail -5", ShellQuote(logPath)))
	if tps, ok := parse.ParseTPS(out); ok {
		m.TPS = round(tps, 2)
	}

	return &m, nil
}

// discoverPID returns the cached PID while it still responds, otherwise searches again.
func (c *Collector) discoverPID(shell Shell) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedPID > 0 {
		out, _ := shell.Run(fmt.Sprintf("ps -p %d -o pid --no-headers", c.cachedPID))
		if pid, ok := parse.ParsePID(out); ok && pid == c.cachedPID {
			return pid, true
		}
		c.cachedPID = 0
	}

	out, _ := shell.Run(fmt.Sprintf("pgrep -f '%s'", pgrepPattern))
	pid, ok := parse.ParsePID(out)
	if !ok {
		return 0, false
	}
	c.cachedPID = pid
	return pid, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
