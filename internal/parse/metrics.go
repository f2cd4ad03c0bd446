package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tpsRe = regexp.MustCompile(`(?i)tps[:\s]+(\d+\.?\d*)`)

// ParsePID returns the first PID in pgrep/ps output.
func ParsePID(out string) (int, bool) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && pid > 0 {
			return pid, true
		}
	}
	return 0, false
}

// ParseProcessStats parses `ps -p <pid> -o %cpu,rss --no-headers` output
// into CPU percent and resident memory in MB.
func ParseProcessStats(out string) (cpuPercent float64, memoryMB int, err error) {
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("%w: ps output %q", ErrUnexpectedFormat, out)
	}
	cpuPercent, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: cpu %q", ErrUnexpectedFormat, fields[0])
	}
	rssKB, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: rss %q", ErrUnexpectedFormat, fields[1])
	}
	return cpuPercent, rssKB / 1024, nil
}

// ParseMemTotal parses `free -m` output and returns total memory in MB.
func ParseMemTotal(out string) (int, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "Mem:" {
			total, err := strconv.Atoi(fields[1])
			if err != nil {
				return 0, fmt.Errorf("%w: mem total %q", ErrUnexpectedFormat, fields[1])
			}
			return total, nil
		}
	}
	return 0, fmt.Errorf("%w: no Mem: line in free output", ErrUnexpectedFormat)
}

// ParseDiskUsage parses `df -BG <path>` output. The last line is used:
// Filesystem 1G-blocks Used Available Use% Mounted.
func ParseDiskUsage(out string) (usedGB, totalGB float64, err error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("%w: df output %q", ErrUnexpectedFormat, out)
	}
	totalGB, err = strconv.ParseFloat(strings.TrimSuffix(fields[1], "G"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: disk total %q", ErrUnexpectedFormat, fields[1])
	}
	usedGB, err = strconv.ParseFloat(strings.TrimSuffix(fields[2], "G"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: disk used %q", ErrUnexpectedFormat, fields[2])
	}
	return usedGB, totalGB, nil
}

// ParseTPS finds the last TPS figure in log lines such as "TPS: 19.87".
func ParseTPS(logTail string) (float64, bool) {
	matches := tpsRe.FindAllStringSubmatch(logTail, -1)
	if len(matches) == 0 {
		return 0, false
	}
	tps, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil || tps <= 0 {
		return 0, false
	}
	return tps, true
}
