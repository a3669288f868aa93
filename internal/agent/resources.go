package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
)

// cpuPeriod is Docker's default CFS period in microseconds.
const cpuPeriod = 100000

// parseResources converts human-readable limits ("2", "0.5"; "2g", "512m")
// into container resources. Empty or "0" leaves a limit unset.
func parseResources(cpu, mem string) (container.Resources, error) {
	memBytes, err := parseMemoryLimit(mem)
	if err != nil {
		return container.Resources{}, err
	}
	quota, err := parseCPULimit(cpu)
	if err != nil {
		return container.Resources{}, err
	}
	res := container.Resources{Memory: memBytes, CPUQuota: quota}
	if quota > 0 {
		res.CPUPeriod = cpuPeriod
	}
	return res, nil
}

func parseMemoryLimit(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	multiplier := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"g", 1 << 30},
		{"m", 1 << 20},
		{"k", 1 << 10},
	} {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("memory limit %q: %w", s, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("memory limit %q: negative", s)
	}
	return val * multiplier, nil
}

func parseCPULimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cpu limit %q: %w", s, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("cpu limit %q: negative", s)
	}
	return int64(val * cpuPeriod), nil
}
