package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseMemoryLimit verifies human-readable memory strings are converted to bytes.
func TestParseMemoryLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "empty string returns zero", input: "", want: 0},
		{name: "zero string returns zero", input: "0", want: 0},
		{name: "megabytes suffix", input: "512m", want: 512 * 1024 * 1024},
		{name: "gigabytes suffix", input: "2g", want: 2 * 1024 * 1024 * 1024},
		{name: "kilobytes suffix", input: "1024k", want: 1024 * 1024},
		{name: "uppercase is case-insensitive", input: "1G", want: 1024 * 1024 * 1024},
		{name: "bare integer treated as bytes", input: "100", want: 100},
		{name: "whitespace is trimmed", input: "  512m  ", want: 512 * 1024 * 1024},
		{name: "non-numeric returns error", input: "abc", wantErr: true},
		{name: "float value returns error", input: "12.5m", wantErr: true},
		{name: "negative value returns error", input: "-1g", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseMemoryLimit(tt.input)
			if tt.wantErr {
				require.Error(t, err, "parseMemoryLimit(%q) should return an error", tt.input)
				assert.Zero(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "parseMemoryLimit(%q) value mismatch", tt.input)
		})
	}
}

// TestParseCPULimit verifies CPU limit strings are converted to Docker CPU quota.
func TestParseCPULimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "empty string returns zero", input: "", want: 0},
		{name: "zero string returns zero", input: "0", want: 0},
		{name: "one cpu", input: "1", want: 100000},
		{name: "half cpu", input: "0.5", want: 50000},
		{name: "two cpus", input: "2", want: 200000},
		{name: "whitespace is trimmed", input: " 1.5 ", want: 150000},
		{name: "non-numeric returns error", input: "two", wantErr: true},
		{name: "negative returns error", input: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseCPULimit(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Zero(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "parseCPULimit(%q) value mismatch", tt.input)
		})
	}
}

func TestParseResources(t *testing.T) {
	t.Parallel()

	t.Run("unset limits leave period unset", func(t *testing.T) {
		t.Parallel()

		res, err := parseResources("", "")
		require.NoError(t, err)
		assert.Zero(t, res.CPUQuota)
		assert.Zero(t, res.CPUPeriod)
		assert.Zero(t, res.Memory)
	})

	t.Run("cpu quota sets period", func(t *testing.T) {
		t.Parallel()

		res, err := parseResources("1", "512m")
		require.NoError(t, err)
		assert.Equal(t, int64(100000), res.CPUQuota)
		assert.Equal(t, int64(cpuPeriod), res.CPUPeriod)
		assert.Equal(t, int64(512*1024*1024), res.Memory)
	})

	t.Run("bad memory", func(t *testing.T) {
		t.Parallel()

		_, err := parseResources("1", "lots")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "memory limit")
	})

	t.Run("bad cpu", func(t *testing.T) {
		t.Parallel()

		_, err := parseResources("many", "1g")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cpu limit")
	})
}
