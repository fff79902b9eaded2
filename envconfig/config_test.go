// MODUL: config_test
// ZWECK: Environment-Variablen und ihre Defaults
// INPUT: t.Setenv
// OUTPUT: Testergebnisse
// NEBENEFFEKTE: Setzt Environment-Variablen fuer die Testdauer
// ABHAENGIGKEITEN: testify
package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHost(t *testing.T) {
	tests := []struct {
		value  string
		expect string
	}{
		{"", "http://127.0.0.1:11535"},
		{"0.0.0.0", "http://0.0.0.0:11535"},
		{"example.com:8080", "http://example.com:8080"},
		{"https://example.com", "https://example.com:443"},
		{"[::1]:9000", "http://[::1]:9000"},
		{"localhost:99999", "http://localhost:11535"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("NGRAMLM_HOST", tt.value)
			assert.Equal(t, tt.expect, Host().String())
		})
	}
}

func TestProbingMultiplier(t *testing.T) {
	t.Setenv("NGRAMLM_PROBING_MULTIPLIER", "")
	assert.Equal(t, float32(1.5), ProbingMultiplier())

	t.Setenv("NGRAMLM_PROBING_MULTIPLIER", "2")
	assert.Equal(t, float32(2), ProbingMultiplier())

	t.Setenv("NGRAMLM_PROBING_MULTIPLIER", "1.0")
	assert.Equal(t, float32(1.5), ProbingMultiplier())
}

func TestLoadMethod(t *testing.T) {
	for value, expect := range map[string]string{"": "lazy", "POPULATE": "populate", "read": "read", "mmap": "lazy"} {
		t.Setenv("NGRAMLM_LOAD_METHOD", value)
		assert.Equal(t, expect, LoadMethod(), value)
	}
}

func TestNumbers(t *testing.T) {
	t.Setenv("NGRAMLM_SORT_MEMORY", "4096")
	assert.Equal(t, uint64(4096), SortMemory())

	t.Setenv("NGRAMLM_SORT_MEMORY", "viel")
	assert.Equal(t, uint64(1<<30), SortMemory())

	t.Setenv("NGRAMLM_BHIKSHA_COST", "'32'")
	assert.Equal(t, uint(32), BhikshaCost())
}

func TestLogLevel(t *testing.T) {
	for value, expect := range map[string]slog.Level{"": slog.LevelInfo, "false": slog.LevelInfo, "1": slog.LevelDebug, "2": slog.Level(-8)} {
		t.Setenv("NGRAMLM_DEBUG", value)
		assert.Equal(t, expect, LogLevel(), value)
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("NGRAMLM_ORIGINS", "http://foo.test,http://bar.test")
	origins := AllowedOrigins()
	assert.Equal(t, []string{"http://foo.test", "http://bar.test"}, origins[:2])
	assert.Contains(t, origins, "http://localhost:*")
}

func TestValues(t *testing.T) {
	t.Setenv("NGRAMLM_TMPDIR", "/scratch")
	assert.Equal(t, "/scratch", Values()["NGRAMLM_TMPDIR"])
}
