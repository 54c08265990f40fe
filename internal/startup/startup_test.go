package startup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	// Check that all fields are populated
	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion == "" {
		t.Error("Expected GoVersion to be set")
	}
	if info.OS == "" {
		t.Error("Expected OS to be set")
	}
	if info.Arch == "" {
		t.Error("Expected Arch to be set")
	}

	// Verify that runtime values are correct
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
		setEnv       bool
	}{
		{
			name:         "Returns default when env var not set",
			key:          "TEST_UNSET_VAR",
			defaultValue: "default",
			want:         "default",
			setEnv:       false,
		},
		{
			name:         "Returns env value when set",
			key:          "TEST_SET_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
			setEnv:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			} else {
				os.Unsetenv(tt.key)
				t.Cleanup(func() {
					os.Unsetenv(tt.key)
				})
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue bool
		want         bool
		setEnv       bool
	}{
		{
			name:         "Returns default when env var not set",
			key:          "TEST_BOOL_UNSET",
			defaultValue: true,
			want:         true,
			setEnv:       false,
		},
		{
			name:         "Returns true when env var is 'true'",
			key:          "TEST_BOOL_TRUE",
			envValue:     "true",
			defaultValue: false,
			want:         true,
			setEnv:       true,
		},
		{
			name:         "Returns false when env var is 'false'",
			key:          "TEST_BOOL_FALSE",
			envValue:     "false",
			defaultValue: true,
			want:         false,
			setEnv:       true,
		},
		{
			name:         "Returns true when env var is '1'",
			key:          "TEST_BOOL_ONE",
			envValue:     "1",
			defaultValue: false,
			want:         true,
			setEnv:       true,
		},
		{
			name:         "Returns default when env var is invalid",
			key:          "TEST_BOOL_INVALID",
			envValue:     "not-a-bool",
			defaultValue: true,
			want:         true,
			setEnv:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v (env: %q)", tt.key, tt.defaultValue, got, tt.want, tt.envValue)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue int
		want         int
		setEnv       bool
	}{
		{
			name:         "Returns default when env var not set",
			key:          "TEST_INT_UNSET",
			defaultValue: 3,
			want:         3,
			setEnv:       false,
		},
		{
			name:         "Returns parsed value when set",
			key:          "TEST_INT_SET",
			envValue:     "8",
			defaultValue: 3,
			want:         8,
			setEnv:       true,
		},
		{
			name:         "Returns default when env var is invalid",
			key:          "TEST_INT_INVALID",
			envValue:     "lots",
			defaultValue: 3,
			want:         3,
			setEnv:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt(%q, %d) = %d, want %d", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/stream", "api/stream"},
		{"/api/stream/status", "api/stream"},
		{"/api/queue", "api/queue"},
		{"/healthz", "healthz"},
		{"/", ""},
	}

	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	base := t.TempDir()
	t.Setenv("MEDIA_DIR", filepath.Join(base, "media"))
	t.Setenv("SCRATCH_DIR", filepath.Join(base, "scratch"))
	t.Setenv("STORE_DIR", filepath.Join(base, "store"))
	t.Setenv("DATABASE_DIR", filepath.Join(base, "database"))
	t.Setenv("MAX_SESSIONS", "2")
	t.Setenv("SESSION_IDLE_TIMEOUT", "90s")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.MaxSessions != 2 {
		t.Errorf("Expected MaxSessions=2, got %d", config.MaxSessions)
	}
	if config.SessionIdleTimeout != 90*time.Second {
		t.Errorf("Expected SessionIdleTimeout=90s, got %v", config.SessionIdleTimeout)
	}
	if !config.StreamingEnabled {
		t.Error("Expected streaming to be enabled with a writable scratch dir")
	}
	if !config.QueueEnabled {
		t.Error("Expected queue to be enabled with a writable store dir")
	}
	if config.DatabasePath != filepath.Join(base, "database", "jobs.db") {
		t.Errorf("Unexpected database path %s", config.DatabasePath)
	}
	if config.SessionDir != filepath.Join(base, "scratch", "sessions") {
		t.Errorf("Unexpected session dir %s", config.SessionDir)
	}
}

func TestLoadConfigInvalidDurations(t *testing.T) {
	base := t.TempDir()
	t.Setenv("MEDIA_DIR", filepath.Join(base, "media"))
	t.Setenv("SCRATCH_DIR", filepath.Join(base, "scratch"))
	t.Setenv("STORE_DIR", filepath.Join(base, "store"))
	t.Setenv("DATABASE_DIR", filepath.Join(base, "database"))
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")
	t.Setenv("WATCH_SETTLE_DELAY", "whenever")
	t.Setenv("MAX_SESSIONS", "0")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.SessionIdleTimeout != 5*time.Minute {
		t.Errorf("Expected default idle timeout, got %v", config.SessionIdleTimeout)
	}
	if config.WatchSettleDelay != 5*time.Second {
		t.Errorf("Expected default settle delay, got %v", config.WatchSettleDelay)
	}
	if config.MaxSessions != 3 {
		t.Errorf("Expected default MaxSessions, got %d", config.MaxSessions)
	}
}
