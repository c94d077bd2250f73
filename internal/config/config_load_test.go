package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Helper function to reset pflag.CommandLine for testing
func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	viper.Reset()
}

// Helper function to set os.Args for testing
func setArgs(args []string) {
	os.Args = args
}

// Helper function to clear environment variables
func clearEnvVars() {
	for _, name := range flagNames {
		os.Unsetenv(envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	}
}

// restore puts back os.Args, flags and environment after a test.
func restore(t *testing.T) {
	originalArgs := os.Args
	t.Cleanup(func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	})
}

func TestLoadFromFlags_DefaultConfig(t *testing.T) {
	restore(t)

	// Set minimal args (just program name)
	setArgs([]string{"mcp-pdf-layout"})
	resetFlags()
	clearEnvVars()

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "stdio")
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, "127.0.0.1")
	}
	if cfg.Port != 8080 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 8080)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, "info")
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("LoadFromFlags() MaxFileSize = %v, want %v", cfg.MaxFileSize, 100*1024*1024)
	}
	if cfg.Debounce != 300*time.Millisecond {
		t.Errorf("LoadFromFlags() Debounce = %v, want %v", cfg.Debounce, 300*time.Millisecond)
	}
	if cfg.FrameInterval != 16*time.Millisecond {
		t.Errorf("LoadFromFlags() FrameInterval = %v, want %v", cfg.FrameInterval, 16*time.Millisecond)
	}
	if cfg.ZoomStep != 0.25 {
		t.Errorf("LoadFromFlags() ZoomStep = %v, want %v", cfg.ZoomStep, 0.25)
	}
	if cfg.CacheSize != 8 {
		t.Errorf("LoadFromFlags() CacheSize = %v, want %v", cfg.CacheSize, 8)
	}
	if cfg.DocumentDirectory == "" {
		t.Error("LoadFromFlags() DocumentDirectory should not be empty")
	}
	if want := filepath.Join(cfg.DocumentDirectory, DefaultOutputSubdir); cfg.OutputDirectory != want {
		t.Errorf("LoadFromFlags() OutputDirectory = %v, want %v", cfg.OutputDirectory, want)
	}
}

func TestLoadFromFlags_ValidFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config, dir string)
	}{
		{
			name: "custom directory moves output directory",
			args: []string{},
			check: func(t *testing.T, cfg *Config, dir string) {
				if cfg.DocumentDirectory != dir {
					t.Errorf("DocumentDirectory = %v, want %v", cfg.DocumentDirectory, dir)
				}
				if want := filepath.Join(dir, DefaultOutputSubdir); cfg.OutputDirectory != want {
					t.Errorf("OutputDirectory = %v, want %v", cfg.OutputDirectory, want)
				}
			},
		},
		{
			name: "explicit output directory",
			args: []string{"--output-dir=%s/out"},
			check: func(t *testing.T, cfg *Config, dir string) {
				if want := filepath.Join(dir, "out"); cfg.OutputDirectory != want {
					t.Errorf("OutputDirectory = %v, want %v", cfg.OutputDirectory, want)
				}
			},
		},
		{
			name: "server mode with custom host and port",
			args: []string{"--mode=server", "--host=0.0.0.0", "--port=9090"},
			check: func(t *testing.T, cfg *Config, _ string) {
				if cfg.Mode != "server" || cfg.Host != "0.0.0.0" || cfg.Port != 9090 {
					t.Errorf("got %s %s:%d, want server 0.0.0.0:9090", cfg.Mode, cfg.Host, cfg.Port)
				}
			},
		},
		{
			name: "layout engine tuning",
			args: []string{
				"--container-width=1600", "--container-height=900", "--zoom-step=0.5",
				"--debounce=500ms", "--frame-interval=33ms", "--render-timeout=5s", "--cache-size=2",
			},
			check: func(t *testing.T, cfg *Config, _ string) {
				if cfg.ContainerWidth != 1600 || cfg.ContainerHeight != 900 {
					t.Errorf("Container = %vx%v, want 1600x900", cfg.ContainerWidth, cfg.ContainerHeight)
				}
				if cfg.ZoomStep != 0.5 {
					t.Errorf("ZoomStep = %v, want 0.5", cfg.ZoomStep)
				}
				if cfg.Debounce != 500*time.Millisecond {
					t.Errorf("Debounce = %v, want 500ms", cfg.Debounce)
				}
				if cfg.FrameInterval != 33*time.Millisecond {
					t.Errorf("FrameInterval = %v, want 33ms", cfg.FrameInterval)
				}
				if cfg.RenderTimeout != 5*time.Second {
					t.Errorf("RenderTimeout = %v, want 5s", cfg.RenderTimeout)
				}
				if cfg.CacheSize != 2 {
					t.Errorf("CacheSize = %v, want 2", cfg.CacheSize)
				}
			},
		},
		{
			name: "debug logging and file size",
			args: []string{"--log-level=debug", "--max-file-size=50000000"},
			check: func(t *testing.T, cfg *Config, _ string) {
				if !cfg.IsDebug() {
					t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
				}
				if cfg.MaxFileSize != 50000000 {
					t.Errorf("MaxFileSize = %v, want 50000000", cfg.MaxFileSize)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restore(t)

			tempDir := t.TempDir()
			args := []string{"mcp-pdf-layout", "--dir=" + tempDir}
			for _, a := range tt.args {
				args = append(args, strings.ReplaceAll(a, "%s", tempDir))
			}

			setArgs(args)
			resetFlags()
			clearEnvVars()

			cfg, err := LoadFromFlags()
			if err != nil {
				t.Fatalf("LoadFromFlags() unexpected error: %v", err)
			}
			tt.check(t, cfg, tempDir)
		})
	}
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	restore(t)

	tempDir := t.TempDir()

	os.Setenv("MCP_PDF_LAYOUT_MODE", "server")
	os.Setenv("MCP_PDF_LAYOUT_HOST", "192.168.1.1")
	os.Setenv("MCP_PDF_LAYOUT_PORT", "3000")
	os.Setenv("MCP_PDF_LAYOUT_DIR", tempDir)
	os.Setenv("MCP_PDF_LAYOUT_LOG_LEVEL", "warn")
	os.Setenv("MCP_PDF_LAYOUT_MAX_FILE_SIZE", "200000000")
	os.Setenv("MCP_PDF_LAYOUT_DEBOUNCE", "750ms")

	setArgs([]string{"mcp-pdf-layout"})
	resetFlags()

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "server")
	}
	if cfg.Host != "192.168.1.1" {
		t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, "192.168.1.1")
	}
	if cfg.Port != 3000 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 3000)
	}
	if cfg.DocumentDirectory != tempDir {
		t.Errorf("LoadFromFlags() DocumentDirectory = %v, want %v", cfg.DocumentDirectory, tempDir)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, "warn")
	}
	if cfg.MaxFileSize != 200000000 {
		t.Errorf("LoadFromFlags() MaxFileSize = %v, want %v", cfg.MaxFileSize, 200000000)
	}
	if cfg.Debounce != 750*time.Millisecond {
		t.Errorf("LoadFromFlags() Debounce = %v, want %v", cfg.Debounce, 750*time.Millisecond)
	}
}

func TestLoadFromFlags_FlagOverridesEnvironment(t *testing.T) {
	restore(t)

	os.Setenv("MCP_PDF_LAYOUT_MODE", "server")
	os.Setenv("MCP_PDF_LAYOUT_HOST", "192.168.1.1")
	os.Setenv("MCP_PDF_LAYOUT_PORT", "3000")

	tempDir := t.TempDir()
	setArgs([]string{"mcp-pdf-layout", "--mode=stdio", "--host=localhost", "--port=8888", "--dir=" + tempDir})
	resetFlags()

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	// Flags should override environment variables
	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v (should override env)", cfg.Mode, "stdio")
	}
	if cfg.Host != "localhost" {
		t.Errorf("LoadFromFlags() Host = %v, want %v (should override env)", cfg.Host, "localhost")
	}
	if cfg.Port != 8888 {
		t.Errorf("LoadFromFlags() Port = %v, want %v (should override env)", cfg.Port, 8888)
	}
}

func TestLoadFromFlags_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		wantErr string
	}{
		{"mode", "--mode=invalid", "mode must be either 'stdio' or 'server'"},
		{"port", "--port=99999", "port must be between 1 and 65535"},
		{"log level", "--log-level=invalid", "invalid log level"},
		{"zoom step", "--zoom-step=2", "zoom step"},
		{"debounce", "--debounce=0s", "must be positive"},
		{"cache size", "--cache-size=0", "cache size"},
		{"container", "--container-width=-1", "container size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restore(t)

			args := []string{"mcp-pdf-layout", "--dir=" + t.TempDir(), tt.arg}
			if tt.name == "port" {
				args = append(args, "--mode=server")
			}
			setArgs(args)
			resetFlags()
			clearEnvVars()

			_, err := LoadFromFlags()
			if err == nil {
				t.Fatalf("LoadFromFlags() expected error for %s", tt.arg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFromFlags() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFlags_VersionFlag(t *testing.T) {
	restore(t)

	setArgs([]string{"mcp-pdf-layout", "--version"})
	resetFlags()
	clearEnvVars()

	_, err := LoadFromFlags()
	if err == nil {
		t.Error("LoadFromFlags() expected version error")
	}
	if err != nil && err.Error() != "version requested" {
		t.Errorf("LoadFromFlags() error = %v, want 'version requested'", err)
	}
}
