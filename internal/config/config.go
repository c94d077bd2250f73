package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100MB
	DefaultOutputSubdir    = "filled"
	DefaultContainerWidth  = 1024
	DefaultContainerHeight = 768
	DefaultZoomStep        = 0.25
	DefaultMinScale        = 0.5
	DefaultMaxScale        = 3.0
	DefaultDebounce        = 300 * time.Millisecond
	DefaultFrameInterval   = 16 * time.Millisecond
	DefaultRenderTimeout   = 30 * time.Second
	DefaultCacheSize       = 8

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "MCP_PDF_LAYOUT"
)

// Config holds all configuration for the PDF layout MCP server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Document configuration
	DocumentDirectory string // source PDFs and layout templates
	OutputDirectory   string // generated documents

	// Layout engine configuration
	ContainerWidth  float64 // preview area assumed until the client reports one, in pixels
	ContainerHeight float64
	ZoomStep        float64
	MinScale        float64 // bounds of fit scale times zoom
	MaxScale        float64
	Debounce        time.Duration // delay before re-rendering after a value edit
	FrameInterval   time.Duration // overlay repaint coalescing window
	RenderTimeout   time.Duration // per backend call
	CacheSize       int           // rendered page bitmaps kept per session

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		// Fallback to current directory if working directory cannot be determined
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio, // Default to stdio mode for MCP compatibility
		Host:              DefaultHost,
		Port:              DefaultPort,
		DocumentDirectory: currentDir,
		OutputDirectory:   filepath.Join(currentDir, DefaultOutputSubdir),
		ContainerWidth:    DefaultContainerWidth,
		ContainerHeight:   DefaultContainerHeight,
		ZoomStep:          DefaultZoomStep,
		MinScale:          DefaultMinScale,
		MaxScale:          DefaultMaxScale,
		Debounce:          DefaultDebounce,
		FrameInterval:     DefaultFrameInterval,
		RenderTimeout:     DefaultRenderTimeout,
		CacheSize:         DefaultCacheSize,
		Version:           "1.0.0",
		ServerName:        "mcp-pdf-layout",
		LogLevel:          DefaultLogLevel,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// An output directory left at its default follows --dir.
	if !viper.IsSet("output-dir") {
		cfg.OutputDirectory = filepath.Join(cfg.DocumentDirectory, DefaultOutputSubdir)
	}

	// Expand paths if needed
	for _, p := range []*string{&cfg.DocumentDirectory, &cfg.OutputDirectory} {
		if *p == "" {
			continue
		}
		if expandedPath, err := filepath.Abs(*p); err == nil {
			*p = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// MCP_PDF_LAYOUT_LOG_LEVEL maps to log-level
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.DocumentDirectory)
	viper.SetDefault("log-level", cfg.LogLevel)
	viper.SetDefault("max-file-size", cfg.MaxFileSize)
	viper.SetDefault("container-width", cfg.ContainerWidth)
	viper.SetDefault("container-height", cfg.ContainerHeight)
	viper.SetDefault("zoom-step", cfg.ZoomStep)
	viper.SetDefault("min-scale", cfg.MinScale)
	viper.SetDefault("max-scale", cfg.MaxScale)
	viper.SetDefault("debounce", cfg.Debounce)
	viper.SetDefault("frame-interval", cfg.FrameInterval)
	viper.SetDefault("render-timeout", cfg.RenderTimeout)
	viper.SetDefault("cache-size", cfg.CacheSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.DocumentDirectory, "Directory containing PDF documents and layout templates")
	pflag.String("output-dir", "", "Directory for generated documents (default <dir>/"+DefaultOutputSubdir+")")
	pflag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("max-file-size", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Float64("container-width", cfg.ContainerWidth, "Default preview width in pixels")
	pflag.Float64("container-height", cfg.ContainerHeight, "Default preview height in pixels")
	pflag.Float64("zoom-step", cfg.ZoomStep, "Zoom change per zoom-in/zoom-out step")
	pflag.Float64("min-scale", cfg.MinScale, "Smallest combined render scale")
	pflag.Float64("max-scale", cfg.MaxScale, "Largest combined render scale")
	pflag.Duration("debounce", cfg.Debounce, "Delay before re-rendering after a field value edit")
	pflag.Duration("frame-interval", cfg.FrameInterval, "Window in which overlay repaints are coalesced")
	pflag.Duration("render-timeout", cfg.RenderTimeout, "Timeout for a single PDF backend call")
	pflag.Int("cache-size", cfg.CacheSize, "Rendered page bitmaps kept per session")
}

var flagNames = []string{
	"mode", "host", "port", "dir", "output-dir", "log-level", "max-file-size",
	"container-width", "container-height", "zoom-step", "min-scale",
	"max-scale", "debounce",
	"frame-interval", "render-timeout", "cache-size",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range flagNames {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP PDF Layout - A Model Context Protocol server for laying out and previewing PDF form fields\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/templates                 "+
			"# stdio mode with custom directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --output-dir=/srv/filled --zoom-step=0.5 "+
			"# custom output and zoom step\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --host=0.0.0.0 --port=8081  # server on all interfaces\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		for _, name := range flagNames {
			fmt.Fprintf(os.Stderr, "  %s_%s\n", envPrefix, strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
		}
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.DocumentDirectory = viper.GetString("dir")
	if dir := viper.GetString("output-dir"); dir != "" {
		cfg.OutputDirectory = dir
	}
	cfg.LogLevel = viper.GetString("log-level")
	cfg.MaxFileSize = viper.GetInt64("max-file-size")
	cfg.ContainerWidth = viper.GetFloat64("container-width")
	cfg.ContainerHeight = viper.GetFloat64("container-height")
	cfg.ZoomStep = viper.GetFloat64("zoom-step")
	cfg.MinScale = viper.GetFloat64("min-scale")
	cfg.MaxScale = viper.GetFloat64("max-scale")
	cfg.Debounce = viper.GetDuration("debounce")
	cfg.FrameInterval = viper.GetDuration("frame-interval")
	cfg.RenderTimeout = viper.GetDuration("render-timeout")
	cfg.CacheSize = viper.GetInt("cache-size")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.DocumentDirectory == "" {
		return errors.New("document directory cannot be empty")
	}
	if err := ensureDir(c.DocumentDirectory); err != nil {
		return err
	}
	// The output directory is created on first generation.
	if c.OutputDirectory == "" {
		return errors.New("output directory cannot be empty")
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.ContainerWidth <= 0 || c.ContainerHeight <= 0 {
		return errors.New("container size must be positive")
	}
	if c.ZoomStep <= 0 || c.ZoomStep > 1 {
		return fmt.Errorf("zoom step must be in (0, 1], got %v", c.ZoomStep)
	}
	if c.MinScale <= 0 || c.MaxScale < c.MinScale {
		return fmt.Errorf("render scale range [%v, %v] is invalid", c.MinScale, c.MaxScale)
	}
	if c.Debounce <= 0 || c.FrameInterval <= 0 || c.RenderTimeout <= 0 {
		return errors.New("debounce, frame interval and render timeout must be positive")
	}
	if c.CacheSize < 1 {
		return errors.New("cache size must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ensureDir creates dir if it does not exist.
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, DocumentDirectory: %s, OutputDirectory: %s, "+
		"LogLevel: %s, MaxFileSize: %d, Container: %.0fx%.0f, ZoomStep: %v, Debounce: %v, RenderTimeout: %v}",
		c.Mode, c.Host, c.Port, c.DocumentDirectory, c.OutputDirectory,
		c.LogLevel, c.MaxFileSize, c.ContainerWidth, c.ContainerHeight, c.ZoomStep, c.Debounce, c.RenderTimeout)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
