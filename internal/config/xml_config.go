// Package config provides XML-based configuration management for the replay server and player.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"KineReplay"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Playback configuration
	Playback PlaybackConfig `xml:"Playback"`

	// Scene size ceilings
	Limits LimitsConfig `xml:"Limits"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	UploadsDirectory  string `xml:"UploadsDirectory"`
	ArchiveDirectory  string `xml:"ArchiveDirectory"`
	MaxUploadSize     string `xml:"MaxUploadSize"`
	EnablePersistence bool   `xml:"EnablePersistence"`
}

// PlaybackConfig contains replay settings
type PlaybackConfig struct {
	TickMilliseconds       int    `xml:"TickMilliseconds"`
	StartPaused            bool   `xml:"StartPaused"`
	PaletteFile            string `xml:"PaletteFile"`
	MaxSessions            int    `xml:"MaxSessions"`
	SessionTimeoutMinutes  int    `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
}

// LimitsConfig caps the size of each scene collection
type LimitsConfig struct {
	MaxBodies     int `xml:"MaxBodies"`
	MaxConnectors int `xml:"MaxConnectors"`
	MaxGrounds    int `xml:"MaxGrounds"`
	MaxInputs     int `xml:"MaxInputs"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			ArchiveDirectory:  "./data/archives",
			MaxUploadSize:     "512M",
			EnablePersistence: true,
		},
		Playback: PlaybackConfig{
			TickMilliseconds:       33,
			StartPaused:            false,
			MaxSessions:            10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
		},
		Limits: LimitsConfig{
			MaxBodies:     1024,
			MaxConnectors: 1024,
			MaxGrounds:    256,
			MaxInputs:     256,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        4,
			DuckDBMemoryLimit:    "1GB",
		},
	}
}

// LoadConfig loads configuration from XML file. A .env file next to the
// config, if present, is loaded first so its variables can override values.
func LoadConfig(configPath string) (*AppConfig, error) {
	configDir := filepath.Dir(configPath)
	loadDotEnv(filepath.Join(configDir, ".env"))

	var config *AppConfig

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config = DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		config = DefaultConfig()
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(configDir)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadDotEnv loads a .env file without overriding variables already set.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("[Config] Warning: failed to load %s: %v\n", path, err)
		return
	}
	fmt.Printf("[Config] Loaded environment from %s\n", path)
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Kinematic Replay Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override moves every storage directory under the new root
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.ArchiveDirectory = filepath.Join(dataDir, "archives")
	}

	// REPLAY_TICK_MS override
	if tick := os.Getenv("REPLAY_TICK_MS"); tick != "" {
		if ms, err := strconv.Atoi(tick); err == nil {
			c.Playback.TickMilliseconds = ms
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.ArchiveDirectory,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	if c.Playback.PaletteFile != "" && !filepath.IsAbs(c.Playback.PaletteFile) {
		c.Playback.PaletteFile = filepath.Join(configDir, c.Playback.PaletteFile)
	}
}

func (c *AppConfig) validate() error {
	if c.Playback.TickMilliseconds <= 0 {
		return fmt.Errorf("invalid config: Playback/TickMilliseconds must be positive, got %d", c.Playback.TickMilliseconds)
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return fmt.Errorf("invalid config: Storage/MaxUploadSize: %w", err)
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetArchiveDir returns the absolute frame archive directory path
func (c *AppConfig) GetArchiveDir() string {
	return c.Storage.ArchiveDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// TickInterval returns the playback tick period
func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickMilliseconds) * time.Millisecond
}

// MaxUploadBytes parses Storage/MaxUploadSize, e.g. "512M". Empty means no limit.
func (c *AppConfig) MaxUploadBytes() (int64, error) {
	if c.Storage.MaxUploadSize == "" {
		return 0, nil
	}
	return bytes.Parse(c.Storage.MaxUploadSize)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.ArchiveDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
