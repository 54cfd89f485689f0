// Package config provides XML-based configuration for the analyzer server.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig is the root of the server configuration file.
type AppConfig struct {
	XMLName xml.Name `xml:"OLXAnalyzer"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Processing ProcessingConfig `xml:"Processing"`
	Filter     FilterConfig     `xml:"Filter"`
	Advanced   AdvancedConfig   `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	TempDirectory    string `xml:"TempDirectory"`
	ExportDirectory  string `xml:"ExportDirectory"`
	AllowedFileTypes string `xml:"AllowedFileTypes"`
}

// ProcessingConfig contains parsing settings
type ProcessingConfig struct {
	MaxConcurrentParses   int `xml:"MaxConcurrentParses"`
	SessionTimeoutMinutes int `xml:"SessionTimeoutMinutes"`
	// Diff files larger than this are streamed into a record store instead
	// of being loaded whole.
	SuccessiveThresholdMB int `xml:"SuccessiveThresholdMB"`
	ProgressEvery         int `xml:"ProgressEvery"`
}

// FilterConfig names the comparison options applied when a request has none.
type FilterConfig struct {
	DefaultConfigPath string `xml:"DefaultConfigPath"`
}

// AdvancedConfig contains tuning options
type AdvancedConfig struct {
	EnableRequestLogging bool `xml:"EnableRequestLogging"`
	DiffStoreBatchSize   int  `xml:"DiffStoreBatchSize"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 300,
			BodyLimit:    "2G",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			TempDirectory:    "./data/temp",
			ExportDirectory:  "./data/exports",
			AllowedFileTypes: ".olx,.adx,.xml,.gz",
		},
		Processing: ProcessingConfig{
			MaxConcurrentParses:   3,
			SessionTimeoutMinutes: 30,
			SuccessiveThresholdMB: 200,
			ProgressEvery:         50000,
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging: true,
			DiffStoreBatchSize:   20000,
		},
	}
}

// LoadConfig loads configuration from an XML file, writing the defaults
// there first when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	var config *AppConfig
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

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- OLX Analyzer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.ExportDirectory = filepath.Join(dataDir, "exports")
	}
	if tempDir := os.Getenv("OLX_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Storage.ExportDirectory,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	if p := c.Filter.DefaultConfigPath; p != "" && !filepath.IsAbs(p) {
		c.Filter.DefaultConfigPath = filepath.Join(configDir, p)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SuccessiveThreshold is the streaming threshold in bytes; 0 disables it.
func (c *AppConfig) SuccessiveThreshold() int64 {
	return int64(c.Processing.SuccessiveThresholdMB) << 20
}

// AllowedExtensions splits Storage.AllowedFileTypes.
func (c *AppConfig) AllowedExtensions() []string {
	var out []string
	for _, e := range strings.Split(c.Storage.AllowedFileTypes, ",") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
		c.Storage.ExportDirectory,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
