package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	// Embedded zone database so preferred_timezone resolves on minimal images
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/tvecera/zivyobraz-kindle-proxy/pkg/models"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no --config flag is given
const DefaultConfigPath = "./config/zivyobraz-proxy.yml"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Zivyobraz ZivyobrazConfig
	Devices   []models.Device
	LogLevel  string
	LogFile   string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

// UpstreamConfig holds outbound HTTP client configuration
type UpstreamConfig struct {
	Timeout time.Duration
}

// ZivyobrazConfig holds the render and import API settings
type ZivyobrazConfig struct {
	APIBaseURL        string `yaml:"api_base_url" validate:"required,url"`
	APIImportURL      string `yaml:"api_import_url" validate:"omitempty,url"`
	PreferredTimezone string `yaml:"preferred_timezone"`

	// Resolved from PreferredTimezone during Load
	Location *time.Location `yaml:"-"`
}

// document mirrors the YAML configuration file
type document struct {
	Zivyobraz ZivyobrazConfig `yaml:"zivyobraz"`
	Devices   []models.Device `yaml:"devices" validate:"required,min=1,dive"`
}

// Load reads the environment and the YAML device configuration at path.
// Any returned error other than a read failure is a *Error listing every violation.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(fmt.Errorf("configuration file '%s' not found", path))
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	doc, err := parse(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
		},
		Upstream: UpstreamConfig{
			Timeout: time.Duration(getEnvAsInt("UPSTREAM_TIMEOUT", 30)) * time.Second,
		},
		Zivyobraz: doc.Zivyobraz,
		Devices:   doc.Devices,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	return cfg, nil
}

// parse decodes and validates a YAML configuration document
func parse(data []byte) (*document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, newError(fmt.Errorf("error parsing YAML file: %w", err))
	}

	if err := validate(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Registry builds the immutable device registry from the loaded devices
func (c *Config) Registry() (*models.DeviceRegistry, error) {
	return models.NewDeviceRegistry(c.Devices)
}

// Warnings reports settings that load fine but fail or lose fidelity at request time
func (c *Config) Warnings() []string {
	var warnings []string
	for _, d := range c.Devices {
		if d.ColorMode != models.ColorModeCMYK {
			continue
		}
		if d.OutputFormat == models.FormatJPEG {
			warnings = append(warnings, fmt.Sprintf(
				"device %s: color_mode CMYK is stored as a YCbCr (RGB) JPEG, the CMYK channels are not preserved", d.Name))
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"device %s: color_mode CMYK cannot be encoded as %s, requests will fail", d.Name, d.OutputFormat))
	}
	return warnings
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
