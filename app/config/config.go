package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"LabelPrinter/app/models"

	"github.com/spf13/viper"
)

const appDirName = "LabelPrinter"

// AppConfig holds all application configuration
type AppConfig struct {
	// History ledger storage
	History HistoryConfig `json:"history"`

	// Desktop PDF output
	PDF PDFConfig `json:"pdf"`

	// Raw printer transports
	Printer PrinterConfig `json:"printer"`

	// Collaborator API server
	Server ServerConfig `json:"server"`

	// Logging
	Log LogConfig `json:"log"`

	// System Configuration
	System SystemConfig `json:"system"`
}

// HistoryConfig selects and locates the history ledger backend
type HistoryConfig struct {
	Backend    string `json:"backend"` // "json" or "sqlite"
	Path       string `json:"path"`
	SQLitePath string `json:"sqlite_path"`
}

// PDFConfig holds document rendering settings
type PDFConfig struct {
	OutputDir       string `json:"output_dir"`
	FontPath        string `json:"font_path"`
	OpenAfterRender bool   `json:"open_after_render"`
}

// PrinterConfig holds the default target and per-transport settings
type PrinterConfig struct {
	DefaultTarget    string `json:"default_target"`
	BluetoothAddress string `json:"bluetooth_address"`
	BluetoothChannel int    `json:"bluetooth_channel"`
	BluetoothTimeout int    `json:"bluetooth_timeout"` // seconds
	NetworkHost      string `json:"network_host"`
	NetworkPort      int    `json:"network_port"`
	NetworkTimeout   int    `json:"network_timeout"` // seconds
	FilePath         string `json:"file_path"`
	Encoding         string `json:"encoding"`
}

// ServerConfig holds the collaborator server settings
type ServerConfig struct {
	Enabled    bool   `json:"enabled"`
	Port       int    `json:"port"`
	MDNS       bool   `json:"mdns"`
	APIKeyHash string `json:"api_key_hash"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // console, json
}

// SystemConfig holds system settings
type SystemConfig struct {
	DataPath string `json:"data_path"`
}

// BluetoothDialTimeout is the connect+write bound for Bluetooth transports
func (p PrinterConfig) BluetoothDialTimeout() time.Duration {
	return time.Duration(p.BluetoothTimeout) * time.Second
}

// NetworkDialTimeout is the connect+write bound for network transports
func (p PrinterConfig) NetworkDialTimeout() time.Duration {
	return time.Duration(p.NetworkTimeout) * time.Second
}

// DefaultPrintTarget builds the target used when a request names none
func (p PrinterConfig) DefaultPrintTarget() (models.PrintTarget, error) {
	kind, err := models.ParseTransportKind(p.DefaultTarget)
	if err != nil {
		return models.PrintTarget{}, err
	}
	return p.TargetDefaults(kind), nil
}

// TargetDefaults returns the configured destination for a transport kind
func (p PrinterConfig) TargetDefaults(kind models.TransportKind) models.PrintTarget {
	t := models.PrintTarget{Kind: kind}
	switch kind {
	case models.TransportBluetooth:
		t.Address = p.BluetoothAddress
	case models.TransportNetwork:
		t.Host = p.NetworkHost
		t.Port = p.NetworkPort
	case models.TransportFile:
		t.Address = p.FilePath
	}
	return t
}

// GetDataDir returns the per-user application directory
func GetDataDir() (string, error) {
	// Get user's AppData directory
	appData := os.Getenv("APPDATA")
	if appData == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		appData = dir
	}

	dataDir := filepath.Join(appData, appDirName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("could not create data directory: %w", err)
	}
	return dataDir, nil
}

// GetConfigPath returns the path to the config file. LABELPRINT_CONFIG
// overrides the default location.
func GetConfigPath() (string, error) {
	if p := os.Getenv("LABELPRINT_CONFIG"); p != "" {
		return p, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.json"), nil
}

// LoadConfig loads configuration from the default config path
func LoadConfig() (*AppConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom loads configuration with this priority (highest first):
// LABELPRINT_* environment variables, the JSON file at path, built-in
// defaults. A missing file is not an error.
func LoadConfigFrom(path string) (*AppConfig, error) {
	return load(path, true)
}

// LoadFileConfig loads the JSON file at path over the built-in defaults,
// ignoring the environment. Use it for configs that will be saved back.
func LoadFileConfig(path string) (*AppConfig, error) {
	return load(path, false)
}

func load(path string, withEnv bool) (*AppConfig, error) {
	dataDir := filepath.Dir(path)

	v := viper.New()
	setDefaults(v, dataDir)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	if withEnv {
		v.SetEnvPrefix("LABELPRINT")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	cfg := &AppConfig{
		History: HistoryConfig{
			Backend:    v.GetString("history.backend"),
			Path:       v.GetString("history.path"),
			SQLitePath: v.GetString("history.sqlite_path"),
		},
		PDF: PDFConfig{
			OutputDir:       v.GetString("pdf.output_dir"),
			FontPath:        v.GetString("pdf.font_path"),
			OpenAfterRender: v.GetBool("pdf.open_after_render"),
		},
		Printer: PrinterConfig{
			DefaultTarget:    v.GetString("printer.default_target"),
			BluetoothAddress: v.GetString("printer.bluetooth_address"),
			BluetoothChannel: v.GetInt("printer.bluetooth_channel"),
			BluetoothTimeout: v.GetInt("printer.bluetooth_timeout"),
			NetworkHost:      v.GetString("printer.network_host"),
			NetworkPort:      v.GetInt("printer.network_port"),
			NetworkTimeout:   v.GetInt("printer.network_timeout"),
			FilePath:         v.GetString("printer.file_path"),
			Encoding:         v.GetString("printer.encoding"),
		},
		Server: ServerConfig{
			Enabled:    v.GetBool("server.enabled"),
			Port:       v.GetInt("server.port"),
			MDNS:       v.GetBool("server.mdns"),
			APIKeyHash: v.GetString("server.api_key_hash"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		System: SystemConfig{
			DataPath: v.GetString("system.data_path"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("history.backend", "json")
	v.SetDefault("history.path", filepath.Join(dataDir, "print_history.json"))
	v.SetDefault("history.sqlite_path", filepath.Join(dataDir, "history.db"))

	v.SetDefault("pdf.output_dir", filepath.Join(dataDir, "labels"))
	v.SetDefault("pdf.font_path", "")
	v.SetDefault("pdf.open_after_render", true)

	v.SetDefault("printer.default_target", string(models.TransportDocument))
	v.SetDefault("printer.bluetooth_address", "")
	v.SetDefault("printer.bluetooth_channel", 1)
	v.SetDefault("printer.bluetooth_timeout", 10)
	v.SetDefault("printer.network_host", "")
	v.SetDefault("printer.network_port", 9100)
	v.SetDefault("printer.network_timeout", 5)
	v.SetDefault("printer.file_path", filepath.Join(dataDir, "escpos.bin"))
	v.SetDefault("printer.encoding", "utf-8")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.mdns", true)
	v.SetDefault("server.api_key_hash", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("system.data_path", dataDir)
}

// Validate rejects values no component can work with
func (cfg *AppConfig) Validate() error {
	switch cfg.History.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("history.backend must be \"json\" or \"sqlite\", got %q", cfg.History.Backend)
	}
	if _, err := models.ParseTransportKind(cfg.Printer.DefaultTarget); err != nil {
		return fmt.Errorf("printer.default_target: %w", err)
	}
	if cfg.Printer.NetworkPort <= 0 || cfg.Printer.NetworkPort > 65535 {
		return fmt.Errorf("printer.network_port must be between 1 and 65535, got %d", cfg.Printer.NetworkPort)
	}
	if cfg.Printer.NetworkTimeout <= 0 {
		return fmt.Errorf("printer.network_timeout must be positive, got %d", cfg.Printer.NetworkTimeout)
	}
	if cfg.Printer.BluetoothTimeout <= 0 {
		return fmt.Errorf("printer.bluetooth_timeout must be positive, got %d", cfg.Printer.BluetoothTimeout)
	}
	if cfg.Server.Enabled && (cfg.Server.Port <= 0 || cfg.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	return nil
}

// SaveConfig writes cfg to path as indented JSON
func SaveConfig(cfg *AppConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	// Write to file with restrictive permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}

	return nil
}

// ConfigExists checks if a config file exists at path
func ConfigExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateDefaultConfig writes the built-in defaults to path and returns the
// effective config with environment overrides applied. The overrides are
// not written to the file.
func CreateDefaultConfig(path string) (*AppConfig, error) {
	defaults, err := LoadFileConfig(path)
	if err != nil {
		return nil, err
	}

	// Save default config
	if err := SaveConfig(defaults, path); err != nil {
		return nil, err
	}

	return LoadConfigFrom(path)
}

// SetAPIKeyHash stores hash in the config file at path, leaving the rest
// of the file as it is
func SetAPIKeyHash(path, hash string) error {
	cfg, err := LoadFileConfig(path)
	if err != nil {
		return err
	}
	cfg.Server.APIKeyHash = hash
	return SaveConfig(cfg, path)
}
