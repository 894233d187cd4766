package config

import (
	"os"
	"path/filepath"
	"testing"

	"LabelPrinter/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFrom_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfigFrom(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.History.Backend)
	assert.Equal(t, filepath.Join(dir, "print_history.json"), cfg.History.Path)
	assert.Equal(t, filepath.Join(dir, "labels"), cfg.PDF.OutputDir)
	assert.True(t, cfg.PDF.OpenAfterRender)
	assert.Equal(t, "document", cfg.Printer.DefaultTarget)
	assert.Equal(t, 1, cfg.Printer.BluetoothChannel)
	assert.Equal(t, 9100, cfg.Printer.NetworkPort)
	assert.Equal(t, 5, cfg.Printer.NetworkTimeout)
	assert.Equal(t, "utf-8", cfg.Printer.Encoding)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, dir, cfg.System.DataPath)
}

func TestLoadConfigFrom_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"history": {"backend": "sqlite"},
		"printer": {"default_target": "network", "network_host": "10.0.0.5", "encoding": "cp850"}
	}`), 0600))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.Equal(t, "cp850", cfg.Printer.Encoding)

	target, err := cfg.Printer.DefaultPrintTarget()
	require.NoError(t, err)
	assert.Equal(t, models.PrintTarget{Kind: models.TransportNetwork, Host: "10.0.0.5", Port: 9100}, target)
}

func TestLoadConfigFrom_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"printer": {"network_port": 9100}}`), 0600))

	t.Setenv("LABELPRINT_PRINTER_NETWORK_PORT", "6101")
	t.Setenv("LABELPRINT_LOG_LEVEL", "debug")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 6101, cfg.Printer.NetworkPort)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigFrom_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"backend": `{"history": {"backend": "mongo"}}`,
		"target":  `{"printer": {"default_target": "usb"}}`,
		"port":    `{"printer": {"network_port": 0}}`,
		"timeout": `{"printer": {"network_timeout": -1}}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))

			_, err := LoadConfigFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFrom_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))

	_, err := LoadConfigFrom(path)
	assert.Error(t, err)
}

func TestCreateDefaultConfig_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	exists, err := ConfigExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := CreateDefaultConfig(path)
	require.NoError(t, err)

	exists, err = ConfigExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	created.Server.APIKeyHash = "hash"
	require.NoError(t, SaveConfig(created, path))

	loaded, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
}

func TestCreateDefaultConfig_KeepsEnvOutOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("LABELPRINT_PRINTER_NETWORK_HOST", "10.0.0.9")
	t.Setenv("LABELPRINT_LOG_LEVEL", "debug")

	cfg, err := CreateDefaultConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.Printer.NetworkHost)
	assert.Equal(t, "debug", cfg.Log.Level)

	saved, err := LoadFileConfig(path)
	require.NoError(t, err)
	assert.Empty(t, saved.Printer.NetworkHost)
	assert.Equal(t, "info", saved.Log.Level)
}

func TestSetAPIKeyHash_KeepsEnvOutOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"printer": {"network_port": 9100}}`), 0600))
	t.Setenv("LABELPRINT_PRINTER_NETWORK_PORT", "6101")

	require.NoError(t, SetAPIKeyHash(path, "hash"))

	saved, err := LoadFileConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "hash", saved.Server.APIKeyHash)
	assert.Equal(t, 9100, saved.Printer.NetworkPort)

	effective, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 6101, effective.Printer.NetworkPort)
	assert.Equal(t, "hash", effective.Server.APIKeyHash)
}

func TestPrinterConfig_TargetDefaults(t *testing.T) {
	p := PrinterConfig{
		BluetoothAddress: "00:11:22:33:44:55",
		NetworkHost:      "10.0.0.5",
		NetworkPort:      9100,
		FilePath:         "/tmp/out.bin",
	}

	assert.Equal(t, "00:11:22:33:44:55", p.TargetDefaults(models.TransportBluetooth).Address)
	assert.Equal(t, "/tmp/out.bin", p.TargetDefaults(models.TransportFile).Address)
	assert.Equal(t, 9100, p.TargetDefaults(models.TransportNetwork).Port)
	assert.Equal(t, models.PrintTarget{Kind: models.TransportDocument}, p.TargetDefaults(models.TransportDocument))
}
