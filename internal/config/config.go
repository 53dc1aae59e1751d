// Package config implements the durable configuration contract from
// spec.md §6 ("a versioned blob containing gateway EUI, LoRa config,
// link config, and server config") plus a YAML-file-backed default
// implementation of it. Grounded on the teacher's internal/config: same
// yaml.v3 struct-tree-with-tags shape, the same Load/applyEnvOverrides
// split, and the same "read file, override from environment" sequencing —
// narrowed from the teacher's multi-service (API/DB/NATS/JWT/CN470)
// configuration down to what one gateway process needs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/au915gw/gateway/internal/band/au915"
	"github.com/au915gw/gateway/internal/gwtypes"
)

// Config is the gateway's durable configuration: gateway identity, the
// AU915 channel plan, link policy, and the network-server connection.
// Read once at Init; changes require a stop/start cycle (spec.md §5,
// "Config snapshot: read-mostly").
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	LoRa    LoRaConfig    `yaml:"lora"`
	Link    LinkConfig    `yaml:"link"`
}

// LogConfig mirrors the teacher's Log block.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig names the network server this gateway pushes to, spec.md
// §6's "server config {host, port, keepalive_ms, stat_interval_ms}".
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	KeepaliveMs    int    `yaml:"keepalive_ms"`
	StatIntervalMs int    `yaml:"stat_interval_ms"`
}

// Addr formats Host:Port for net.ResolveUDPAddr.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GatewayConfig carries the gateway's identity. EUIHex is a 16-character
// hex string; when empty, the gateway derives its EUI from the host MAC
// at Init (spec.md §6, gwcore.DeriveEUI) and never persists the result
// back here — that is the durable-config writer's job if the deployment
// wants it pinned.
type GatewayConfig struct {
	EUIHex string `yaml:"eui"`

	// ForwardBadCRC, when true, forwards RX-queue descriptors that failed
	// the radio's CRC check to the network server instead of dropping
	// them (spec.md line 150: RX-queue CRC drop is "(configurable)").
	ForwardBadCRC bool `yaml:"forward_bad_crc"`
}

// ChannelConfig describes one AU915 uplink channel's enablement and SF
// range, spec.md §6's "per-channel {freq, SF range, BW, enabled}".
type ChannelConfig struct {
	Index   int  `yaml:"index"`
	SFMin   uint8 `yaml:"sf_min"`
	SFMax   uint8 `yaml:"sf_max"`
	Enabled bool `yaml:"enabled"`
}

// LoRaConfig is the durable radio configuration: which AU915 sub-band is
// active, per-channel enablement, and the RX/TX defaults applied at
// Init.
type LoRaConfig struct {
	SubBand     int             `yaml:"sub_band"`
	Channels    []ChannelConfig `yaml:"channels"`
	DefaultRxSF uint8           `yaml:"default_rx_sf"`
	RxBandwidth uint32          `yaml:"rx_bandwidth"`
	TxPowerDBm  int8            `yaml:"tx_power_dbm"`
	SyncWord    byte            `yaml:"sync_word"`
	HopIntervalMs int           `yaml:"hop_interval_ms"`
}

// LinkConfig configures the external link manager's failover policy
// (spec.md §6: "owns any failover policy" — the policy knobs live here,
// the mechanism lives in internal/link).
type LinkConfig struct {
	Interface       string `yaml:"interface"`
	FailoverEnabled bool   `yaml:"failover_enabled"`
}

// Default returns the nominal AU915 configuration: sub-band 1, all 8
// channels of that sub-band enabled at SF7-SF10, 125kHz, 14dBm, public
// sync word, hopping disabled.
func Default() *Config {
	subBand := 1
	var channels []ChannelConfig
	for _, idx := range au915.SubBandChannels(subBand) {
		channels = append(channels, ChannelConfig{Index: idx, SFMin: 7, SFMax: 10, Enabled: true})
	}
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Server: ServerConfig{
			Host:           "localhost",
			Port:           1700,
			KeepaliveMs:    10000,
			StatIntervalMs: 30000,
		},
		LoRa: LoRaConfig{
			SubBand:       subBand,
			Channels:      channels,
			DefaultRxSF:   7,
			RxBandwidth:   uint32(gwtypes.BW125),
			TxPowerDBm:    14,
			SyncWord:      au915.SyncWord,
			HopIntervalMs: 0,
		},
		Link: LinkConfig{FailoverEnabled: false},
	}
}

// Store is the durable-config contract spec.md §6 treats as an external
// collaborator: something that can produce a Config at Init and persist
// one back on an explicit save command. YAMLStore is the file-backed
// default implementation this binary runs with; a real deployment may
// swap in an NVS-backed Store over a serial link without touching
// anything that only depends on this interface.
type Store interface {
	Load() (*Config, error)
	Save(cfg *Config) error
}

// YAMLStore implements Store by reading/writing a YAML file, applying
// environment overrides on Load the way the teacher's applyEnvOverrides
// does.
type YAMLStore struct {
	Path string
}

// NewYAMLStore constructs a Store bound to path.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{Path: path}
}

// Load reads Path; if it does not exist, returns Default() rather than an
// error, so a fresh install can run without a pre-seeded file.
func (s *YAMLStore) Load() (*Config, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", s.Path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", s.Path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save marshals cfg and writes it to Path, used by the explicit
// persist-EUI/persist-channel-plan command path (spec.md §6: "written on
// explicit command").
func (s *YAMLStore) Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", s.Path, err)
	}
	return nil
}

// applyEnvOverrides overrides selected fields from the environment, the
// same narrow set of "operationally useful to override without editing a
// file" knobs the teacher exposes for its own Config.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("AU915GW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("AU915GW_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("AU915GW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AU915GW_GATEWAY_EUI"); v != "" {
		c.Gateway.EUIHex = v
	}
}
