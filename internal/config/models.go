package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"gopkg.in/yaml.v3"
)

// CapsBackend selects the caps algebra implementation
type CapsBackend string

const (
	CapsBackendNative    CapsBackend = "native"
	CapsBackendGStreamer CapsBackend = "gstreamer"
)

// Config represents the application configuration
type Config struct {
	ServerPort  int          `json:"server_port" yaml:"server_port"`
	LogLevel    string       `json:"log_level" yaml:"log_level"`
	CapsBackend CapsBackend  `json:"caps_backend" yaml:"caps_backend"`
	Device      DeviceConfig `json:"device" yaml:"device"`
	Source      SourceConfig `json:"source" yaml:"source"`
	Sink        SinkConfig   `json:"sink" yaml:"sink"`
}

// DeviceConfig describes the software output device
type DeviceConfig struct {
	// Formats lists the supported RGBA layouts; empty means all
	Formats   []string `json:"formats" yaml:"formats"`
	MaxWidth  int      `json:"max_width" yaml:"max_width"`
	MaxHeight int      `json:"max_height" yaml:"max_height"`
	// PoolSize is the number of idle surfaces kept for reuse; 0 disables pooling
	PoolSize int `json:"pool_size" yaml:"pool_size"`
}

// SourceConfig describes the test-pattern stream
type SourceConfig struct {
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	FPS         int    `json:"fps" yaml:"fps"`
	ChromaType  int    `json:"chroma_type" yaml:"chroma_type"`
	PixelAspect string `json:"pixel_aspect_ratio" yaml:"pixel_aspect_ratio"`
	Label       string `json:"label" yaml:"label"`
	// Frames stops the source after that many frames; 0 runs until stopped
	Frames uint64 `json:"frames" yaml:"frames"`
}

// SinkConfig describes the consumer
type SinkConfig struct {
	// Caps limits the accepted formats; empty accepts anything
	Caps     string `json:"caps" yaml:"caps"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	Renderer string `json:"renderer" yaml:"renderer"`
	// DeviceAlloc lets the sink allocate surfaces for surface contracts
	DeviceAlloc bool `json:"device_alloc" yaml:"device_alloc"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/vdpout/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vdpout", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("caps_backend", string(m.config.CapsBackend)).
		Str("renderer", m.config.Sink.Renderer).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort:  8080,
		LogLevel:    "info",
		CapsBackend: CapsBackendNative,
		Device: DeviceConfig{
			Formats:   []string{},
			MaxWidth:  vdp.MaxSurfaceSize,
			MaxHeight: vdp.MaxSurfaceSize,
			PoolSize:  4,
		},
		Source: SourceConfig{
			Width:       1280,
			Height:      720,
			FPS:         30,
			PixelAspect: "1/1",
			Label:       "vdpout",
		},
		Sink: SinkConfig{
			Caps:     "video/x-raw-rgb",
			Renderer: "mjpeg",
		},
	}
}

// load reads the configuration from disk, filling unset fields from the
// defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Device.Formats == nil {
		cfg.Device.Formats = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Validate checks values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port %d out of range", c.ServerPort)
	}
	switch c.CapsBackend {
	case CapsBackendNative, CapsBackendGStreamer:
	default:
		return fmt.Errorf("unknown caps_backend %q", c.CapsBackend)
	}
	if _, err := c.Device.Limits(); err != nil {
		return err
	}
	if c.Source.Width <= 0 || c.Source.Height <= 0 {
		return fmt.Errorf("invalid source size %dx%d", c.Source.Width, c.Source.Height)
	}
	if _, err := c.Source.Aspect(); err != nil {
		return err
	}
	if c.Sink.Caps != "" {
		if _, err := caps.Parse(c.Sink.Caps); err != nil {
			return fmt.Errorf("invalid sink caps: %w", err)
		}
	}
	if (c.Sink.Width > 0) != (c.Sink.Height > 0) {
		return fmt.Errorf("sink width and height must be set together")
	}
	switch c.Sink.Renderer {
	case "", "mjpeg", "x11", "none":
	default:
		return fmt.Errorf("unknown sink renderer %q", c.Sink.Renderer)
	}
	return nil
}

// Limits converts the device section into software device limits
func (d DeviceConfig) Limits() ([]vdp.FormatLimit, error) {
	if d.MaxWidth <= 0 || d.MaxHeight <= 0 {
		return nil, fmt.Errorf("invalid device maximum %dx%d", d.MaxWidth, d.MaxHeight)
	}

	formats := vdp.Formats()
	if len(d.Formats) > 0 {
		formats = formats[:0:0]
		for _, name := range d.Formats {
			f, err := vdp.ParseRGBAFormat(name)
			if err != nil {
				return nil, err
			}
			formats = append(formats, f)
		}
	}

	limits := make([]vdp.FormatLimit, len(formats))
	for i, f := range formats {
		limits[i] = vdp.FormatLimit{Format: f, MaxWidth: d.MaxWidth, MaxHeight: d.MaxHeight}
	}
	return limits, nil
}

// Aspect parses the pixel aspect ratio, "" meaning 1/1
func (s SourceConfig) Aspect() (caps.Fraction, error) {
	if s.PixelAspect == "" {
		return caps.Fraction{Num: 1, Den: 1}, nil
	}
	var num, den int
	if _, err := fmt.Sscanf(s.PixelAspect, "%d/%d", &num, &den); err != nil || num <= 0 || den <= 0 {
		return caps.Fraction{}, fmt.Errorf("invalid pixel_aspect_ratio %q", s.PixelAspect)
	}
	return caps.Fraction{Num: num, Den: den}, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	cfg.Device.Formats = append([]string{}, m.config.Device.Formats...)
	return &cfg
}

// Lookup returns the value at a dotted key such as "sink.renderer",
// rendered as YAML
func (m *Manager) Lookup(key string) (string, error) {
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	var node interface{}
	if err := yaml.Unmarshal(data, &node); err != nil {
		return "", fmt.Errorf("failed to parse config: %w", err)
	}

	for _, part := range strings.Split(key, ".") {
		section, ok := node.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("unknown config key %q", key)
		}
		if node, ok = section[part]; !ok {
			return "", fmt.Errorf("unknown config key %q", key)
		}
	}

	switch node.(type) {
	case map[string]interface{}, []interface{}:
		out, err := yaml.Marshal(node)
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		return strings.TrimRight(string(out), "\n"), nil
	default:
		return fmt.Sprint(node), nil
	}
}

// Set assigns the value at a dotted key, parsing value as YAML, then
// validates and saves the result
func (m *Manager) Set(key, value string) error {
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	var root map[string]interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	var v interface{}
	if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
		v = value
	}

	parts := strings.Split(key, ".")
	section := root
	for _, part := range parts[:len(parts)-1] {
		next, ok := section[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		section = next
	}
	last := parts[len(parts)-1]
	if _, ok := section[last]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	section[last] = v

	out, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return m.Update(cfg)
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update validates and replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// GetLogLevel gets the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.LogLevel
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
