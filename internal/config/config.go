package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines host configuration.
type Config struct {
	Data        DataConfig        `yaml:"data"`
	Server      ServerConfig      `yaml:"server"`
	Transport   TransportConfig   `yaml:"transport"`
	Log         LogConfig         `yaml:"log"`
	Engine      EngineConfig      `yaml:"engine"`
	Filter      FilterConfig      `yaml:"filter"`
	Downloads   DownloadsConfig   `yaml:"downloads"`
	Hibernation HibernationConfig `yaml:"hibernation"`
	Updates     UpdatesConfig     `yaml:"updates"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Platform    string            `yaml:"platform"`
}

// DataConfig locates durable state. Root holds the profile registry; profile
// and incognito roots are derived from it at startup.
type DataConfig struct {
	Root string `yaml:"root"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig selects how the presentation layer reaches the host.
type TransportConfig struct {
	Mode  string `yaml:"mode"` // "stdio" or "http"
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// EngineConfig configures the content-engine adapter.
type EngineConfig struct {
	DebuggerURL string `yaml:"debugger_url"`
	Bin         string `yaml:"bin"`
	Headless    bool   `yaml:"headless"`
	UserAgent   string `yaml:"user_agent"`
	PreloadPath string `yaml:"preload_path"`
}

// FilterConfig configures the content-filtering engine source.
type FilterConfig struct {
	ListURLs     []string      `yaml:"list_urls"`
	CacheFile    string        `yaml:"cache_file"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type DownloadsConfig struct {
	Dir          string `yaml:"dir"`
	HistoryLimit int    `yaml:"history_limit"`
}

type HibernationConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type UpdatesConfig struct {
	FeedURL        string        `yaml:"feed_url"`
	CurrentVersion string        `yaml:"current_version"`
	StartupDelay   time.Duration `yaml:"startup_delay"`
	Interval       time.Duration `yaml:"interval"`
}

// ProtocolConfig names the custom scheme the host claims alongside http/https.
type ProtocolConfig struct {
	Scheme string `yaml:"scheme"`
}

// DefaultUserAgent is a stock desktop Chrome string; embedded engines that
// advertise themselves get blocked by some sign-in flows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Default returns the configuration before file and environment overrides.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root: defaultDataRoot(),
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			UserAgent: DefaultUserAgent,
		},
		Filter: FilterConfig{
			ListURLs: []string{
				"https://easylist.to/easylist/easylist.txt",
				"https://easylist.to/easylist/easyprivacy.txt",
			},
			CacheFile:    filepath.Join("adblock", "engine.bin"),
			FetchTimeout: 30 * time.Second,
		},
		Downloads: DownloadsConfig{
			Dir:          defaultDownloadsDir(),
			HistoryLimit: 50,
		},
		Hibernation: HibernationConfig{
			SweepInterval: 30 * time.Second,
		},
		Updates: UpdatesConfig{
			CurrentVersion: "0.1.0",
			StartupDelay:   10 * time.Second,
			Interval:       30 * time.Minute,
		},
		Protocol: ProtocolConfig{
			Scheme: "browserhost",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("BROWSERHOST_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Transport.Mode != "stdio" && cfg.Transport.Mode != "http" {
		return Config{}, fmt.Errorf("invalid transport mode %q", cfg.Transport.Mode)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if root := os.Getenv("BROWSERHOST_DATA_ROOT"); root != "" {
		cfg.Data.Root = root
	}
	if host := os.Getenv("BROWSERHOST_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("BROWSERHOST_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid BROWSERHOST_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("BROWSERHOST_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if token := os.Getenv("BROWSERHOST_TOKEN"); token != "" {
		cfg.Transport.Token = token
	}
	if level := os.Getenv("BROWSERHOST_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if url := os.Getenv("BROWSERHOST_DEBUGGER_URL"); url != "" {
		cfg.Engine.DebuggerURL = url
	}
	if v := os.Getenv("BROWSERHOST_HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BROWSERHOST_HEADLESS: %w", err)
		}
		cfg.Engine.Headless = headless
	}
	if lists := os.Getenv("BROWSERHOST_FILTER_LISTS"); lists != "" {
		cfg.Filter.ListURLs = splitList(lists)
	}
	if dir := os.Getenv("BROWSERHOST_DOWNLOADS_DIR"); dir != "" {
		cfg.Downloads.Dir = dir
	}
	if feed := os.Getenv("BROWSERHOST_UPDATE_FEED"); feed != "" {
		cfg.Updates.FeedURL = feed
	}
	if platform := os.Getenv("BROWSERHOST_PLATFORM"); platform != "" {
		cfg.Platform = platform
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func defaultDataRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".browserhost"
	}
	return filepath.Join(dir, "browserhost")
}

func defaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}
