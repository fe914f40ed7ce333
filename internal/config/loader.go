package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultSSHPort            = 22
	DefaultConnectTimeout     = 10 * time.Second
	DefaultContainerRuntime   = "docker"
	DefaultContainerShell     = "bash"
	DefaultBenchmarkBinary    = "ab"
	DefaultCongestionParam    = "net.ipv4.tcp_congestion_control"
	DefaultMaxRetry           = 1
	DefaultRetryDelay         = 10 * time.Second
	DefaultArchiveName        = "data.tar.gz"
	DefaultArchiver           = "command"
	DefaultArchiveCommand     = "tar -czvf {{archive}} {{data}}"
	DefaultUploader           = "command"
	DefaultUploadCommand      = "curl bashupload.com -T {{archive}}"
	DefaultBucketRegion       = "us-east-1"
	DefaultBucketPrefix       = "ccsweep"
	DefaultServiceURLTemplate = "https://{{server}}{{path}}"
)

// Environment variables that override values from the config file.
const (
	EnvRemoteHost    = "CCSWEEP_REMOTE_HOST"
	EnvRemoteUser    = "CCSWEEP_REMOTE_USER"
	EnvRemoteKeyFile = "CCSWEEP_REMOTE_KEY_FILE"
	EnvContainerID   = "CCSWEEP_CONTAINER_ID"
)

// LoadConfig reads, parses, defaults and validates a sweep configuration file.
func LoadConfig(path string) (*SweepConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(GetConfigDir(path), cfg.OutputDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseConfig parses raw config bytes. JSON is used for .json files and
// YAML for everything else. Unknown keys and mistyped values are rejected
// before decoding.
func ParseConfig(data []byte, filename string) (*SweepConfig, error) {
	var (
		cfg SweepConfig
		raw interface{}
	)

	if strings.EqualFold(filepath.Ext(filename), ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		if err := CheckStructure(raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		return &cfg, nil
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	doc, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	if err := CheckStructure(doc); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills in every optional field left empty.
func ApplyDefaults(cfg *SweepConfig) {
	if cfg.Name == "" {
		cfg.Name = "sweep"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}

	if cfg.Remote.Port == 0 {
		cfg.Remote.Port = DefaultSSHPort
	}
	if cfg.Remote.ConnectTimeout == 0 {
		cfg.Remote.ConnectTimeout = Duration(DefaultConnectTimeout)
	}
	cfg.Remote.KeyFile = expandHome(cfg.Remote.KeyFile)
	cfg.Remote.KnownHostsFile = expandHome(cfg.Remote.KnownHostsFile)

	if cfg.Container.Runtime == "" {
		cfg.Container.Runtime = DefaultContainerRuntime
	}
	if cfg.Container.Shell == "" {
		cfg.Container.Shell = DefaultContainerShell
	}

	for i := range cfg.Services {
		if cfg.Services[i].URL == "" {
			cfg.Services[i].URL = DefaultServiceURLTemplate
		}
	}

	if cfg.Benchmark.Binary == "" {
		cfg.Benchmark.Binary = DefaultBenchmarkBinary
	}
	if cfg.Congestion.Parameter == "" {
		cfg.Congestion.Parameter = DefaultCongestionParam
	}

	if cfg.Retry.MaxRetry == nil {
		n := DefaultMaxRetry
		cfg.Retry.MaxRetry = &n
	}
	if cfg.Retry.Delay == nil {
		d := Duration(DefaultRetryDelay)
		cfg.Retry.Delay = &d
	}

	pkg := &cfg.Package
	if pkg.Archive == "" {
		pkg.Archive = DefaultArchiveName
	}
	if pkg.Archiver == "" {
		pkg.Archiver = DefaultArchiver
	}
	if pkg.ArchiveCommand == "" {
		pkg.ArchiveCommand = DefaultArchiveCommand
	}
	if pkg.Uploader == "" {
		pkg.Uploader = DefaultUploader
	}
	if pkg.UploadCommand == "" {
		pkg.UploadCommand = DefaultUploadCommand
	}
	if pkg.Bucket.Region == "" {
		pkg.Bucket.Region = DefaultBucketRegion
	}
	if pkg.Bucket.Prefix == "" {
		pkg.Bucket.Prefix = DefaultBucketPrefix
	}
}

func applyEnvOverrides(cfg *SweepConfig) {
	if v := os.Getenv(EnvRemoteHost); v != "" {
		cfg.Remote.Host = v
	}
	if v := os.Getenv(EnvRemoteUser); v != "" {
		cfg.Remote.User = v
	}
	if v := os.Getenv(EnvRemoteKeyFile); v != "" {
		cfg.Remote.KeyFile = v
	}
	if v := os.Getenv(EnvContainerID); v != "" {
		cfg.Container.ID = v
	}
}

// ParseDurationString parses durations like "30s" or "2m". A bare integer
// is taken as seconds and an empty string as zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// ResolveTemplate replaces every {{key}} in input with its value from vars.
func ResolveTemplate(input string, vars map[string]string) string {
	result := input
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// GetConfigDir returns the directory containing the config file
func GetConfigDir(configPath string) string {
	return filepath.Dir(configPath)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
