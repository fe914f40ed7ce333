// Package config provides configuration parsing and validation for a sweep.
package config

import (
	"path/filepath"
	"time"
)

// SweepConfig is the root configuration for a benchmark sweep.
//
// Example YAML:
//
//	name: "tcp-congestion-sweep"
//	target:
//	  server: www.netlab.com
//	  path: /sample-3s.mp3
//	remote:
//	  host: 192.168.0.15
//	  user: root
//	  keyFile: ~/.ssh/lab
//	container:
//	  id: 29df
//	services:
//	  - name: nginx
//	    start: service nginx start
//	    stop: service nginx stop
//	algorithms: [cubic, bbr]
//	loads:
//	  - requests: 2000
//	    concurrency: 100
type SweepConfig struct {
	// Name of the sweep (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// OutputDir holds the data tree, the archive and the ledger.
	// Relative paths are resolved against the config file directory.
	OutputDir string `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`

	// Target is substituted into service URL templates
	Target TargetConfig `json:"target" yaml:"target"`

	// Remote is the SSH endpoint of the host under test
	Remote RemoteConfig `json:"remote" yaml:"remote"`

	// Container is the running container that hosts the services
	Container ContainerConfig `json:"container" yaml:"container"`

	// Services are swept in order (outer dimension)
	Services []ServiceConfig `json:"services" yaml:"services"`

	// Algorithms are the congestion-control algorithms (middle dimension)
	Algorithms []string `json:"algorithms" yaml:"algorithms"`

	// Loads are the load profiles (inner dimension)
	Loads []LoadProfileConfig `json:"loads" yaml:"loads"`

	// Benchmark describes the external benchmarking tool
	Benchmark BenchmarkConfig `json:"benchmark,omitempty" yaml:"benchmark,omitempty"`

	// Congestion describes how the algorithm is applied on the remote host
	Congestion CongestionConfig `json:"congestion,omitempty" yaml:"congestion,omitempty"`

	// Retry is the per-cell retry policy
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Package controls archiving and upload of the results
	Package PackageConfig `json:"package,omitempty" yaml:"package,omitempty"`

	// Ledger controls the per-cell status ledger
	Ledger LedgerConfig `json:"ledger,omitempty" yaml:"ledger,omitempty"`
}

// TargetConfig is the benchmark target the services are reached at.
type TargetConfig struct {
	Server string `json:"server" yaml:"server"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RemoteConfig is the SSH endpoint used for lifecycle and kernel changes.
type RemoteConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
	User string `json:"user" yaml:"user"`

	// KeyFile is the private key used to authenticate
	KeyFile string `json:"keyFile" yaml:"keyFile"`

	// KnownHostsFile enables host key verification when set
	KnownHostsFile string `json:"knownHostsFile,omitempty" yaml:"knownHostsFile,omitempty"`

	ConnectTimeout Duration `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty"`
}

// ContainerConfig identifies the container services run in.
type ContainerConfig struct {
	ID      string `json:"id" yaml:"id"`
	Runtime string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Shell   string `json:"shell,omitempty" yaml:"shell,omitempty"`
}

// ServiceConfig defines a testable service.
type ServiceConfig struct {
	Name  string `json:"name" yaml:"name"`
	Start string `json:"start" yaml:"start"`
	Stop  string `json:"stop" yaml:"stop"`

	// URL is a template; {{server}} and {{path}} come from Target
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// LoadProfileConfig is one load profile.
type LoadProfileConfig struct {
	Requests    int `json:"requests" yaml:"requests"`
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// BenchmarkConfig describes the benchmarking tool invocation.
type BenchmarkConfig struct {
	Binary string   `json:"binary,omitempty" yaml:"binary,omitempty"`
	Args   []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// CongestionConfig describes the kernel parameter that selects the algorithm.
type CongestionConfig struct {
	Parameter  string `json:"parameter,omitempty" yaml:"parameter,omitempty"`
	SkipVerify bool   `json:"skipVerify,omitempty" yaml:"skipVerify,omitempty"`
}

// RetryConfig bounds the attempts made for a single matrix cell.
type RetryConfig struct {
	// MaxRetry is the number of retries after the first attempt
	MaxRetry *int `json:"maxRetry,omitempty" yaml:"maxRetry,omitempty"`

	// Delay is the pause between attempts
	Delay *Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// PackageConfig controls the result packager.
type PackageConfig struct {
	Compress bool `json:"compress,omitempty" yaml:"compress,omitempty"`

	// Archive is the archive file name, relative to OutputDir
	Archive string `json:"archive,omitempty" yaml:"archive,omitempty"`

	// Archiver is "command" or "native"
	Archiver       string `json:"archiver,omitempty" yaml:"archiver,omitempty"`
	ArchiveCommand string `json:"archiveCommand,omitempty" yaml:"archiveCommand,omitempty"`

	Upload bool `json:"upload,omitempty" yaml:"upload,omitempty"`

	// Uploader is "command", "s3" or "local"
	Uploader      string       `json:"uploader,omitempty" yaml:"uploader,omitempty"`
	UploadCommand string       `json:"uploadCommand,omitempty" yaml:"uploadCommand,omitempty"`
	Bucket        BucketConfig `json:"bucket,omitempty" yaml:"bucket,omitempty"`
}

// BucketConfig addresses the blob store used by the s3 and local uploaders.
type BucketConfig struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	AWSKey    string `json:"awsKey,omitempty" yaml:"awsKey,omitempty"`
	AWSSecret string `json:"awsSecret,omitempty" yaml:"awsSecret,omitempty"`
}

// LedgerConfig controls the run ledger.
type LedgerConfig struct {
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DataRoot is the directory every cell folder lives under.
func (c *SweepConfig) DataRoot() string {
	return filepath.Join(c.OutputDir, "data")
}

// ArchivePath is where the compressed data tree is written.
func (c *SweepConfig) ArchivePath() string {
	return filepath.Join(c.OutputDir, c.Package.Archive)
}

// LedgerPath is the bbolt file backing the run ledger.
func (c *SweepConfig) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.OutputDir, "ledger.db")
}

// GetMaxRetry returns the configured retry count.
func (r RetryConfig) GetMaxRetry() int {
	if r.MaxRetry == nil {
		return DefaultMaxRetry
	}
	return *r.MaxRetry
}

// GetDelay returns the configured retry delay.
func (r RetryConfig) GetDelay() time.Duration {
	if r.Delay == nil {
		return DefaultRetryDelay
	}
	return time.Duration(*r.Delay)
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
