package config

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern keeps service and algorithm names usable as single path
// components and unambiguous inside test names, which use "_" as separator.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

// validIdentifier also rejects "." and "..", which would escape the cell
// folder layout.
func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name) && strings.Trim(name, ".") != ""
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire sweep configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all problems found.
func (c *SweepConfig) Validate() error {
	errs := &ValidationErrors{}

	validateRemote(&c.Remote, errs)

	if c.Container.ID == "" {
		errs.Add("container.id", "container id is required")
	}

	validateServices(c.Services, errs)
	validateAlgorithms(c.Algorithms, errs)
	validateLoads(c.Loads, errs)

	if c.Benchmark.Binary == "" {
		errs.Add("benchmark.binary", "benchmark binary is required")
	}

	if c.Retry.MaxRetry != nil && *c.Retry.MaxRetry < 0 {
		errs.Add("retry.maxRetry", "maxRetry cannot be negative")
	}
	if c.Retry.Delay != nil && *c.Retry.Delay < 0 {
		errs.Add("retry.delay", "delay cannot be negative")
	}

	validatePackage(&c.Package, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRemote(r *RemoteConfig, errs *ValidationErrors) {
	if r.Host == "" {
		errs.Add("remote.host", "host is required")
	}
	if r.User == "" {
		errs.Add("remote.user", "user is required")
	}
	if r.KeyFile == "" {
		errs.Add("remote.keyFile", "keyFile is required")
	}
	if r.Port < 0 || r.Port > 65535 {
		errs.Add("remote.port", fmt.Sprintf("invalid port: %d", r.Port))
	}
}

func validateServices(services []ServiceConfig, errs *ValidationErrors) {
	if len(services) == 0 {
		errs.Add("services", "at least one service is required")
		return
	}

	seen := make(map[string]bool, len(services))
	for i, svc := range services {
		prefix := fmt.Sprintf("services[%d]", i)

		switch {
		case svc.Name == "":
			errs.Add(prefix+".name", "name is required")
		case !validIdentifier(svc.Name):
			errs.Add(prefix+".name", fmt.Sprintf("invalid name %q: only letters, digits, '.' and '-' are allowed", svc.Name))
		case seen[svc.Name]:
			errs.Add(prefix+".name", fmt.Sprintf("duplicate service name: %s", svc.Name))
		}
		seen[svc.Name] = true

		if strings.TrimSpace(svc.Start) == "" {
			errs.Add(prefix+".start", "start command is required")
		}
		if strings.TrimSpace(svc.Stop) == "" {
			errs.Add(prefix+".stop", "stop command is required")
		}
	}
}

func validateAlgorithms(algorithms []string, errs *ValidationErrors) {
	if len(algorithms) == 0 {
		errs.Add("algorithms", "at least one algorithm is required")
		return
	}

	seen := make(map[string]bool, len(algorithms))
	for i, algo := range algorithms {
		field := fmt.Sprintf("algorithms[%d]", i)
		switch {
		case algo == "":
			errs.Add(field, "algorithm cannot be empty")
		case !validIdentifier(algo):
			errs.Add(field, fmt.Sprintf("invalid algorithm %q", algo))
		case seen[algo]:
			errs.Add(field, fmt.Sprintf("duplicate algorithm: %s", algo))
		}
		seen[algo] = true
	}
}

func validateLoads(loads []LoadProfileConfig, errs *ValidationErrors) {
	if len(loads) == 0 {
		errs.Add("loads", "at least one load profile is required")
		return
	}

	seen := make(map[LoadProfileConfig]bool, len(loads))
	for i, load := range loads {
		prefix := fmt.Sprintf("loads[%d]", i)
		if load.Requests <= 0 {
			errs.Add(prefix+".requests", "requests must be greater than 0")
		}
		if load.Concurrency <= 0 {
			errs.Add(prefix+".concurrency", "concurrency must be greater than 0")
		}
		if load.Concurrency > load.Requests {
			errs.Add(prefix+".concurrency", "concurrency cannot exceed requests")
		}
		if seen[load] {
			errs.Add(prefix, fmt.Sprintf("duplicate load profile: %dr%dc", load.Requests, load.Concurrency))
		}
		seen[load] = true
	}
}

func validatePackage(p *PackageConfig, errs *ValidationErrors) {
	switch p.Archiver {
	case "", "command":
	case "native":
		if p.Archive != "" && !strings.HasSuffix(p.Archive, ".tar.gz") && !strings.HasSuffix(p.Archive, ".tgz") {
			errs.Add("package.archive", "the native archiver writes .tar.gz or .tgz files")
		}
	default:
		errs.Add("package.archiver", fmt.Sprintf("unknown archiver: %s", p.Archiver))
	}

	switch p.Uploader {
	case "", "command":
	case "s3":
		if p.Upload && p.Bucket.Name == "" {
			errs.Add("package.bucket.name", "bucket name is required for the s3 uploader")
		}
	case "local":
		if p.Upload && p.Bucket.Path == "" {
			errs.Add("package.bucket.path", "bucket path is required for the local uploader")
		}
	default:
		errs.Add("package.uploader", fmt.Sprintf("unknown uploader: %s", p.Uploader))
	}

	if p.Archive != "" && strings.ContainsRune(p.Archive, '/') {
		errs.Add("package.archive", "archive must be a file name")
	}
}
