// Package packager compresses the data tree of a finished sweep and hands the
// archive to an uploader.
package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/evergreen-ci/pail"
	"github.com/evergreen-ci/utility"
	"github.com/mholt/archiver/v3"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"

	"github.com/wesleyorama2/ccsweep/internal/config"
	"github.com/wesleyorama2/ccsweep/internal/executor"
)

// Archiver and uploader names.
const (
	ArchiverCommand = "command"
	ArchiverNative  = "native"

	UploaderCommand = "command"
	UploaderS3      = "s3"
	UploaderLocal   = "local"
)

// UploadError is a failed upload. The archive is still on disk.
type UploadError struct {
	Method  string
	Archive string
	Cause   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s via %s: %v", e.Archive, e.Method, e.Cause)
}

func (e *UploadError) Unwrap() error { return e.Cause }

// Reporter is told when packaging stages begin.
type Reporter interface {
	Archiving(archivePath string)
	Uploading(method, archivePath string)
	Uploaded(location string)
}

// Options configures a Packager.
type Options struct {
	Compress bool
	Upload   bool

	// Root is the output directory; commands run there
	Root        string
	DataRoot    string
	ArchivePath string
	SweepID     string

	Archiver       string
	ArchiveCommand string

	Uploader      string
	UploadCommand string
	Bucket        config.BucketConfig

	// Local runs the archive and upload commands. Nil runs them in Root.
	Local    executor.LocalRunner
	Reporter Reporter
}

// Packager turns a data tree into an archive and optionally uploads it.
type Packager struct {
	opts Options
}

// New creates a packager.
func New(opts Options) *Packager {
	if opts.Local == nil {
		opts.Local = &executor.Local{Dir: opts.Root}
	}
	if opts.Archiver == "" {
		opts.Archiver = ArchiverCommand
	}
	if opts.ArchiveCommand == "" {
		opts.ArchiveCommand = config.DefaultArchiveCommand
	}
	if opts.Uploader == "" {
		opts.Uploader = UploaderCommand
	}
	if opts.UploadCommand == "" {
		opts.UploadCommand = config.DefaultUploadCommand
	}
	return &Packager{opts: opts}
}

// FromConfig builds packager options for a sweep.
func FromConfig(cfg *config.SweepConfig, sweepID string) Options {
	return Options{
		Compress:       cfg.Package.Compress,
		Upload:         cfg.Package.Upload,
		Root:           cfg.OutputDir,
		DataRoot:       cfg.DataRoot(),
		ArchivePath:    cfg.ArchivePath(),
		SweepID:        sweepID,
		Archiver:       cfg.Package.Archiver,
		ArchiveCommand: cfg.Package.ArchiveCommand,
		Uploader:       cfg.Package.Uploader,
		UploadCommand:  cfg.Package.UploadCommand,
		Bucket:         cfg.Package.Bucket,
	}
}

// Package archives the data tree and uploads the archive. With compression
// off it does nothing and returns "". An upload failure is returned as
// *UploadError together with the archive path.
func (p *Packager) Package(ctx context.Context) (string, error) {
	if !p.opts.Compress {
		grip.Info(message.Fields{
			"message": "compression disabled, skipping packaging",
			"upload":  p.opts.Upload,
		})
		return "", nil
	}

	archivePath := p.opts.ArchivePath
	if p.opts.Reporter != nil {
		p.opts.Reporter.Archiving(archivePath)
	}
	if err := p.archive(ctx, archivePath); err != nil {
		return "", fmt.Errorf("archiving %s: %w", p.opts.DataRoot, err)
	}
	grip.Info(message.Fields{
		"message":  "archive created",
		"archive":  archivePath,
		"archiver": p.opts.Archiver,
	})

	if !p.opts.Upload {
		return archivePath, nil
	}

	if p.opts.Reporter != nil {
		p.opts.Reporter.Uploading(p.opts.Uploader, archivePath)
	}
	location, err := p.upload(ctx, archivePath)
	if err != nil {
		uerr := &UploadError{Method: p.opts.Uploader, Archive: archivePath, Cause: err}
		grip.Error(message.WrapError(uerr, message.Fields{
			"message": "upload failed",
			"archive": archivePath,
		}))
		return archivePath, uerr
	}

	grip.Info(message.Fields{
		"message":  "archive uploaded",
		"archive":  archivePath,
		"location": location,
	})
	if p.opts.Reporter != nil {
		p.opts.Reporter.Uploaded(location)
	}
	return archivePath, nil
}

func (p *Packager) archive(ctx context.Context, archivePath string) error {
	if _, err := os.Stat(p.opts.DataRoot); err != nil {
		return fmt.Errorf("data tree: %w", err)
	}

	switch p.opts.Archiver {
	case ArchiverCommand:
		argv, err := p.expand(p.opts.ArchiveCommand, archivePath)
		if err != nil {
			return err
		}
		_, err = p.opts.Local.Run(ctx, argv, nil)
		return err
	case ArchiverNative:
		tgz := archiver.NewTarGz()
		tgz.OverwriteExisting = true
		return tgz.Archive([]string{p.opts.DataRoot}, archivePath)
	default:
		return fmt.Errorf("unknown archiver %q", p.opts.Archiver)
	}
}

func (p *Packager) upload(ctx context.Context, archivePath string) (string, error) {
	switch p.opts.Uploader {
	case UploaderCommand:
		argv, err := p.expand(p.opts.UploadCommand, archivePath)
		if err != nil {
			return "", err
		}
		out, err := p.opts.Local.Run(ctx, argv, nil)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	case UploaderS3, UploaderLocal:
		bucket, err := p.bucket(ctx)
		if err != nil {
			return "", err
		}
		key := p.Key(archivePath)
		if err := bucket.Upload(ctx, key, archivePath); err != nil {
			return "", err
		}
		return p.location(key), nil
	default:
		return "", fmt.Errorf("unknown uploader %q", p.opts.Uploader)
	}
}

// Key is the object key an archive is stored under, relative to the bucket
// prefix.
func (p *Packager) Key(archivePath string) string {
	return path.Join(p.opts.SweepID, filepath.Base(archivePath))
}

func (p *Packager) bucket(ctx context.Context) (pail.Bucket, error) {
	conf := p.opts.Bucket

	var b pail.Bucket
	var err error
	switch p.opts.Uploader {
	case UploaderS3:
		opts := pail.S3Options{
			Name:       conf.Name,
			Prefix:     conf.Prefix,
			Region:     conf.Region,
			MaxRetries: utility.ToIntPtr(10),
		}
		if conf.AWSKey != "" {
			opts.Credentials = pail.CreateAWSCredentials(conf.AWSKey, conf.AWSSecret, "")
		}
		b, err = pail.NewS3Bucket(ctx, opts)
	case UploaderLocal:
		if err = os.MkdirAll(conf.Path, 0755); err != nil {
			return nil, fmt.Errorf("creating bucket directory: %w", err)
		}
		b, err = pail.NewLocalBucket(pail.LocalOptions{Path: conf.Path, Prefix: conf.Prefix})
	default:
		return nil, errors.New("not a bucket uploader")
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s bucket: %w", p.opts.Uploader, err)
	}

	if err = b.Check(ctx); err != nil {
		return nil, fmt.Errorf("checking %s bucket: %w", p.opts.Uploader, err)
	}
	return b, nil
}

func (p *Packager) location(key string) string {
	conf := p.opts.Bucket
	if p.opts.Uploader == UploaderS3 {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", conf.Name, path.Join(conf.Prefix, key))
	}
	return filepath.Join(conf.Path, conf.Prefix, filepath.FromSlash(key))
}

// expand splits a command template into words and substitutes the
// placeholders in each word, so substituted paths never get re-split.
func (p *Packager) expand(template, archivePath string) ([]string, error) {
	words, err := executor.SplitCommand(template)
	if err != nil {
		return nil, err
	}

	data := p.opts.DataRoot
	if p.opts.Root != "" {
		if rel, err := filepath.Rel(p.opts.Root, p.opts.DataRoot); err == nil && !strings.HasPrefix(rel, "..") {
			data = rel
		}
	}
	archive := archivePath
	if abs, err := filepath.Abs(archivePath); err == nil {
		archive = abs
	}

	vars := map[string]string{
		"archive": archive,
		"data":    data,
		"root":    p.opts.Root,
	}
	for i, w := range words {
		words[i] = config.ResolveTemplate(w, vars)
	}
	return words, nil
}
