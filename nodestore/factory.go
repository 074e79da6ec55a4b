package nodestore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Factory creates object stores from location URIs.
type Factory struct {
	log *slog.Logger
}

func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// BackendFor creates an object store from a location URI.
//
// Supported schemes:
//   - memory://
//   - file:///absolute/path or file://./relative/path
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=host&path_style=true
//   - ipfs://host:port/mfs/root (IPFS HTTP API, objects kept in MFS)
func (f *Factory) BackendFor(locationURI string) (ObjectStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid location URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		f.log.Debug("Creating memory backend")
		return NewMemoryBackend(), nil
	case "file":
		return f.createFileBackend(u)
	case "s3":
		return f.createS3Backend(u)
	case "ipfs":
		return f.createIPFSBackend(u)
	default:
		return nil, fmt.Errorf("unsupported backend scheme: %q", u.Scheme)
	}
}

func (f *Factory) createFileBackend(u *url.URL) (ObjectStore, error) {
	f.log.Debug("Creating file backend", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", u.String())
	}

	return NewFileBackend(path, f.log)
}

func (f *Factory) createS3Backend(u *url.URL) (ObjectStore, error) {
	f.log.Debug("Creating S3 backend", slog.String("bucket", u.Host))

	query := u.Query()
	opts := S3Options{
		Bucket:         u.Host,
		Prefix:         strings.TrimPrefix(u.Path, "/"),
		Region:         query.Get("region"),
		Endpoint:       query.Get("endpoint"),
		ForcePathStyle: query.Get("path_style") == "true",
	}

	if u.User != nil {
		opts.AccessKey = u.User.Username()
		opts.SecretKey, _ = u.User.Password()
		f.log.Debug("Using embedded S3 credentials")
	} else {
		f.log.Debug("No embedded S3 credentials, using the default AWS credential chain")
	}

	return NewS3Backend(opts, f.log)
}

func (f *Factory) createIPFSBackend(u *url.URL) (ObjectStore, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("missing API address in IPFS URI: %s", u.String())
	}
	f.log.Debug("Creating IPFS backend", slog.String("api", u.Host), slog.String("root", u.Path))
	return NewIPFSBackend(u.Host, u.Path, f.log), nil
}
