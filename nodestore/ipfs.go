package nodestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

// mfsShell is the part of the IPFS HTTP API the backend uses.
type mfsShell interface {
	FilesRead(ctx context.Context, path string, options ...shell.FilesOpt) (io.ReadCloser, error)
	FilesWrite(ctx context.Context, path string, data io.Reader, options ...shell.FilesOpt) error
	FilesLs(ctx context.Context, path string, options ...shell.FilesOpt) ([]*shell.MfsLsEntry, error)
	IsUp() bool
}

// IPFSBackend stores objects in the mutable file system (MFS) of an IPFS
// node. Keys map to MFS paths below a root directory, so objects stay
// addressable and listable by key while their content lives in IPFS.
type IPFSBackend struct {
	shell       mfsShell
	apiAddr     string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend connects to the IPFS HTTP API at apiAddr (host:port) and
// keeps objects below the MFS directory root.
func NewIPFSBackend(apiAddr, root string, log *slog.Logger) *IPFSBackend {
	return newIPFSBackend(shell.NewShell(apiAddr), apiAddr, root, log)
}

func newIPFSBackend(sh mfsShell, apiAddr, root string, log *slog.Logger) *IPFSBackend {
	root = strings.Trim(root, "/")
	if root != "" {
		root = "/" + root
	}
	return &IPFSBackend{
		shell:       sh,
		apiAddr:     apiAddr,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiAddr, root),
	}
}

func (b *IPFSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	mfsPath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		b.log.Error("Failed to read object from IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from IPFS: %w", err)
	}

	b.log.Debug("Fetched object from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

func (b *IPFSBackend) Put(ctx context.Context, key string, data []byte) error {
	mfsPath, err := b.path(key)
	if err != nil {
		return err
	}

	err = b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write to IPFS: %w", err)
	}

	b.log.Debug("Stored object in IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)))
	return nil
}

func (b *IPFSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	dir, err := b.path(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, err
	}

	entries, err := b.shell.FilesLs(ctx, dir)
	if isMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list IPFS directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name, ".") {
			continue
		}
		keys = append(keys, prefix+entry.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s", b.apiAddr)
}

func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) path(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || cleaned == "/" || cleaned != "/"+strings.TrimSuffix(key, "/") {
		return "", fmt.Errorf("%w: key %q", ErrInvalidID, key)
	}
	return b.root + cleaned, nil
}

// isMissing matches the "file does not exist" errors of the files API.
func isMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no link named")
}
