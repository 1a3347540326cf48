// Package artifact stores report files produced by runs.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"contagion/internal/config"
)

// Store keeps run artifacts under slash separated keys.
type Store interface {
	// Put writes data under key, replacing what is there, and returns a
	// location a user can open.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Key is the key of a run artifact.
func Key(runID, name string) string {
	return runID + "/" + name
}

func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

// Dir stores artifacts as files under Root.
type Dir struct {
	Root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Dir{Root: root}, nil
}

func (d *Dir) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(d.Root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(clean)))
}

// Open builds the store configured in cfg. It returns nil when artifacts
// are disabled. Relative directories resolve against workspace.
func Open(ctx context.Context, workspace string, cfg config.Artifacts) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "fs":
		root := cfg.Dir
		if !filepath.IsAbs(root) {
			root = filepath.Join(workspace, root)
		}
		return NewDir(root)
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.S3.Prefix,
		})
	}
	return nil, fmt.Errorf("unknown artifact driver %q", cfg.Driver)
}
