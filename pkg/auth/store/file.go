package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/collectionlab/oauthcore/pkg/lockfile"
	"github.com/collectionlab/oauthcore/pkg/logger"
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

const fileStoreSchemaVersion = 1

type fileSchema struct {
	Version int                          `json:"version"`
	Bundles map[string]oauth.TokenBundle `json:"bundles"`
}

// FileProvider persists token bundles as JSON under the user's XDG data
// directory. Writes are atomic (temp file + rename) and guarded both by an
// in-process keyed mutex and a cross-process advisory file lock.
type FileProvider struct {
	path string
}

// DefaultFileStorePath returns the default credential store location,
// $XDG_DATA_HOME/oauthcore/credentials.json.
func DefaultFileStorePath() (string, error) {
	return xdg.DataFile(filepath.Join("oauthcore", "credentials.json"))
}

// NewFileProvider returns a file-backed Provider rooted at path. If path is
// empty, DefaultFileStorePath is used.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		p, err := DefaultFileStorePath()
		if err != nil {
			return nil, fmt.Errorf("resolve default credential store path: %w", err)
		}
		path = p
	}
	return &FileProvider{path: path}, nil
}

// Get implements Provider.
func (f *FileProvider) Get(key oauth.StoreKey) (*oauth.TokenBundle, error) {
	var result *oauth.TokenBundle
	err := lockfile.WithKeyLock(f.path, func() error {
		schema, err := f.load()
		if err != nil {
			return err
		}
		b, ok := schema.Bundles[key.String()]
		if !ok {
			return nil
		}
		result = &b
		return nil
	})
	return result, err
}

// Put implements Provider.
func (f *FileProvider) Put(key oauth.StoreKey, bundle *oauth.TokenBundle) error {
	if !shouldPersist(bundle) {
		return nil
	}
	return lockfile.WithKeyLock(f.path, func() error {
		schema, err := f.load()
		if err != nil {
			return err
		}
		stamped := *bundle
		stamped.CreatedAt = nowMillis()
		schema.Bundles[key.String()] = stamped
		return f.save(schema)
	})
}

// Clear implements Provider.
func (f *FileProvider) Clear(key oauth.StoreKey) error {
	return lockfile.WithKeyLock(f.path, func() error {
		schema, err := f.load()
		if err != nil {
			return err
		}
		if _, ok := schema.Bundles[key.String()]; !ok {
			return nil
		}
		delete(schema.Bundles, key.String())
		return f.save(schema)
	})
}

func (f *FileProvider) load() (*fileSchema, error) {
	flk := lockfile.NewFileLock(f.path + ".lock")
	if err := flk.RLock(); err != nil {
		return nil, fmt.Errorf("lock credential store for read: %w", err)
	}
	defer flk.Unlock() //nolint:errcheck

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &fileSchema{Version: fileStoreSchemaVersion, Bundles: map[string]oauth.TokenBundle{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential store %s: %w", f.path, err)
	}
	var schema fileSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse credential store %s: %w", f.path, err)
	}
	if schema.Bundles == nil {
		schema.Bundles = map[string]oauth.TokenBundle{}
	}
	return &schema, nil
}

func (f *FileProvider) save(schema *fileSchema) error {
	flk := lockfile.NewFileLock(f.path + ".lock")
	if err := flk.Lock(); err != nil {
		return fmt.Errorf("lock credential store for write: %w", err)
	}
	defer flk.Unlock() //nolint:errcheck

	schema.Version = fileStoreSchemaVersion
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credential store directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credential store file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("write temp credential store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("close temp credential store file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("atomically replace credential store file: %w", err)
	}
	logger.Debugw("credential store written", "path", f.path, "bundles", len(schema.Bundles))
	return nil
}
