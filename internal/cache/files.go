package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
)

// FileStore keeps one JSON document per identity under dir/<id[:2]>/<id>.json.
// Writes go through a temp file and rename so readers never see a partial entry.
type FileStore struct {
	dir string
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Name() string { return "files" }

func (s *FileStore) path(identity string) string {
	return filepath.Join(s.dir, identity[:2], identity+".json")
}

func (s *FileStore) Get(ctx context.Context, identity string) (*Entry, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	return s.read(s.path(identity), identity)
}

func (s *FileStore) read(path, identity string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, carterrors.NewNotFound("cache entry", identity)
		}
		return nil, carterrors.NewCache(identity, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, carterrors.NewCache(identity, err)
	}
	if e.Identity != identity || !e.Status.Valid() {
		return nil, carterrors.NewCache(identity, fmt.Errorf("entry does not match its key"))
	}
	return &e, nil
}

func (s *FileStore) Put(ctx context.Context, e *Entry) error {
	if err := ValidateIdentity(e.Identity); err != nil {
		return err
	}
	if !e.Status.Valid() {
		return carterrors.NewInvalidRequest(fmt.Sprintf("invalid status %q", e.Status))
	}

	now := time.Now().Unix()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
		if prev, err := s.Get(ctx, e.Identity); err == nil && prev.CreatedAt != 0 {
			e.CreatedAt = prev.CreatedAt
		}
	}
	e.UpdatedAt = now

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return carterrors.NewInternal(err)
	}

	path := s.path(e.Identity)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return carterrors.NewCache(e.Identity, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*.tmp")
	if err != nil {
		return carterrors.NewCache(e.Identity, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return carterrors.NewCache(e.Identity, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return carterrors.NewCache(e.Identity, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return carterrors.NewCache(e.Identity, err)
	}
	return nil
}

func (s *FileStore) Complete(ctx context.Context, identity string) (bool, error) {
	e, err := s.Get(ctx, identity)
	if err != nil {
		if carterrors.Is(err, carterrors.ErrNotFound) || carterrors.Is(err, carterrors.ErrCache) {
			return false, nil
		}
		return false, err
	}
	return e.Trusted(), nil
}

func (s *FileStore) Delete(ctx context.Context, identity string) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	if err := os.Remove(s.path(identity)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return carterrors.NewNotFound("cache entry", identity)
		}
		return carterrors.NewCache(identity, err)
	}
	return nil
}

type fileRecord struct {
	path  string
	entry *Entry // nil when unreadable
	mtime int64
}

// walk visits every entry file. Unreadable entries are reported with a nil entry.
func (s *FileStore) walk(ctx context.Context) ([]fileRecord, error) {
	var out []fileRecord
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		identity := strings.TrimSuffix(d.Name(), ".json")
		rec := fileRecord{path: path}
		if info, err := d.Info(); err == nil {
			rec.mtime = info.ModTime().Unix()
		}
		if e, err := s.read(path, identity); err == nil {
			rec.entry = e
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, carterrors.NewInternal(err)
	}
	return out, nil
}

func (s *FileStore) List(ctx context.Context, f Filter) ([]Summary, int, error) {
	recs, err := s.walk(ctx)
	if err != nil {
		return nil, 0, err
	}

	var items []Summary
	for _, r := range recs {
		if r.entry == nil || !f.Match(r.entry.Status, r.entry.UpdatedAt) {
			continue
		}
		items = append(items, r.entry.ToSummary())
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].UpdatedAt != items[j].UpdatedAt {
			return items[i].UpdatedAt > items[j].UpdatedAt
		}
		return items[i].Identity < items[j].Identity
	})

	total := len(items)
	offset := min(max(f.Offset, 0), total)
	items = items[offset:]
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, total, nil
}

// Purge removes matching entries. Unreadable entries are judged by file
// modification time and are only removed when no status filter is given.
func (s *FileStore) Purge(ctx context.Context, f Filter) (int, error) {
	recs, err := s.walk(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, r := range recs {
		if r.entry == nil {
			if f.Status != "" || !f.Match("", r.mtime) {
				continue
			}
		} else if !f.Match(r.entry.Status, r.entry.UpdatedAt) {
			continue
		}
		if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return purged, carterrors.NewInternal(err)
		}
		purged++
	}
	return purged, nil
}
