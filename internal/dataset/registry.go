package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("dataset not found")
	ErrFileTooLarge = errors.New("dataset: file too large")
)

// Cache stores serialized schema summaries and previews. Nil-safe: the
// registry works without one.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// Registry owns uploaded dataset files, their metadata rows, and an
// in-memory cache of parsed frames.
type Registry struct {
	db        *gorm.DB
	cache     Cache
	uploadDir string
	maxSize   int64
	allowed   []string

	mu     sync.Mutex
	frames map[string]*Frame
}

func NewRegistry(gdb *gorm.DB, cache Cache, uploadDir string, maxSize int64, allowed []string) (*Registry, error) {
	if err := gdb.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, err
	}
	return &Registry{
		db:        gdb,
		cache:     cache,
		uploadDir: uploadDir,
		maxSize:   maxSize,
		allowed:   allowed,
		frames:    make(map[string]*Frame),
	}, nil
}

func (r *Registry) extAllowed(ext string) bool {
	for _, a := range r.allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// Save stores an uploaded file, parses it to validate and count rows, and
// persists the metadata record. Returns the record.
func (r *Registry) Save(ctx context.Context, originalName string, content []byte) (*Record, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !r.extAllowed(ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if r.maxSize > 0 && int64(len(content)) > r.maxSize {
		return nil, ErrFileTooLarge
	}

	fileID := uuid.NewString()
	stored := filepath.Join(r.uploadDir, fmt.Sprintf("%s_%s%s", fileID, time.Now().Format("20060102_150405"), ext))
	if err := os.WriteFile(stored, content, 0o644); err != nil {
		return nil, err
	}

	frame, err := ParseFile(stored)
	if err != nil {
		_ = os.Remove(stored)
		return nil, err
	}

	rec := &Record{
		FileID:           fileID,
		OriginalFilename: originalName,
		StoredPath:       stored,
		FileType:         strings.TrimPrefix(ext, "."),
		FileSize:         int64(len(content)),
		RowCount:         frame.RowCount(),
		ColumnCount:      frame.ColumnCount(),
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		_ = os.Remove(stored)
		return nil, err
	}

	r.mu.Lock()
	r.frames[fileID] = frame
	r.mu.Unlock()
	return rec, nil
}

func (r *Registry) record(ctx context.Context, fileID string) (*Record, error) {
	var rec Record
	if err := r.db.WithContext(ctx).Where("file_id = ?", fileID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Load returns the parsed frame for a dataset, parsing and memoizing it
// on first access.
func (r *Registry) Load(ctx context.Context, fileID string) (*Frame, error) {
	r.mu.Lock()
	if f, ok := r.frames[fileID]; ok {
		r.mu.Unlock()
		return f, nil
	}
	r.mu.Unlock()

	rec, err := r.record(ctx, fileID)
	if err != nil {
		return nil, err
	}
	frame, err := ParseFile(rec.StoredPath)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.frames[fileID] = frame
	r.mu.Unlock()
	return frame, nil
}

// SchemaSummary returns per-column metadata, served from the cache when
// a fresh entry exists.
func (r *Registry) SchemaSummary(ctx context.Context, fileID string) (*SchemaInfo, error) {
	key := "schema:" + fileID
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil && raw != "" {
			var cached SchemaInfo
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return &cached, nil
			}
		}
	}

	rec, err := r.record(ctx, fileID)
	if err != nil {
		return nil, err
	}
	frame, err := r.Load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	info := Summarize(frame, rec.FileType)

	if r.cache != nil {
		if raw, err := json.Marshal(info); err == nil {
			_ = r.cache.Set(ctx, key, string(raw))
		}
	}
	return &info, nil
}

// Preview returns a paginated slice of rows, cached per page. Existence
// is checked against the DB first so a deleted dataset misses even while
// stale page entries age out under the cache TTL; file ids are never
// reused, so a stale entry cannot be served for another dataset.
func (r *Registry) Preview(ctx context.Context, fileID string, start, limit int) (*Preview, error) {
	if _, err := r.record(ctx, fileID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("preview:%s:%d:%d", fileID, start, limit)
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil && raw != "" {
			var cached Preview
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return &cached, nil
			}
		}
	}

	frame, err := r.Load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	p := PreviewFrame(frame, start, limit)

	if r.cache != nil {
		if raw, err := json.Marshal(p); err == nil {
			_ = r.cache.Set(ctx, key, string(raw))
		}
	}
	return &p, nil
}

// List returns all dataset records, newest first.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	var recs []Record
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Delete removes the stored file, the metadata row, and cached state.
func (r *Registry) Delete(ctx context.Context, fileID string) error {
	rec, err := r.record(ctx, fileID)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&Record{}, "file_id = ?", fileID).Error; err != nil {
		return err
	}
	_ = os.Remove(rec.StoredPath)

	r.mu.Lock()
	delete(r.frames, fileID)
	r.mu.Unlock()

	if r.cache != nil {
		_ = r.cache.Del(ctx, "schema:"+fileID)
	}
	return nil
}
