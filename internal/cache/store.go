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

	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
)

// Cache lookup outcomes used as metric labels.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"
	ResultCorrupt = "corrupt"
)

const (
	listingPrefix = "announcement_list_page_"
	detailPrefix  = "announcement_detail_"
	otherPrefix   = "other_"
	fileSuffix    = ".json"

	// RootNamespace labels entries that live directly under the cache root.
	RootNamespace = crawler.RootNamespace
)

// Config controls where the filesystem cache lives and how long entries stay
// valid.
type Config struct {
	// Dir is the cache root.
	Dir string
	// Namespace scopes listing and detail entries, normally the issuer code.
	Namespace string
	// ExpireDays is the entry lifetime in whole days.
	ExpireDays int
}

// Store is a crawler.ResponseCache backed by one JSON file per signature.
type Store struct {
	root       string
	namespace  string
	nsDir      string
	expireDays int
	expiry     time.Duration
	clock      crawler.Clock
	logger     *zap.Logger
}

var _ crawler.ResponseCache = (*Store)(nil)

// New prepares the cache directories and returns a Store.
func New(cfg Config, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if cfg.ExpireDays <= 0 {
		return nil, fmt.Errorf("cache expire days must be positive, got %d", cfg.ExpireDays)
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	namespace := crawler.SafeComponent(cfg.Namespace, "unknown")
	s := &Store{
		root:       cfg.Dir,
		namespace:  namespace,
		nsDir:      filepath.Join(cfg.Dir, namespace),
		expireDays: cfg.ExpireDays,
		expiry:     time.Duration(cfg.ExpireDays) * 24 * time.Hour,
		clock:      clock,
		logger:     logger.Named("cache"),
	}
	if err := os.MkdirAll(s.nsDir, 0o755); err != nil {
		return nil, &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "create cache dir", Path: s.nsDir, Err: err}
	}
	return s, nil
}

// Path returns the file that holds the entry for sig.
func (s *Store) Path(sig crawler.Signature) string {
	key := crawler.SafeComponent(sig.Key, "unknown")
	switch sig.Kind {
	case crawler.KindListing:
		return filepath.Join(s.nsDir, listingPrefix+key+fileSuffix)
	case crawler.KindDetail:
		return filepath.Join(s.nsDir, detailPrefix+key+fileSuffix)
	default:
		return filepath.Join(s.root, otherPrefix+key+fileSuffix)
	}
}

// Lookup returns the cached payload for sig. Missing, unparsable and expired
// entries are all misses; expired entries are removed on the way out.
func (s *Store) Lookup(_ context.Context, sig crawler.Signature) (json.RawMessage, bool) {
	kind := string(sig.Kind)
	path := s.Path(sig)

	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cache stat failed", zap.String("path", path), zap.Error(err))
		}
		metrics.ObserveCacheLookup(kind, ResultMiss)
		return nil, false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("path", path), zap.Error(err))
		metrics.ObserveCacheLookup(kind, ResultMiss)
		return nil, false
	}

	entry, decodeErr := decodeEntry(raw)
	created := info.ModTime()
	if decodeErr == nil {
		created = entry.capturedAt(created)
	}

	if s.expired(created) {
		s.remove(path)
		metrics.ObserveCacheLookup(kind, ResultExpired)
		s.logger.Debug("cache entry expired",
			zap.String("signature", sig.String()),
			zap.Time("cached_at", created),
		)
		return nil, false
	}

	if decodeErr != nil {
		s.logger.Warn("cache entry unreadable", zap.String("path", path), zap.Error(decodeErr))
		metrics.ObserveCacheLookup(kind, ResultCorrupt)
		return nil, false
	}

	metrics.ObserveCacheLookup(kind, ResultHit)
	s.logger.Debug("cache hit", zap.String("signature", sig.String()))
	return entry.payload(), true
}

// Store writes payload for sig. Failures are logged and otherwise ignored.
func (s *Store) Store(_ context.Context, sig crawler.Signature, payload json.RawMessage, sourceURL string) {
	path := s.Path(sig)
	entry := fileEntry{
		Metadata: crawler.CacheMetadata{
			CacheTime:   s.clock.Now().Format(time.RFC3339Nano),
			OriginalURL: sourceURL,
			CacheFile:   path,
			ExpireDays:  s.expireDays,
			Signature:   sig.String(),
			Format:      crawler.CacheFormatEnveloped,
		},
		Data: payload,
	}

	err := s.write(path, entry)
	metrics.ObserveCacheWrite(string(sig.Kind), err)
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("cache stored", zap.String("signature", sig.String()), zap.String("path", path))
}

func (s *Store) write(path string, entry fileEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Sweep deletes every expired entry in the namespace directory and the cache
// root. Unreadable entries are judged by file modification time.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed := 0
	var errs []error
	err := s.walk(ctx, func(path string, info fs.FileInfo, entry loadedEntry) {
		created := info.ModTime()
		if entry != nil {
			created = entry.capturedAt(created)
		}
		if !s.expired(created) {
			return
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "remove cache entry", Path: path, Err: err})
			return
		}
		removed++
		s.logger.Debug("swept cache entry", zap.String("path", path))
	})
	if err != nil {
		errs = append(errs, err)
	}
	metrics.ObserveCacheSwept(removed)
	s.logger.Info("cache sweep finished", zap.Int("removed", removed), zap.String("namespace", s.namespace))
	return removed, errors.Join(errs...)
}

// List describes every readable entry in the namespace directory and the
// cache root, sorted by location.
func (s *Store) List(ctx context.Context) ([]crawler.CacheEntryInfo, error) {
	var out []crawler.CacheEntryInfo
	err := s.walk(ctx, func(path string, info fs.FileInfo, entry loadedEntry) {
		if entry == nil {
			return
		}
		created := entry.capturedAt(info.ModTime())
		ns := s.namespace
		if filepath.Dir(path) == filepath.Clean(s.root) {
			ns = RootNamespace
		}
		out = append(out, crawler.CacheEntryInfo{
			Namespace: ns,
			Name:      strings.TrimSuffix(filepath.Base(path), fileSuffix),
			Location:  path,
			CachedAt:  created,
			Expired:   s.expired(created),
			Metadata:  entry.metadata(path, info.ModTime()),
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, err
}

// walk visits the JSON files of the namespace directory and the cache root.
// entry is nil when the file could not be decoded.
func (s *Store) walk(ctx context.Context, visit func(path string, info fs.FileInfo, entry loadedEntry)) error {
	for _, dir := range []string{s.nsDir, s.root} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "read cache dir", Path: dir, Err: err}
		}
		for _, de := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) {
				continue
			}
			path := filepath.Join(dir, de.Name())
			info, err := de.Info()
			if err != nil {
				continue
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				s.logger.Warn("cache read failed", zap.String("path", path), zap.Error(err))
				continue
			}
			entry, err := decodeEntry(raw)
			if err != nil {
				s.logger.Debug("cache entry unreadable", zap.String("path", path), zap.Error(err))
			}
			visit(path, info, entry)
		}
	}
	return nil
}

// expired reports whether an entry created at created has reached its
// lifetime.
func (s *Store) expired(created time.Time) bool {
	return !s.clock.Now().Before(created.Add(s.expiry))
}

func (s *Store) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("cache delete failed", zap.String("path", path), zap.Error(err))
		return
	}
	metrics.ObserveCacheSwept(1)
}
