package providers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	_ "modernc.org/sqlite"

	"github.com/tsukumogami/cport/internal/log"
	"github.com/tsukumogami/cport/internal/semver"
)

// CachedProvider decorates any Registry with an on-disk SQLite TTL cache and
// singleflight-deduped in-flight requests, satisfying the C3 contract that
// providers "must be safe to call many times per resolution" without each
// caller re-paying the underlying query cost. This generalizes the teacher's
// JSON-file-per-entry CachedRegistry into a single indexed store.
type CachedProvider struct {
	inner  Registry
	db     *sql.DB
	ttl    time.Duration
	logger log.Logger
	group  singleflight.Group
}

// OpenCache opens (creating if needed) a SQLite database at path and
// prepares its schema for use as a CachedProvider backing store.
func OpenCache(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening registry cache %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS baseline_cache (
	source       TEXT NOT NULL,
	port         TEXT NOT NULL,
	scheme       INTEGER NOT NULL,
	text         TEXT NOT NULL,
	port_version INTEGER NOT NULL,
	cached_at    INTEGER NOT NULL,
	PRIMARY KEY (source, port)
);
CREATE TABLE IF NOT EXISTS scf_cache (
	source     TEXT NOT NULL,
	port       TEXT NOT NULL,
	version    TEXT NOT NULL,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	PRIMARY KEY (source, port, version)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing registry cache schema: %w", err)
	}
	return db, nil
}

// NewCachedProvider wraps inner with a TTL cache backed by db. sourceName
// namespaces rows so multiple registries can share one database file.
func NewCachedProvider(inner Registry, db *sql.DB, sourceName string, ttl time.Duration, logger log.Logger) *CachedProvider {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &CachedProvider{inner: inner, db: db, ttl: ttl, logger: logger.With("cache_source", sourceName)}
}

func (c *CachedProvider) fresh(cachedAt int64) bool {
	return time.Since(time.Unix(cachedAt, 0)) < c.ttl
}

// GetBaselineVersion implements IBaselineProvider, consulting the cache
// before falling through to inner.
func (c *CachedProvider) GetBaselineVersion(ctx context.Context, name string) (semver.Version, error) {
	v, err, _ := c.group.Do("baseline:"+name, func() (interface{}, error) {
		return c.getBaselineVersion(ctx, name)
	})
	if err != nil {
		return semver.Version{}, err
	}
	return v.(semver.Version), nil
}

func (c *CachedProvider) getBaselineVersion(ctx context.Context, name string) (semver.Version, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT scheme, text, port_version, cached_at FROM baseline_cache WHERE port = ?`, name)
	var scheme semver.Scheme
	var text string
	var portVersion int
	var cachedAt int64
	switch err := row.Scan(&scheme, &text, &portVersion, &cachedAt); err {
	case nil:
		if c.fresh(cachedAt) {
			c.logger.Debug("baseline cache hit", "port", name)
			return semver.ParseWithPortVersion(text, scheme, portVersion)
		}
		c.logger.Debug("baseline cache stale, refreshing", "port", name)
	case sql.ErrNoRows:
		c.logger.Debug("baseline cache miss", "port", name)
	default:
		return semver.Version{}, fmt.Errorf("reading baseline cache for %s: %w", name, err)
	}

	v, err := c.inner.GetBaselineVersion(ctx, name)
	if err != nil {
		return semver.Version{}, err
	}
	if _, execErr := c.db.ExecContext(ctx,
		`INSERT INTO baseline_cache (source, port, scheme, text, port_version, cached_at)
		 VALUES ('default', ?, ?, ?, ?, ?)
		 ON CONFLICT (source, port) DO UPDATE SET scheme=excluded.scheme, text=excluded.text,
		   port_version=excluded.port_version, cached_at=excluded.cached_at`,
		name, v.Scheme, v.Text, v.PortVersion, time.Now().Unix()); execErr != nil {
		c.logger.Warn("failed to write baseline cache entry", "port", name, "error", execErr)
	}
	return v, nil
}

// GetControlFile implements IVersionedPortfileProvider, consulting the
// cache before falling through to inner.
func (c *CachedProvider) GetControlFile(ctx context.Context, name string, version semver.Version) (*SourceControlFile, error) {
	key := fmt.Sprintf("scf:%s@%s", name, version.String())
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.getControlFile(ctx, name, version)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SourceControlFile), nil
}

func (c *CachedProvider) getControlFile(ctx context.Context, name string, version semver.Version) (*SourceControlFile, error) {
	versionKey := version.String()
	row := c.db.QueryRowContext(ctx,
		`SELECT data, cached_at FROM scf_cache WHERE port = ? AND version = ?`, name, versionKey)
	var data []byte
	var cachedAt int64
	switch err := row.Scan(&data, &cachedAt); err {
	case nil:
		if c.fresh(cachedAt) {
			var scf SourceControlFile
			if err := json.Unmarshal(data, &scf); err == nil {
				c.logger.Debug("control file cache hit", "port", name, "version", versionKey)
				return &scf, nil
			}
			c.logger.Warn("corrupt control file cache entry, refreshing", "port", name, "version", versionKey)
		} else {
			c.logger.Debug("control file cache stale, refreshing", "port", name, "version", versionKey)
		}
	case sql.ErrNoRows:
		c.logger.Debug("control file cache miss", "port", name, "version", versionKey)
	default:
		return nil, fmt.Errorf("reading control-file cache for %s@%s: %w", name, versionKey, err)
	}

	scf, err := c.inner.GetControlFile(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if data, marshalErr := json.Marshal(scf); marshalErr == nil {
		if _, execErr := c.db.ExecContext(ctx,
			`INSERT INTO scf_cache (source, port, version, data, cached_at)
			 VALUES ('default', ?, ?, ?, ?)
			 ON CONFLICT (source, port, version) DO UPDATE SET data=excluded.data, cached_at=excluded.cached_at`,
			name, versionKey, data, time.Now().Unix()); execErr != nil {
			c.logger.Warn("failed to write control-file cache entry", "port", name, "version", versionKey, "error", execErr)
		}
	}
	return scf, nil
}
