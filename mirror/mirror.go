// Package mirror keeps a local snapshot of SharePoint list items in a SQL
// database through GORM. Unchanged items are detected by a content hash so
// repeated syncs only write what actually changed.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/nlstn/go-sprest"
	"github.com/nlstn/go-sprest/internal/observability"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ItemRecord is the stored form of a list item.
type ItemRecord struct {
	ID       uint   `gorm:"primaryKey"`
	List     string `gorm:"column:list_title;size:255;not null;uniqueIndex:idx_mirror_list_item"`
	ItemID   int    `gorm:"column:item_id;not null;uniqueIndex:idx_mirror_list_item"`
	Title    string `gorm:"size:255"`
	ETag     string `gorm:"column:etag;size:64"`
	Hash     string `gorm:"size:16;not null"`
	Payload  string `gorm:"type:text;not null"`
	SyncedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name stable across struct renames.
func (ItemRecord) TableName() string {
	return "sharepoint_items"
}

// Item decodes the stored payload.
func (r ItemRecord) Item() (sprest.Item, error) {
	var item sprest.Item
	if err := json.Unmarshal([]byte(r.Payload), &item); err != nil {
		return nil, fmt.Errorf("mirror: decode item %d of %q: %w", r.ItemID, r.List, err)
	}
	return item, nil
}

// SyncStats reports what a Sync changed.
type SyncStats struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// Store is a mirror database.
type Store struct {
	db            *gorm.DB
	logger        *slog.Logger
	observability *observability.Config
	now           func() time.Time
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	logger  *slog.Logger
	obsOpts []observability.Option
	now     func() time.Time
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider traces every database statement.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *storeConfig) {
		c.obsOpts = append(c.obsOpts, observability.WithTracerProvider(tp), observability.WithDetailedDBTracing())
	}
}

// WithMeterProvider records statement durations.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *storeConfig) {
		c.obsOpts = append(c.obsOpts, observability.WithMeterProvider(mp))
	}
}

// WithClock overrides the time source for SyncedAt.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Open connects with dialector (sqlite.Open, postgres.Open, ...) and
// migrates the schema.
func Open(dialector gorm.Dialector, opts ...Option) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("mirror: open database: %w", err)
	}
	return New(db, opts...)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	cfg := storeConfig{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	obs := observability.NewConfig(cfg.obsOpts...)
	if err := obs.Initialize(); err != nil {
		return nil, fmt.Errorf("mirror: initialize observability: %w", err)
	}
	if err := observability.RegisterGORMCallbacks(db, obs); err != nil {
		return nil, fmt.Errorf("mirror: register tracing callbacks: %w", err)
	}
	if err := db.AutoMigrate(&ItemRecord{}); err != nil {
		return nil, fmt.Errorf("mirror: migrate schema: %w", err)
	}

	return &Store{db: db, logger: cfg.logger, observability: obs, now: cfg.now}, nil
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Hash returns the content hash used for change detection. encoding/json
// sorts map keys, so equal items hash equally regardless of property order.
func Hash(item sprest.Item) (string, []byte, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return "", nil, err
	}
	return strconv.FormatUint(xxhash.Sum64(payload), 16), payload, nil
}

// Sync upserts items of list keyed by their Id. Items without an Id are
// rejected and nothing is written.
func (s *Store) Sync(ctx context.Context, list string, items []sprest.Item) (SyncStats, error) {
	var stats SyncStats
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, item := range items {
			id := item.ID()
			if id == 0 {
				return fmt.Errorf("mirror: item %d of %q has no Id", i, list)
			}
			hash, payload, err := Hash(item)
			if err != nil {
				return fmt.Errorf("mirror: encode item %d of %q: %w", id, list, err)
			}

			var existing ItemRecord
			err = tx.Where("list_title = ? AND item_id = ?", list, id).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				rec := ItemRecord{
					List:     list,
					ItemID:   id,
					Title:    item.Title(),
					ETag:     item.ETag(),
					Hash:     hash,
					Payload:  string(payload),
					SyncedAt: now,
				}
				if err := tx.Create(&rec).Error; err != nil {
					return fmt.Errorf("mirror: insert item %d of %q: %w", id, list, err)
				}
				stats.Inserted++
			case err != nil:
				return fmt.Errorf("mirror: load item %d of %q: %w", id, list, err)
			case existing.Hash == hash:
				stats.Unchanged++
			default:
				err := tx.Model(&existing).Updates(map[string]any{
					"title":     item.Title(),
					"etag":      item.ETag(),
					"hash":      hash,
					"payload":   string(payload),
					"synced_at": now,
				}).Error
				if err != nil {
					return fmt.Errorf("mirror: update item %d of %q: %w", id, list, err)
				}
				stats.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return SyncStats{}, err
	}

	s.logger.Debug("Mirror sync completed",
		observability.LogFieldList, list,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged)
	return stats, nil
}

// Items returns the stored records of list ordered by item Id.
func (s *Store) Items(ctx context.Context, list string) ([]ItemRecord, error) {
	var recs []ItemRecord
	if err := s.db.WithContext(ctx).Where("list_title = ?", list).Order("item_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("mirror: list items of %q: %w", list, err)
	}
	return recs, nil
}

// Count returns the number of stored items of list.
func (s *Store) Count(ctx context.Context, list string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&ItemRecord{}).Where("list_title = ?", list).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("mirror: count items of %q: %w", list, err)
	}
	return n, nil
}

// Prune deletes stored items of list whose Id is not in keep and returns
// how many were removed. An empty keep removes every item of list.
func (s *Store) Prune(ctx context.Context, list string, keep []int) (int64, error) {
	q := s.db.WithContext(ctx).Where("list_title = ?", list)
	if len(keep) > 0 {
		q = q.Where("item_id NOT IN ?", keep)
	}
	res := q.Delete(&ItemRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("mirror: prune %q: %w", list, res.Error)
	}
	return res.RowsAffected, nil
}

// Mirror fetches every item of list matching query through c, syncs them and
// prunes local items that no longer exist remotely.
func (s *Store) Mirror(ctx context.Context, c *sprest.Client, list, query string) (SyncStats, int64, error) {
	items, err := c.FetchAllListItems(ctx, list, query)
	if err != nil {
		return SyncStats{}, 0, err
	}
	stats, err := s.Sync(ctx, list, items)
	if err != nil {
		return SyncStats{}, 0, err
	}
	keep := make([]int, 0, len(items))
	for _, item := range items {
		keep = append(keep, item.ID())
	}
	pruned, err := s.Prune(ctx, list, keep)
	if err != nil {
		return stats, 0, err
	}
	return stats, pruned, nil
}
