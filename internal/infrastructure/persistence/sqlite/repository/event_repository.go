package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hookfeed/internal/domain/event"
	"hookfeed/internal/errs"
	"hookfeed/internal/infrastructure/persistence/sqlite/model"
	"hookfeed/internal/ports"
)

type EventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ ports.EventStore     = (*EventRepository)(nil)
	_ ports.SchemaMigrator = (*EventRepository)(nil)
)

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

func (r *EventRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *EventRepository) Migrate(ctx context.Context) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(ports.StoreFailure(err), "auto migrate webhook events")
	}
	return nil
}

func (r *EventRepository) Insert(ctx context.Context, ev event.CanonicalEvent) (ports.StoredEvent, error) {
	if err := event.Validate(ev); err != nil {
		return ports.StoredEvent{}, err
	}
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.StoredEvent{}, err
	}

	row := toRow(ev, r.now())
	if err := db.Create(&row).Error; err != nil {
		return ports.StoredEvent{}, errs.Wrap(ports.StoreFailure(err), "insert webhook event")
	}
	return toStored(row), nil
}

func (r *EventRepository) InsertUnique(ctx context.Context, ev event.CanonicalEvent) (ports.StoredEvent, bool, error) {
	if err := event.Validate(ev); err != nil {
		return ports.StoredEvent{}, false, err
	}

	if ports.TxFromContext(ctx) != nil {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return ports.StoredEvent{}, false, err
		}

		key := model.WebhookRequestKey{
			RequestID: ev.RequestID,
			ClaimedAt: r.now().UTC().Format(time.RFC3339Nano),
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoNothing: true,
		}).Create(&key)
		if result.Error != nil {
			return ports.StoredEvent{}, false, errs.Wrap(ports.StoreFailure(result.Error), "claim request id")
		}
		if result.RowsAffected == 0 {
			return ports.StoredEvent{}, false, nil
		}

		stored, err := r.Insert(ctx, ev)
		if err != nil {
			return ports.StoredEvent{}, false, err
		}
		return stored, true, nil
	}

	var (
		stored   ports.StoredEvent
		inserted bool
	)
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stored, inserted, err = r.InsertUnique(ports.WithTxContext(ctx, tx), ev)
		return err
	}); err != nil {
		return ports.StoredEvent{}, false, errs.Wrap(ports.StoreFailure(err), "insert unique webhook event")
	}
	return stored, inserted, nil
}

func (r *EventRepository) QueryRecent(ctx context.Context, limit int) ([]ports.StoredEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.WebhookEvent
	if err := db.
		Order("occurred_at desc").
		Order("event_id desc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(ports.StoreFailure(err), "query recent webhook events")
	}

	items := make([]ports.StoredEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, toStored(row))
	}
	return items, nil
}

func (r *EventRepository) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errs.Wrap(ports.StoreFailure(err), "ping database")
	}
	return nil
}

func toRow(ev event.CanonicalEvent, ingestedAt time.Time) model.WebhookEvent {
	row := model.WebhookEvent{
		RequestID:  ev.RequestID,
		Author:     ev.Author,
		Action:     string(ev.Action),
		ToBranch:   ev.ToBranch,
		OccurredAt: ev.Timestamp.UTC().UnixNano(),
		IngestedAt: ingestedAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.FromBranch != "" {
		from := ev.FromBranch
		row.FromBranch = &from
	}
	return row
}

func toStored(row model.WebhookEvent) ports.StoredEvent {
	ev := event.CanonicalEvent{
		RequestID: row.RequestID,
		Author:    row.Author,
		Action:    event.Action(row.Action),
		ToBranch:  row.ToBranch,
		Timestamp: time.Unix(0, row.OccurredAt).UTC(),
	}
	if row.FromBranch != nil {
		ev.FromBranch = *row.FromBranch
	}
	return ports.StoredEvent{
		ID:    strconv.FormatUint(row.EventID, 10),
		Event: ev,
	}
}
