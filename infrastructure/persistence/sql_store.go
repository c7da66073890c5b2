package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	metaLastIDKey = "last_id"
	insertBatch   = 100
)

// SQLBackend persists a collection in SQL tables. Every write replaces the
// whole table inside one transaction.
type SQLBackend struct {
	db     database.Database
	mapper DocumentMapper
}

// NewSQLBackend creates a SQLBackend. Tables must already be migrated.
func NewSQLBackend(db database.Database) SQLBackend {
	return SQLBackend{db: db}
}

// NewSQLStore creates a document.Store persisted in db, migrating its tables.
func NewSQLStore(db database.Database, opts ...StoreOption) (*Collection, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate document tables: %w", err)
	}
	cfg := newStoreConfig(opts...)
	return NewCollection(NewSQLBackend(db), cfg.logger), nil
}

// Read loads all documents ordered by position.
func (b SQLBackend) Read(ctx context.Context) (Snapshot, bool, error) {
	var models []DocumentModel
	if err := b.db.Session(ctx).Order("position ASC").Find(&models).Error; err != nil {
		return Snapshot{}, false, fmt.Errorf("find documents: %w", err)
	}

	var meta MetaModel
	err := b.db.Session(ctx).Where("name = ?", metaLastIDKey).First(&meta).Error
	metaFound := true
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metaFound = false
	} else if err != nil {
		return Snapshot{}, false, fmt.Errorf("find metadata: %w", err)
	}

	if !metaFound && len(models) == 0 {
		return Snapshot{}, false, nil
	}

	docs := make([]document.Document, len(models))
	for i, m := range models {
		if m.Position != i {
			return Snapshot{}, true, fmt.Errorf("%w: document %d has position %d, expected %d", document.ErrStorageCorrupt, m.ID, m.Position, i)
		}
		docs[i] = b.mapper.ToDomain(m)
	}
	return Snapshot{Documents: docs, LastID: meta.Value}, true, nil
}

// Write replaces the stored collection.
func (b SQLBackend) Write(ctx context.Context, snap Snapshot) error {
	models := make([]DocumentModel, len(snap.Documents))
	for i, d := range snap.Documents {
		models[i] = b.mapper.ToModel(d, i)
	}

	return database.WithTransaction(ctx, b.db, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&DocumentModel{}).Error; err != nil {
			return fmt.Errorf("clear documents: %w", err)
		}
		if len(models) > 0 {
			if err := tx.CreateInBatches(models, insertBatch).Error; err != nil {
				return fmt.Errorf("insert documents: %w", err)
			}
		}
		meta := MetaModel{Name: metaLastIDKey, Value: snap.LastID}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&meta).Error
		if err != nil {
			return fmt.Errorf("save metadata: %w", err)
		}
		return nil
	})
}
