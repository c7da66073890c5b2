// Package persistence provides document storage implementations backed by
// JSON files or a SQL database.
package persistence

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/internal/database"
)

// AutoMigrate creates or updates the tables used by the SQL document store.
func AutoMigrate(db database.Database) error {
	return db.Session(context.Background()).AutoMigrate(
		&DocumentModel{},
		&MetaModel{},
	)
}

// DocumentModel is one row of the docsearch_documents table. Position keeps
// the collection order that the vector index mirrors.
type DocumentModel struct {
	ID        int64        `gorm:"column:id;primaryKey;autoIncrement:false"`
	Position  int          `gorm:"column:position;not null;index"`
	Title     string       `gorm:"column:title;not null"`
	Content   string       `gorm:"column:content;not null"`
	Category  string       `gorm:"column:category"`
	Embedding Float64Slice `gorm:"column:embedding;type:text"`
	Extra     JSONMap      `gorm:"column:extra;type:text"`
}

// TableName returns the table name.
func (DocumentModel) TableName() string { return "docsearch_documents" }

// MetaModel is a name/value row of the docsearch_meta table.
type MetaModel struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null"`
}

// TableName returns the table name.
func (MetaModel) TableName() string { return "docsearch_meta" }

// Float64Slice stores []float64 as JSON text.
type Float64Slice []float64

// Scan implements sql.Scanner. Undecodable column text is ErrStorageCorrupt.
func (f *Float64Slice) Scan(value any) error {
	data, err := textBytes(value)
	if err != nil || data == nil {
		*f = nil
		return corruptColumn("embedding", err)
	}
	return corruptColumn("embedding", json.Unmarshal(data, f))
}

// Value implements driver.Valuer.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float64(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONMap stores map[string]any as JSON text.
type JSONMap map[string]any

// Scan implements sql.Scanner. Undecodable column text is ErrStorageCorrupt.
func (m *JSONMap) Scan(value any) error {
	data, err := textBytes(value)
	if err != nil || data == nil {
		*m = nil
		return corruptColumn("extra", err)
	}
	return corruptColumn("extra", json.Unmarshal(data, m))
}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func corruptColumn(column string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: decode %s column: %v", document.ErrStorageCorrupt, column, err)
}

func textBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot scan %T into JSON column", value)
	}
}
