// Package models defines GORM database models for persisted streams and
// recording history.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// ULID is a sortable row identifier stored as its 26 character text form.
type ULID struct {
	ulid.ULID
}

// NewULID returns a ULID for the current millisecond, monotonic within it.
func NewULID() ULID {
	return ULID{ulid.Make()}
}

// ParseULID parses the text form of a ULID.
func ParseULID(s string) (ULID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ULID{}, fmt.Errorf("invalid ULID %q: %w", s, err)
	}
	return ULID{id}, nil
}

// Value stores the text form. The zero ULID is stored as NULL.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan reads the text form back. Drivers hand text columns over as either
// string or []byte.
func (u *ULID) Scan(value any) error {
	var text string
	switch v := value.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("scanning ULID from %T", value)
	}
	if text == "" {
		*u = ULID{}
		return nil
	}
	parsed, err := ParseULID(text)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (ULID) GormDataType() string {
	return "varchar(26)"
}

// BaseModel is embedded by every table. Rows are hard-deleted.
type BaseModel struct {
	ID        ULID      `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID to rows inserted without one.
func (b *BaseModel) BeforeCreate(*gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewULID()
	}
	return nil
}
