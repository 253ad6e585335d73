package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// withTx runs fn inside a transaction, committing when fn succeeds.
func withTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// internalOr passes typed errors through and wraps anything else as internal.
func internalOr(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

type changeLogWriter interface {
	Record(ctx context.Context, exec sqlx.ExtContext, entry *models.ChangeLogEntry) error
}

// Change log field names shared by several entities.
const (
	fieldCreated = "created"
	fieldDeleted = "deleted"
	fieldStatus  = "status"
)

// fieldChange is one column whose stored value differs from the incoming one.
type fieldChange struct {
	field    string
	oldValue *string
	newValue *string
}

// changeSet accumulates differing fields in declaration order.
type changeSet []fieldChange

func (c *changeSet) compare(field string, oldValue, newValue *string) {
	if equalText(oldValue, newValue) {
		return
	}
	*c = append(*c, fieldChange{field: field, oldValue: oldValue, newValue: newValue})
}

// record writes one entry per change, all sharing actor, entity and reason.
func (c changeSet) record(ctx context.Context, w changeLogWriter, exec sqlx.ExtContext, actor, entity, entityID, reason string, at time.Time) error {
	for _, change := range c {
		entry := newChangeEntry(actor, entity, entityID, change.field, reason, at)
		entry.OldValue = change.oldValue
		entry.NewValue = change.newValue
		if err := w.Record(ctx, exec, entry); err != nil {
			return err
		}
	}
	return nil
}

func newChangeEntry(actor, entity, entityID, field, reason string, at time.Time) *models.ChangeLogEntry {
	return &models.ChangeLogEntry{
		TS:       at,
		Actor:    textPtr(actor),
		Entity:   entity,
		EntityID: textPtr(entityID),
		Field:    textPtr(field),
		Reason:   textPtr(reason),
	}
}

func equalText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// textPtr returns nil for the empty string.
func textPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func intText(v *int) *string {
	if v == nil {
		return nil
	}
	s := strconv.Itoa(*v)
	return &s
}

func floatText(v *float64) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	return &s
}

func dateText(v *time.Time) *string {
	if v == nil {
		return nil
	}
	s := v.UTC().Format("2006-01-02")
	return &s
}
