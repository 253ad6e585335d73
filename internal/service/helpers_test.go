package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return fixedNow })
}

type txMock struct {
	db    *sqlx.DB
	begun int
}

func newTxMock(t *testing.T) (*txMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	t.begun++
	return t.db.BeginTxx(ctx, opts)
}

type changeLogFake struct {
	entries []models.ChangeLogEntry
	err     error
}

func (f *changeLogFake) Record(ctx context.Context, exec sqlx.ExtContext, entry *models.ChangeLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *changeLogFake) fields(entity string) []string {
	var out []string
	for _, e := range f.entries {
		if e.Entity == entity && e.Field != nil {
			out = append(out, *e.Field)
		}
	}
	return out
}

func strptr(v string) *string { return &v }

func intptr(v int) *int { return &v }

func floatptr(v float64) *float64 { return &v }

type studentLookupFake struct {
	active map[string]bool
}

func newStudentLookup(ids ...string) *studentLookupFake {
	f := &studentLookupFake{active: map[string]bool{}}
	for _, id := range ids {
		f.active[id] = true
	}
	return f
}

func (f *studentLookupFake) Get(ctx context.Context, id string) (*models.Student, error) {
	if !f.active[id] {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &models.Student{ID: id, Active: true}, nil
}

type courseFinderFake struct {
	ids map[string]bool
}

func (f courseFinderFake) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if !f.ids[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Course{ID: id, CourseID: id}, nil
}
