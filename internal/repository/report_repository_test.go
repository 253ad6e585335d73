package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

func TestReportRepositoryLocalStore(t *testing.T) {
	repo := NewReportRepository(nil, time.Hour, nil)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.nowFn = func() time.Time { return clock }

	report := &models.ImportReport{
		ID:      "run-1",
		Kind:    "schedule",
		Status:  models.ImportFinished,
		Summary: &models.ImportSummary{CreatedCourses: 2, Errors: []string{}},
	}
	require.NoError(t, repo.Save(context.Background(), report))

	got, err := repo.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Summary.CreatedCourses)

	clock = clock.Add(2 * time.Hour)
	_, err = repo.Get(context.Background(), "run-1")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestReportRepositoryUnknownID(t *testing.T) {
	repo := NewReportRepository(nil, 0, nil)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Close())
}
