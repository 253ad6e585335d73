package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type planRepoFake struct {
	versions map[string]*models.PlanVersion
	items    map[string][]models.StudentPlanItem
}

func newPlanRepoFake() *planRepoFake {
	return &planRepoFake{versions: map[string]*models.PlanVersion{}, items: map[string][]models.StudentPlanItem{}}
}

func (f *planRepoFake) ListVersions(ctx context.Context, studentID string) ([]models.PlanVersion, error) {
	var out []models.PlanVersion
	for _, v := range f.versions {
		if v.StudentID == studentID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *planRepoFake) FindVersion(ctx context.Context, id string) (*models.PlanVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *v
	return &copied, nil
}

func (f *planRepoFake) FindOpen(ctx context.Context, exec sqlx.ExtContext, studentID string) (*models.PlanVersion, error) {
	for _, v := range f.versions {
		if v.StudentID == studentID && v.ValidUntil == nil {
			copied := *v
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *planRepoFake) CreateVersion(ctx context.Context, exec sqlx.ExtContext, version *models.PlanVersion) error {
	max := 0
	for _, v := range f.versions {
		if v.StudentID == version.StudentID && v.VersionNum > max {
			max = v.VersionNum
		}
	}
	version.VersionNum = max + 1
	version.ID = fmt.Sprintf("%s-v%d", version.StudentID, version.VersionNum)
	copied := *version
	f.versions[version.ID] = &copied
	return nil
}

func (f *planRepoFake) CloseVersion(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	v, ok := f.versions[id]
	if !ok || v.ValidUntil != nil {
		return sql.ErrNoRows
	}
	v.ValidUntil = &at
	return nil
}

func (f *planRepoFake) AddItem(ctx context.Context, exec sqlx.ExtContext, item *models.StudentPlanItem) error {
	item.ID = fmt.Sprintf("item-%d", len(f.items[item.PlanVersionID])+1)
	f.items[item.PlanVersionID] = append(f.items[item.PlanVersionID], *item)
	return nil
}

func (f *planRepoFake) FindItem(ctx context.Context, planID, itemID string) (*models.StudentPlanItem, error) {
	for _, item := range f.items[planID] {
		if item.ID == itemID {
			copied := item
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *planRepoFake) DeleteItem(ctx context.Context, exec sqlx.ExtContext, planID, itemID string) error {
	items := f.items[planID]
	for i, item := range items {
		if item.ID == itemID {
			f.items[planID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *planRepoFake) HasItem(ctx context.Context, planID, courseRef string) (bool, error) {
	for _, item := range f.items[planID] {
		if item.CourseRef == courseRef {
			return true, nil
		}
	}
	return false, nil
}

func (f *planRepoFake) ListItems(ctx context.Context, planID string) ([]models.PlanItemDetail, error) {
	var out []models.PlanItemDetail
	for _, item := range f.items[planID] {
		out = append(out, models.PlanItemDetail{StudentPlanItem: item, CourseID: item.CourseRef})
	}
	return out, nil
}

func newPlanFixture(t *testing.T) (*PlanService, *planRepoFake, *changeLogFake, sqlmock.Sqlmock) {
	tx, mock := newTxMock(t)
	repo := newPlanRepoFake()
	changes := &changeLogFake{}
	courses := courseFinderFake{ids: map[string]bool{"c1": true, "c2": true}}
	return NewPlanService(tx, repo, newStudentLookup("s1"), courses, changes, nil, fixedClock(), nil), repo, changes, mock
}

func TestPlanServiceCreateVersion(t *testing.T) {
	svc, _, changes, mock := newPlanFixture(t)
	ctx := context.Background()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	first, err := svc.CreateVersion(ctx, "coord", "s1", PlanVersionRequest{Comment: strptr("inicial")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.VersionNum)
	assert.Equal(t, fixedNow, first.ValidFrom)
	assert.Nil(t, first.ValidUntil)
	require.Len(t, changes.entries, 1)
	assert.Equal(t, "v1", *changes.entries[0].NewValue)

	_, err = svc.CreateVersion(ctx, "coord", "s1", PlanVersionRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.CreateVersion(ctx, "coord", "ghost", PlanVersionRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanServiceCloseAndSucceed(t *testing.T) {
	svc, repo, changes, mock := newPlanFixture(t)
	ctx := context.Background()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.CloseAndSucceed(ctx, "coord", "s1", PlanVersionRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	first, err := svc.CreateVersion(ctx, "coord", "s1", PlanVersionRequest{})
	require.NoError(t, err)
	second, err := svc.CloseAndSucceed(ctx, "coord", "s1", PlanVersionRequest{Comment: strptr("cambio de orientación")})
	require.NoError(t, err)
	assert.Equal(t, 2, second.VersionNum)

	closed := repo.versions[first.ID]
	require.NotNil(t, closed.ValidUntil)
	assert.Equal(t, fixedNow, *closed.ValidUntil)
	assert.Nil(t, repo.versions[second.ID].ValidUntil)
	assert.Equal(t, []string{fieldCreated, "valid_until", fieldCreated}, changes.fields(models.EntityPlanVersion))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanServiceAddItem(t *testing.T) {
	svc, _, changes, mock := newPlanFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	version, err := svc.CreateVersion(ctx, "coord", "s1", PlanVersionRequest{})
	require.NoError(t, err)

	item, err := svc.AddItem(ctx, "coord", version.ID, AddPlanItemRequest{CourseRef: "c1", Priority: intptr(1)})
	require.NoError(t, err)
	assert.Equal(t, models.PlanItemPlanned, item.State)
	assert.Equal(t, []string{fieldCreated}, changes.fields(models.EntityPlanItem))

	_, err = svc.AddItem(ctx, "coord", version.ID, AddPlanItemRequest{CourseRef: "c1", State: models.PlanItemBackup})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.AddItem(ctx, "coord", version.ID, AddPlanItemRequest{CourseRef: "nope"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.AddItem(ctx, "coord", version.ID, AddPlanItemRequest{CourseRef: "c2", State: "maybe"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	items, err := svc.ListItems(ctx, version.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = svc.CloseAndSucceed(ctx, "coord", "s1", PlanVersionRequest{})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "coord", version.ID, AddPlanItemRequest{CourseRef: "c2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.ListItems(ctx, "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanServiceRemoveItem(t *testing.T) {
	svc, repo, changes, mock := newPlanFixture(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	version, err := svc.CreateVersion(ctx, "coord", "s1", PlanVersionRequest{})
	require.NoError(t, err)
	first, err := svc.AddItem(ctx, "coord", version.ID, AddPlanItemRequest{CourseRef: "c1"})
	require.NoError(t, err)
	second, err := svc.AddItem(ctx, "coord", version.ID, AddPlanItemRequest{CourseRef: "c2", State: models.PlanItemBackup})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItem(ctx, "coord", version.ID, first.ID))
	require.Len(t, repo.items[version.ID], 1)
	assert.Equal(t, "c2", repo.items[version.ID][0].CourseRef)

	last := changes.entries[len(changes.entries)-1]
	assert.Equal(t, models.EntityPlanItem, last.Entity)
	assert.Equal(t, fieldDeleted, *last.Field)
	assert.Equal(t, "c1 (planned)", *last.OldValue)
	assert.Equal(t, "coord", *last.Actor)

	err = svc.RemoveItem(ctx, "coord", version.ID, first.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	err = svc.RemoveItem(ctx, "coord", "missing", second.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	closedAt := fixedNow
	repo.versions[version.ID].ValidUntil = &closedAt
	err = svc.RemoveItem(ctx, "coord", version.ID, second.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Len(t, repo.items[version.ID], 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
