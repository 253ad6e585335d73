package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type enrollmentRepoFake struct {
	rows map[string]models.Enrollment
	seq  int
}

func newEnrollmentRepoFake() *enrollmentRepoFake {
	return &enrollmentRepoFake{rows: map[string]models.Enrollment{}}
}

func (f *enrollmentRepoFake) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (f *enrollmentRepoFake) Exists(ctx context.Context, exec sqlx.ExtContext, studentID, courseRef string) (bool, error) {
	for _, e := range f.rows {
		if e.StudentID == studentID && e.CourseRef == courseRef {
			return true, nil
		}
	}
	return false, nil
}

func (f *enrollmentRepoFake) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	f.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", f.seq)
	f.rows[enrollment.ID] = *enrollment
	return nil
}

func (f *enrollmentRepoFake) Update(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	f.rows[enrollment.ID] = *enrollment
	return nil
}

func (f *enrollmentRepoFake) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, ok := f.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

func (f *enrollmentRepoFake) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.rows {
		if e.StudentID == studentID {
			out = append(out, models.EnrollmentDetail{Enrollment: e, CourseID: e.CourseRef})
		}
	}
	return out, nil
}

type planItemsFake map[string][]models.PlanItemDetail

func (f planItemsFake) ListItems(ctx context.Context, planID string) ([]models.PlanItemDetail, error) {
	return f[planID], nil
}

type currentPlanFake struct {
	plan *models.PlanVersion
}

func (f currentPlanFake) CurrentPlan(ctx context.Context, studentID string) (*models.PlanVersion, error) {
	return f.plan, nil
}

func planItem(courseRef string, state models.PlanItemState) models.PlanItemDetail {
	return models.PlanItemDetail{StudentPlanItem: models.StudentPlanItem{CourseRef: courseRef, State: state}, CourseID: courseRef}
}

type enrollmentFixture struct {
	svc     *EnrollmentService
	repo    *enrollmentRepoFake
	changes *changeLogFake
	mock    sqlmock.Sqlmock
	items   planItemsFake
	current *currentPlanFake
}

func newEnrollmentFixture(t *testing.T) *enrollmentFixture {
	tx, mock := newTxMock(t)
	f := &enrollmentFixture{
		repo:    newEnrollmentRepoFake(),
		changes: &changeLogFake{},
		mock:    mock,
		items:   planItemsFake{},
		current: &currentPlanFake{},
	}
	courses := courseFinderFake{ids: map[string]bool{"c1": true, "c2": true, "c3": true}}
	f.svc = NewEnrollmentService(tx, f.repo, newStudentLookup("s1"), courses, f.items, f.current, f.changes, nil, fixedClock(), nil)
	return f
}

func (f *enrollmentFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func TestEnrollmentServiceCreate(t *testing.T) {
	f := newEnrollmentFixture(t)
	ctx := context.Background()
	f.expectCommit()
	f.expectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	planned, err := f.svc.Create(ctx, "coord", "s1", CreateEnrollmentRequest{CourseRef: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPlanned, planned.Status)
	assert.Nil(t, planned.StatusChangedAt)
	assert.Equal(t, fixedNow, planned.RegisteredAt)

	done, err := f.svc.Create(ctx, "coord", "s1", CreateEnrollmentRequest{CourseRef: "c2", Status: models.EnrollmentCompleted, Grade: strptr("A")})
	require.NoError(t, err)
	require.NotNil(t, done.StatusChangedAt)
	assert.Equal(t, fixedNow, *done.StatusChangedAt)

	_, err = f.svc.Create(ctx, "coord", "s1", CreateEnrollmentRequest{CourseRef: "c1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	assert.Equal(t, []string{fieldCreated, fieldCreated}, f.changes.fields(models.EntityEnrollment))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceCreateRejectsUnknownRefs(t *testing.T) {
	f := newEnrollmentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "coord", "ghost", CreateEnrollmentRequest{CourseRef: "c1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Create(ctx, "coord", "s1", CreateEnrollmentRequest{CourseRef: "nope"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Create(ctx, "coord", "s1", CreateEnrollmentRequest{CourseRef: "c1", Status: "dropped"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceUpdate(t *testing.T) {
	f := newEnrollmentFixture(t)
	ctx := context.Background()
	f.repo.rows["e1"] = models.Enrollment{ID: "e1", StudentID: "s1", CourseRef: "c1", Status: models.EnrollmentRegistered, RegisteredAt: fixedNow}
	f.expectCommit()

	completed := models.EnrollmentCompleted
	updated, err := f.svc.Update(ctx, "coord", "e1", UpdateEnrollmentRequest{Status: &completed, GradeNumeric: floatptr(6.5)})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, updated.Status)
	require.NotNil(t, updated.StatusChangedAt)
	assert.Equal(t, fixedNow, *updated.StatusChangedAt)

	assert.Equal(t, []string{fieldStatus, "grade_numeric"}, f.changes.fields(models.EntityEnrollment))
	assert.Equal(t, "registered", *f.changes.entries[0].OldValue)
	assert.Equal(t, "completed", *f.changes.entries[0].NewValue)
	assert.Nil(t, f.changes.entries[1].OldValue)
	assert.Equal(t, "6.5", *f.changes.entries[1].NewValue)

	// same values again: nothing to write
	_, err = f.svc.Update(ctx, "coord", "e1", UpdateEnrollmentRequest{Status: &completed})
	require.NoError(t, err)
	assert.Len(t, f.changes.entries, 2)

	_, err = f.svc.Update(ctx, "coord", "missing", UpdateEnrollmentRequest{Status: &completed})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceDelete(t *testing.T) {
	f := newEnrollmentFixture(t)
	ctx := context.Background()
	f.repo.rows["e1"] = models.Enrollment{ID: "e1", StudentID: "s1", CourseRef: "c1", Status: models.EnrollmentWithdrawn}
	f.expectCommit()

	require.NoError(t, f.svc.Delete(ctx, "coord", "e1"))
	assert.Empty(t, f.repo.rows)
	require.Len(t, f.changes.entries, 1)
	assert.Equal(t, fieldDeleted, *f.changes.entries[0].Field)
	assert.Equal(t, "withdrawn", *f.changes.entries[0].OldValue)

	err := f.svc.Delete(ctx, "coord", "e1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceCreateFromCurrentPlan(t *testing.T) {
	f := newEnrollmentFixture(t)
	ctx := context.Background()
	f.current.plan = &models.PlanVersion{ID: "p1", StudentID: "s1", VersionNum: 2, ValidFrom: fixedNow}
	f.items["p1"] = []models.PlanItemDetail{
		planItem("c1", models.PlanItemPlanned),
		planItem("c2", models.PlanItemBackup),
		planItem("c3", models.PlanItemPlanned),
	}
	f.repo.rows["e0"] = models.Enrollment{ID: "e0", StudentID: "s1", CourseRef: "c3", Status: models.EnrollmentRegistered}
	f.expectCommit()

	created, err := f.svc.CreateFromCurrentPlan(ctx, "coord", "s1")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "c1", created[0].CourseRef)
	assert.Equal(t, models.EnrollmentPlanned, created[0].Status)
	require.Len(t, f.changes.entries, 1)
	assert.Equal(t, "created from plan v2", *f.changes.entries[0].Reason)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceCreateFromCurrentPlanWithoutPlan(t *testing.T) {
	f := newEnrollmentFixture(t)

	_, err := f.svc.CreateFromCurrentPlan(context.Background(), "coord", "s1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Empty(t, f.repo.rows)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceListByStudentNeverNil(t *testing.T) {
	f := newEnrollmentFixture(t)
	list, err := f.svc.ListByStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
