package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]models.Student
	lastFilter models.StudentFilter
	created    []models.Student
	deleted    []string
	err        error
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: map[string]models.Student{}}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *mockStudentRepo) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	for id, s := range m.students {
		if id != excludeID && s.Email == strings.ToLower(email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.ID = fmt.Sprintf("stu-%d", len(m.students)+1)
	m.students[student.ID] = *student
	m.created = append(m.created, *student)
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	s, ok := m.students[id]
	if !ok || !s.Active {
		return sql.ErrNoRows
	}
	s.Active = false
	s.DeletedAt = &at
	m.students[id] = s
	m.deleted = append(m.deleted, id)
	return nil
}

func newStudentFixture(t *testing.T) (*StudentService, *mockStudentRepo, *changeLogFake, sqlmock.Sqlmock) {
	tx, mock := newTxMock(t)
	repo := newMockStudentRepo()
	changes := &changeLogFake{}
	return NewStudentService(tx, repo, changes, nil, fixedClock(), nil), repo, changes, mock
}

func TestStudentServiceCreate(t *testing.T) {
	svc, repo, changes, mock := newStudentFixture(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	student, err := svc.Create(context.Background(), "admin", CreateStudentRequest{
		FirstName: "Ana",
		LastName:  "Pérez",
		Email:     " Ana@Example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", student.Email)
	assert.Equal(t, models.ProgramMBA, student.Program)
	assert.True(t, student.Active)
	assert.Len(t, repo.created, 1)
	assert.Equal(t, []string{fieldCreated}, changes.fields(models.EntityStudent))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceCreateValidation(t *testing.T) {
	svc, _, _, _ := newStudentFixture(t)

	_, err := svc.Create(context.Background(), "admin", CreateStudentRequest{FirstName: "Ana", LastName: "P", Email: "not-an-email"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), "admin", CreateStudentRequest{FirstName: "Ana", LastName: "P", Email: "a@b.co", Program: "PhD"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestStudentServiceCreateDuplicateEmail(t *testing.T) {
	svc, repo, _, _ := newStudentFixture(t)
	repo.students["s1"] = models.Student{ID: "s1", Email: "ana@example.com", Active: true}

	_, err := svc.Create(context.Background(), "admin", CreateStudentRequest{FirstName: "Ana", LastName: "P", Email: "ANA@example.com"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestStudentServiceUpdateLogsChangedFields(t *testing.T) {
	svc, repo, changes, mock := newStudentFixture(t)
	repo.students["s1"] = models.Student{ID: "s1", FirstName: "Ana", LastName: "Pérez", Email: "ana@example.com", Program: models.ProgramMBA, Active: true}
	mock.ExpectBegin()
	mock.ExpectCommit()

	updated, err := svc.Update(context.Background(), "coord", "s1", UpdateStudentRequest{
		FirstName: "Ana",
		LastName:  "Pérez",
		Email:     "ana@example.com",
		Program:   models.ProgramEMBA,
		Cohort:    strptr("2024"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProgramEMBA, updated.Program)
	assert.Equal(t, []string{"program", "cohort"}, changes.fields(models.EntityStudent))
	assert.Equal(t, "MBA", *changes.entries[0].OldValue)
	assert.Equal(t, "EMBA", *changes.entries[0].NewValue)
	assert.Nil(t, changes.entries[1].OldValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceUpdateWithoutChangesSkipsWrite(t *testing.T) {
	svc, repo, changes, mock := newStudentFixture(t)
	repo.students["s1"] = models.Student{ID: "s1", FirstName: "Ana", LastName: "Pérez", Email: "ana@example.com", Program: models.ProgramMBA, Active: true}

	_, err := svc.Update(context.Background(), "coord", "s1", UpdateStudentRequest{FirstName: "Ana", LastName: "Pérez", Email: "ana@example.com", Program: models.ProgramMBA})
	require.NoError(t, err)
	assert.Empty(t, changes.entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceSoftDelete(t *testing.T) {
	svc, repo, changes, mock := newStudentFixture(t)
	repo.students["s1"] = models.Student{ID: "s1", Email: "ana@example.com", Active: true}
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), "coord", "s1"))
	assert.False(t, repo.students["s1"].Active)
	require.Len(t, changes.entries, 1)
	entry := changes.entries[0]
	assert.Equal(t, fieldStatus, *entry.Field)
	assert.Equal(t, statusActive, *entry.OldValue)
	assert.Equal(t, statusDeleted, *entry.NewValue)
	assert.Equal(t, softDeleteReason, *entry.Reason)

	_, err := svc.Get(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	err = svc.Delete(context.Background(), "coord", "s1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceListDefaults(t *testing.T) {
	svc, repo, _, _ := newStudentFixture(t)
	repo.students["s1"] = models.Student{ID: "s1", Active: true}

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{Program: "MBA"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 50, pagination.PageSize)
	assert.Equal(t, "MBA", repo.lastFilter.Program)
}

func TestStudentServiceImportCSV(t *testing.T) {
	svc, repo, changes, mock := newStudentFixture(t)
	repo.students["s0"] = models.Student{ID: "s0", Email: "taken@example.com", Active: true}
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	csv := strings.Join([]string{
		"Nombre,Apellido,EMAIL,Programa",
		"Ana,Pérez,ana@example.com,",
		"Luis,Gómez,,EMBA",
		"Eva,Ríos,ANA@example.com,MBA",
		"Juan,Sosa,taken@example.com,MBA",
		",Solo,solo@example.com,MBA",
		"Marta,Díaz,marta@example.com,emba",
	}, "\n")

	summary := svc.Import(context.Background(), "admin", strings.NewReader(csv), "alumnos.csv")
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, []string{
		"row 1: email is required",
		"row 2: duplicate email ana@example.com in file",
		"row 3: email taken@example.com already registered",
		"row 4: name is required",
	}, summary.Errors)
	require.Len(t, repo.created, 2)
	assert.Equal(t, models.ProgramMBA, repo.created[0].Program)
	assert.Equal(t, models.ProgramEMBA, repo.created[1].Program)
	assert.Len(t, changes.entries, 2)
	assert.Equal(t, studentImportReason, *changes.entries[0].Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceImportMissingColumns(t *testing.T) {
	svc, repo, _, _ := newStudentFixture(t)

	summary := svc.Import(context.Background(), "admin", strings.NewReader("nombre,email\nAna,ana@example.com"), "alumnos.csv")
	assert.Zero(t, summary.Created)
	assert.Equal(t, []string{"missing required columns: [apellido]"}, summary.Errors)
	assert.Empty(t, repo.created)
}
