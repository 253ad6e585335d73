package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/pkg/config"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type planListerFake struct {
	versions map[string][]models.PlanVersion
}

func (f *planListerFake) ListVersions(ctx context.Context, studentID string) ([]models.PlanVersion, error) {
	return f.versions[studentID], nil
}

type progressReaderFake struct {
	completed  map[string][]models.OrientationCount
	planned    map[string][]models.OrientationCount
	duplicates []models.CountByKey
	outside    []string
	demand     []models.CourseDemand
	moduleRows []models.ModuleDemandRow
	lastType   string
	err        error
}

func (f *progressReaderFake) CompletedElectivesByOrientation(ctx context.Context, studentID, electiveType string) ([]models.OrientationCount, error) {
	f.lastType = electiveType
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.OrientationCount(nil), f.completed[studentID]...), nil
}

func (f *progressReaderFake) PlannedElectivesByOrientation(ctx context.Context, studentID, planID, electiveType string) ([]models.OrientationCount, error) {
	return f.planned[planID], nil
}

func (f *progressReaderFake) DuplicateEnrollments(ctx context.Context, studentID string) ([]models.CountByKey, error) {
	return f.duplicates, nil
}

func (f *progressReaderFake) CompletedOutsidePlan(ctx context.Context, studentID, planID string) ([]string, error) {
	return f.outside, nil
}

func (f *progressReaderFake) CourseDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.CourseDemand, error) {
	return f.demand, nil
}

func (f *progressReaderFake) ModuleDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.ModuleDemandRow, error) {
	return f.moduleRows, f.err
}

func (f *progressReaderFake) HealthCounts(ctx context.Context) (*models.HealthCounts, error) {
	return &models.HealthCounts{Courses: 3}, nil
}

func (f *progressReaderFake) Ping(ctx context.Context) error { return f.err }

type studentReaderFake struct {
	students map[string]models.Student
	cohorts  map[string][]string
	programs map[string][]string
	active   []models.Student
	lastList [2]string
}

func (f *studentReaderFake) ListActive(ctx context.Context, cohort, program string) ([]models.Student, error) {
	f.lastList = [2]string{cohort, program}
	return f.active, nil
}

func (f *studentReaderFake) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f *studentReaderFake) ListActiveIDs(ctx context.Context, cohort, program string) ([]string, error) {
	if cohort != "" {
		return f.cohorts[cohort], nil
	}
	return f.programs[program], nil
}

func newProgressFixture() (*ProgressService, *planListerFake, *progressReaderFake, *studentReaderFake) {
	plans := &planListerFake{versions: map[string][]models.PlanVersion{}}
	progress := &progressReaderFake{completed: map[string][]models.OrientationCount{}, planned: map[string][]models.OrientationCount{}}
	students := &studentReaderFake{
		students: map[string]models.Student{"s1": {ID: "s1", Active: true}},
		cohorts:  map[string][]string{},
		programs: map[string][]string{},
	}
	svc := NewProgressService(plans, progress, students, config.RulesConfig{}, fixedClock(), nil)
	return svc, plans, progress, students
}

func TestCheckRule5of8(t *testing.T) {
	svc, _, progress, _ := newProgressFixture()
	ctx := context.Background()

	result, err := svc.CheckRule5of8(ctx, "s1", "", 5)
	require.NoError(t, err)
	assert.Equal(t, models.RuleResult{}, result)
	assert.Equal(t, models.DefaultElectiveType, progress.lastType)

	progress.completed["s1"] = []models.OrientationCount{{Orientation: "marketing", Count: 5}}
	result, err = svc.CheckRule5of8(ctx, "s1", "electiva", 5)
	require.NoError(t, err)
	assert.True(t, result.Passes)
	require.NotNil(t, result.BestOrientation)
	assert.Equal(t, "marketing", *result.BestOrientation)
	assert.Equal(t, 5, result.BestCount)
}

func TestCheckRule5of8TiesPickFirstOrientation(t *testing.T) {
	svc, _, progress, _ := newProgressFixture()
	progress.completed["s1"] = []models.OrientationCount{
		{Orientation: "marketing", Count: 3},
		{Orientation: "finanzas", Count: 3},
		{Orientation: models.NoOrientation, Count: 1},
	}

	result, err := svc.CheckRule5of8(context.Background(), "s1", "", 0)
	require.NoError(t, err)
	assert.False(t, result.Passes)
	assert.Equal(t, "finanzas", *result.BestOrientation)
	assert.Equal(t, 3, result.BestCount)
}

func TestRiskScoreLevels(t *testing.T) {
	cases := []struct {
		name  string
		count int
		gap   int
		level models.RiskLevel
	}{
		{name: "gap zero", count: 5, gap: 0, level: models.RiskLow},
		{name: "above target", count: 7, gap: 0, level: models.RiskLow},
		{name: "gap one", count: 4, gap: 1, level: models.RiskMedium},
		{name: "gap two", count: 3, gap: 2, level: models.RiskMedium},
		{name: "gap three", count: 2, gap: 3, level: models.RiskHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := scoreRisk([]models.OrientationCount{
				{Orientation: "finanzas", Count: 1},
				{Orientation: "marketing", Count: tc.count},
			}, 5)
			assert.Equal(t, tc.gap, score.Gap)
			assert.Equal(t, tc.level, score.Level)
			assert.Equal(t, tc.count+1, score.TotalCompleted)
		})
	}
}

func TestRiskScoreWithoutElectives(t *testing.T) {
	svc, _, _, _ := newProgressFixture()
	score, err := svc.RiskScore(context.Background(), "s1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, models.RiskScore{Gap: 5, Level: models.RiskHigh}, score)
}

func TestRiskScoreWithoutElectivesFollowsGap(t *testing.T) {
	cases := []struct {
		target int
		level  models.RiskLevel
	}{
		{target: 1, level: models.RiskMedium},
		{target: 2, level: models.RiskMedium},
		{target: 3, level: models.RiskHigh},
	}
	for _, tc := range cases {
		score := scoreRisk(nil, tc.target)
		assert.Equal(t, tc.target, score.Gap)
		assert.Equal(t, tc.level, score.Level, "target %d", tc.target)
		assert.Nil(t, score.BestOrientation)
	}
}

func TestCurrentPlan(t *testing.T) {
	svc, plans, _, _ := newProgressFixture()
	ctx := context.Background()

	plan, err := svc.CurrentPlan(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, plan)

	closedAt := fixedNow.Add(-24 * time.Hour)
	plans.versions["s1"] = []models.PlanVersion{
		{ID: "v3", VersionNum: 3, ValidFrom: fixedNow.Add(48 * time.Hour)},
		{ID: "v2", VersionNum: 2, ValidFrom: closedAt},
		{ID: "v1", VersionNum: 1, ValidFrom: fixedNow.Add(-72 * time.Hour), ValidUntil: &closedAt},
	}
	plan, err = svc.CurrentPlan(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "v2", plan.ID)
}

func TestAggregatedMetricsByCohort(t *testing.T) {
	svc, _, progress, students := newProgressFixture()
	ctx := context.Background()

	empty, err := svc.AggregatedMetricsByCohort(ctx, "2023", "")
	require.NoError(t, err)
	assert.Equal(t, models.GroupMetrics{Group: "2023"}, empty)

	students.cohorts["2024"] = []string{"a", "b"}
	progress.completed["a"] = []models.OrientationCount{{Orientation: "finanzas", Count: 5}, {Orientation: "marketing", Count: 1}}
	progress.completed["b"] = []models.OrientationCount{{Orientation: "finanzas", Count: 2}}

	metrics, err := svc.AggregatedMetricsByCohort(ctx, "2024", "")
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalStudents)
	assert.Equal(t, 1, metrics.Compliant)
	assert.InDelta(t, 0.5, metrics.ComplianceRate, 1e-9)
	assert.InDelta(t, 4.0, metrics.AvgElectivesCompleted, 1e-9)
}

func TestAggregatedMetricsByProgram(t *testing.T) {
	svc, _, progress, students := newProgressFixture()
	students.programs[models.ProgramEMBA] = []string{"c"}
	progress.completed["c"] = []models.OrientationCount{{Orientation: "liderazgo", Count: 6}}

	metrics, err := svc.AggregatedMetricsByProgram(context.Background(), models.ProgramEMBA, "")
	require.NoError(t, err)
	assert.Equal(t, models.ProgramEMBA, metrics.Group)
	assert.Equal(t, 1, metrics.Compliant)
	assert.InDelta(t, 1.0, metrics.ComplianceRate, 1e-9)
}

func TestAggregatedMetricsBlankGroupIsEmpty(t *testing.T) {
	svc, _, progress, students := newProgressFixture()
	students.programs[""] = []string{"a"}
	progress.completed["a"] = []models.OrientationCount{{Orientation: "finanzas", Count: 5}}
	ctx := context.Background()

	byCohort, err := svc.AggregatedMetricsByCohort(ctx, " ", "")
	require.NoError(t, err)
	assert.Equal(t, models.GroupMetrics{}, byCohort)

	byProgram, err := svc.AggregatedMetricsByProgram(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.GroupMetrics{}, byProgram)
}

func TestStudentAlerts(t *testing.T) {
	svc, plans, progress, _ := newProgressFixture()
	plans.versions["s1"] = []models.PlanVersion{{ID: "p1", VersionNum: 1, ValidFrom: fixedNow.Add(-time.Hour)}}
	progress.duplicates = []models.CountByKey{{Key: "FIN101", Count: 2}}
	progress.outside = []string{"MKT300"}
	progress.completed["s1"] = []models.OrientationCount{{Orientation: "finanzas", Count: 2}}
	progress.planned["p1"] = []models.OrientationCount{{Orientation: "finanzas", Count: 1}, {Orientation: "marketing", Count: 1}}

	alerts, err := svc.StudentAlerts(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, models.AlertDuplicateEnrollment, alerts[0].Kind)
	assert.Equal(t, "FIN101", alerts[0].CourseID)
	assert.Equal(t, models.AlertOffPlanCompletion, alerts[1].Kind)
	assert.Equal(t, "MKT300", alerts[1].CourseID)
	assert.Equal(t, models.AlertProjectedShortfall, alerts[2].Kind)
	assert.Contains(t, alerts[2].Message, "finanzas reaches 3 of 5")
}

func TestStudentAlertsWithoutPlanSkipsPlanChecks(t *testing.T) {
	svc, _, progress, _ := newProgressFixture()
	progress.outside = []string{"MKT300"}

	alerts, err := svc.StudentAlerts(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestStudentProgress(t *testing.T) {
	svc, _, progress, _ := newProgressFixture()
	progress.completed["s1"] = []models.OrientationCount{{Orientation: "marketing", Count: 4}}

	result, err := svc.StudentProgress(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, result.CurrentPlan)
	assert.Equal(t, 4, result.CompletedElectives)
	assert.Equal(t, 8, result.TargetElectives)
	assert.False(t, result.Rule.Passes)
	assert.Equal(t, models.RiskMedium, result.Risk.Level)
	assert.Empty(t, result.Alerts)

	_, err = svc.StudentProgress(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestProgressPropagatesStoreErrors(t *testing.T) {
	svc, _, progress, _ := newProgressFixture()
	progress.err = errors.New("boom")

	_, err := svc.CheckRule5of8(context.Background(), "s1", "", 5)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	require.Error(t, svc.Ping(context.Background()))
}

func TestStudentRiskRoster(t *testing.T) {
	svc, _, progress, students := newProgressFixture()
	cohort := "2024-1"
	students.active = []models.Student{
		{ID: "a", FirstName: "Ana", LastName: "Díaz", Email: "ana@example.com", Program: models.ProgramMBA, Cohort: &cohort},
		{ID: "b", FirstName: "Bruno", LastName: "Paz", Email: "bruno@example.com", Program: models.ProgramMBA},
		{ID: "c", FirstName: "Carla", LastName: "Ruiz", Email: "carla@example.com", Program: models.ProgramMBA},
	}
	progress.completed["a"] = []models.OrientationCount{{Orientation: "finanzas", Count: 5}, {Orientation: "marketing", Count: 1}}
	progress.completed["b"] = []models.OrientationCount{{Orientation: "marketing", Count: 4}}
	ctx := context.Background()

	roster, err := svc.StudentRiskRoster(ctx, models.RiskRosterFilter{Program: " mba ", Cohort: ""})
	require.NoError(t, err)
	assert.Equal(t, [2]string{"", models.ProgramMBA}, students.lastList)
	require.Len(t, roster, 3)
	assert.Equal(t, "c", roster[0].StudentID)
	assert.Equal(t, models.RiskHigh, roster[0].Level)
	assert.Equal(t, 5, roster[0].Gap)
	assert.Nil(t, roster[0].BestOrientation)
	assert.Equal(t, "b", roster[1].StudentID)
	assert.Equal(t, models.RiskMedium, roster[1].Level)
	assert.False(t, roster[1].Passes)

	first := roster[2]
	assert.Equal(t, "Ana Díaz", first.Name)
	assert.Equal(t, "ana@example.com", first.Email)
	assert.Equal(t, &cohort, first.Cohort)
	assert.Equal(t, "finanzas", *first.BestOrientation)
	assert.Equal(t, 6, first.TotalCompleted)
	assert.Equal(t, 0, first.Gap)
	assert.Equal(t, models.RiskLow, first.Level)
	assert.True(t, first.Passes)

	atRisk, err := svc.StudentRiskRoster(ctx, models.RiskRosterFilter{Levels: []models.RiskLevel{"MEDIUM", models.RiskHigh}})
	require.NoError(t, err)
	require.Len(t, atRisk, 2)
	assert.Equal(t, "c", atRisk[0].StudentID)
	assert.Equal(t, "b", atRisk[1].StudentID)

	_, err = svc.StudentRiskRoster(ctx, models.RiskRosterFilter{Levels: []models.RiskLevel{"extreme"}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	students.active = nil
	empty, err := svc.StudentRiskRoster(ctx, models.RiskRosterFilter{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestModuleDemandGroupsByModuleAndMonth(t *testing.T) {
	svc, _, progress, _ := newProgressFixture()
	m1, m2, blank := "Módulo 1", "Módulo 2", " "
	march := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	lateMarch := time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC)
	may := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	progress.moduleRows = []models.ModuleDemandRow{
		{Module: &m1, StartDate: &march, Items: 2},
		{Module: &m1, StartDate: &lateMarch, Items: 3},
		{Module: &m2, StartDate: &may, Items: 1},
		{Module: nil, StartDate: nil, Items: 1},
		{Module: &blank, StartDate: &may, Items: 4},
	}

	demand, err := svc.ModuleDemand(context.Background(), models.CourseDemandFilter{})
	require.NoError(t, err)
	assert.Equal(t, []models.ModuleDemand{
		{Module: "Módulo 1", Month: "2024-03", Items: 5},
		{Module: models.NoModule, Month: "2024-05", Items: 4},
		{Module: "Módulo 2", Month: "2024-05", Items: 1},
		{Module: models.NoModule, Month: models.NoStartDate, Items: 1},
	}, demand)

	progress.moduleRows = nil
	demand, err = svc.ModuleDemand(context.Background(), models.CourseDemandFilter{})
	require.NoError(t, err)
	assert.NotNil(t, demand)
	assert.Empty(t, demand)
}
