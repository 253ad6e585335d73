package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/pkg/config"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type planVersionLister interface {
	ListVersions(ctx context.Context, studentID string) ([]models.PlanVersion, error)
}

type progressReader interface {
	CompletedElectivesByOrientation(ctx context.Context, studentID, electiveType string) ([]models.OrientationCount, error)
	PlannedElectivesByOrientation(ctx context.Context, studentID, planID, electiveType string) ([]models.OrientationCount, error)
	DuplicateEnrollments(ctx context.Context, studentID string) ([]models.CountByKey, error)
	CompletedOutsidePlan(ctx context.Context, studentID, planID string) ([]string, error)
	CourseDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.CourseDemand, error)
	ModuleDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.ModuleDemandRow, error)
	HealthCounts(ctx context.Context) (*models.HealthCounts, error)
	Ping(ctx context.Context) error
}

type progressStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListActiveIDs(ctx context.Context, cohort, program string) ([]string, error)
	ListActive(ctx context.Context, cohort, program string) ([]models.Student, error)
}

// ProgressService computes plan and elective progress. Every call reads fresh data.
type ProgressService struct {
	plans    planVersionLister
	progress progressReader
	students progressStudentReader
	rules    config.RulesConfig
	clock    Clock
	logger   *zap.Logger
}

// NewProgressService constructs the progress engine. Zero rule values fall back to the defaults.
func NewProgressService(plans planVersionLister, progress progressReader, students progressStudentReader, rules config.RulesConfig, clock Clock, logger *zap.Logger) *ProgressService {
	if rules.ElectiveType == "" {
		rules.ElectiveType = models.DefaultElectiveType
	}
	if rules.RequiredCount <= 0 {
		rules.RequiredCount = 5
	}
	if rules.RiskTarget <= 0 {
		rules.RiskTarget = rules.RequiredCount
	}
	if rules.TargetElectives <= 0 {
		rules.TargetElectives = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		plans:    plans,
		progress: progress,
		students: students,
		rules:    rules,
		clock:    clockOrSystem(clock),
		logger:   logger,
	}
}

// Rules returns the effective rule parameters.
func (s *ProgressService) Rules() config.RulesConfig { return s.rules }

// CurrentPlan returns the version valid now, preferring the latest valid_from.
// It returns nil when the student has no version in force.
func (s *ProgressService) CurrentPlan(ctx context.Context, studentID string) (*models.PlanVersion, error) {
	versions, err := s.plans.ListVersions(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan versions")
	}
	return currentVersion(versions, s.clock), nil
}

func currentVersion(versions []models.PlanVersion, clock Clock) *models.PlanVersion {
	now := clock.Now()
	var current *models.PlanVersion
	for i := range versions {
		v := versions[i]
		if !v.ActiveAt(now) {
			continue
		}
		if current == nil || v.ValidFrom.After(current.ValidFrom) ||
			(v.ValidFrom.Equal(current.ValidFrom) && v.VersionNum > current.VersionNum) {
			current = &v
		}
	}
	return current
}

// ElectiveCountsByOrientation counts completed electives per orientation, sorted by orientation.
func (s *ProgressService) ElectiveCountsByOrientation(ctx context.Context, studentID, electiveType string) ([]models.OrientationCount, error) {
	counts, err := s.progress.CompletedElectivesByOrientation(ctx, studentID, s.electiveType(electiveType))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count electives")
	}
	sortCounts(counts)
	return counts, nil
}

// CheckRule5of8 reports whether some orientation holds at least required completed electives.
func (s *ProgressService) CheckRule5of8(ctx context.Context, studentID, electiveType string, required int) (models.RuleResult, error) {
	counts, err := s.ElectiveCountsByOrientation(ctx, studentID, electiveType)
	if err != nil {
		return models.RuleResult{}, err
	}
	if required <= 0 {
		required = s.rules.RequiredCount
	}
	return evaluateRule(counts, required), nil
}

// RiskScore grades how far the student is from concentrating target electives.
func (s *ProgressService) RiskScore(ctx context.Context, studentID, electiveType string, target int) (models.RiskScore, error) {
	counts, err := s.ElectiveCountsByOrientation(ctx, studentID, electiveType)
	if err != nil {
		return models.RiskScore{}, err
	}
	if target <= 0 {
		target = s.rules.RiskTarget
	}
	return scoreRisk(counts, target), nil
}

// AggregatedMetricsByCohort summarises rule compliance over the active students of a cohort.
func (s *ProgressService) AggregatedMetricsByCohort(ctx context.Context, cohort, electiveType string) (models.GroupMetrics, error) {
	cohort = strings.TrimSpace(cohort)
	if cohort == "" {
		return models.GroupMetrics{}, nil
	}
	ids, err := s.students.ListActiveIDs(ctx, cohort, "")
	if err != nil {
		return models.GroupMetrics{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohort students")
	}
	return s.aggregate(ctx, cohort, ids, electiveType)
}

// AggregatedMetricsByProgram summarises rule compliance over the active students of a program.
func (s *ProgressService) AggregatedMetricsByProgram(ctx context.Context, program, electiveType string) (models.GroupMetrics, error) {
	program = strings.TrimSpace(program)
	if program == "" {
		return models.GroupMetrics{}, nil
	}
	ids, err := s.students.ListActiveIDs(ctx, "", program)
	if err != nil {
		return models.GroupMetrics{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list program students")
	}
	return s.aggregate(ctx, program, ids, electiveType)
}

func (s *ProgressService) aggregate(ctx context.Context, group string, ids []string, electiveType string) (models.GroupMetrics, error) {
	metrics := models.GroupMetrics{Group: group, TotalStudents: len(ids)}
	if len(ids) == 0 {
		return metrics, nil
	}
	var compliant, completed int
	for _, id := range ids {
		counts, err := s.ElectiveCountsByOrientation(ctx, id, electiveType)
		if err != nil {
			return models.GroupMetrics{}, err
		}
		if evaluateRule(counts, s.rules.RequiredCount).Passes {
			compliant++
		}
		for _, c := range counts {
			completed += c.Count
		}
	}
	metrics.Compliant = compliant
	metrics.ComplianceRate = float64(compliant) / float64(len(ids))
	metrics.AvgElectivesCompleted = float64(completed) / float64(len(ids))
	return metrics, nil
}

// StudentAlerts flags duplicated enrollments, completions outside the current
// plan and a projected concentration below the required count.
func (s *ProgressService) StudentAlerts(ctx context.Context, studentID string) ([]models.Alert, error) {
	alerts := []models.Alert{}

	dups, err := s.progress.DuplicateEnrollments(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicate enrollments")
	}
	for _, d := range dups {
		alerts = append(alerts, models.Alert{
			Kind:     models.AlertDuplicateEnrollment,
			CourseID: d.Key,
			Message:  fmt.Sprintf("course %s has %d enrollments", d.Key, d.Count),
		})
	}

	plan, err := s.CurrentPlan(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return alerts, nil
	}

	outside, err := s.progress.CompletedOutsidePlan(ctx, studentID, plan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compare completions with plan")
	}
	for _, courseID := range outside {
		alerts = append(alerts, models.Alert{
			Kind:     models.AlertOffPlanCompletion,
			CourseID: courseID,
			Message:  fmt.Sprintf("course %s was completed but is not in plan v%d", courseID, plan.VersionNum),
		})
	}

	completed, err := s.ElectiveCountsByOrientation(ctx, studentID, "")
	if err != nil {
		return nil, err
	}
	planned, err := s.progress.PlannedElectivesByOrientation(ctx, studentID, plan.ID, s.rules.ElectiveType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count planned electives")
	}
	projected := mergeCounts(completed, planned)
	if len(projected) > 0 {
		best := evaluateRule(projected, s.rules.RequiredCount)
		if !best.Passes {
			alerts = append(alerts, models.Alert{
				Kind: models.AlertProjectedShortfall,
				Message: fmt.Sprintf("projected best orientation %s reaches %d of %d electives, %d short",
					*best.BestOrientation, best.BestCount, s.rules.RequiredCount, s.rules.RequiredCount-best.BestCount),
			})
		}
	}
	return alerts, nil
}

// StudentProgress bundles plan, counts, rule, risk and alerts for one student.
func (s *ProgressService) StudentProgress(ctx context.Context, studentID string) (*models.StudentProgress, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	plan, err := s.CurrentPlan(ctx, studentID)
	if err != nil {
		return nil, err
	}
	counts, err := s.ElectiveCountsByOrientation(ctx, studentID, "")
	if err != nil {
		return nil, err
	}
	alerts, err := s.StudentAlerts(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []models.OrientationCount{}
	}
	risk := scoreRisk(counts, s.rules.RiskTarget)
	return &models.StudentProgress{
		StudentID:          studentID,
		CurrentPlan:        plan,
		Electives:          counts,
		CompletedElectives: risk.TotalCompleted,
		TargetElectives:    s.rules.TargetElectives,
		Rule:               evaluateRule(counts, s.rules.RequiredCount),
		Risk:               risk,
		Alerts:             alerts,
	}, nil
}

// CourseDemand counts open plans listing each course as planned.
func (s *ProgressService) CourseDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.CourseDemand, error) {
	demand, err := s.progress.CourseDemand(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute course demand")
	}
	if demand == nil {
		demand = []models.CourseDemand{}
	}
	return demand, nil
}

// ModuleDemand folds planned demand into source module and start month buckets,
// largest first.
func (s *ProgressService) ModuleDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.ModuleDemand, error) {
	rows, err := s.progress.ModuleDemand(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute module demand")
	}

	type bucket struct{ module, month string }
	totals := make(map[bucket]int)
	for _, row := range rows {
		key := bucket{module: models.NoModule, month: models.NoStartDate}
		if row.Module != nil && strings.TrimSpace(*row.Module) != "" {
			key.module = strings.TrimSpace(*row.Module)
		}
		if row.StartDate != nil {
			key.month = row.StartDate.UTC().Format("2006-01")
		}
		totals[key] += row.Items
	}

	demand := make([]models.ModuleDemand, 0, len(totals))
	for key, items := range totals {
		demand = append(demand, models.ModuleDemand{Module: key.module, Month: key.month, Items: items})
	}
	sort.Slice(demand, func(i, j int) bool {
		a, b := demand[i], demand[j]
		if a.Items != b.Items {
			return a.Items > b.Items
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Month < b.Month
	})
	return demand, nil
}

// StudentRiskRoster evaluates the rule and risk level of every active student
// in the filter, widest gap first. Students with the same gap keep name order.
func (s *ProgressService) StudentRiskRoster(ctx context.Context, filter models.RiskRosterFilter) ([]models.RiskRosterEntry, error) {
	wanted := make(map[models.RiskLevel]bool, len(filter.Levels))
	for _, raw := range filter.Levels {
		level, ok := models.ParseRiskLevel(string(raw))
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown risk level %q", raw))
		}
		wanted[level] = true
	}

	students, err := s.students.ListActive(ctx, strings.TrimSpace(filter.Cohort), strings.ToUpper(strings.TrimSpace(filter.Program)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	roster := []models.RiskRosterEntry{}
	for _, student := range students {
		counts, err := s.ElectiveCountsByOrientation(ctx, student.ID, filter.ElectiveType)
		if err != nil {
			return nil, err
		}
		risk := scoreRisk(counts, s.rules.RiskTarget)
		if len(wanted) > 0 && !wanted[risk.Level] {
			continue
		}
		rule := evaluateRule(counts, s.rules.RequiredCount)
		roster = append(roster, models.RiskRosterEntry{
			StudentID:       student.ID,
			Name:            student.FullName(),
			Email:           student.Email,
			Program:         student.Program,
			Cohort:          student.Cohort,
			BestOrientation: rule.BestOrientation,
			BestCount:       rule.BestCount,
			TotalCompleted:  risk.TotalCompleted,
			Gap:             risk.Gap,
			Level:           risk.Level,
			Passes:          rule.Passes,
		})
	}
	sort.SliceStable(roster, func(i, j int) bool { return roster[i].Gap > roster[j].Gap })
	return roster, nil
}

// HealthCounts reports the entity census.
func (s *ProgressService) HealthCounts(ctx context.Context) (*models.HealthCounts, error) {
	counts, err := s.progress.HealthCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count entities")
	}
	return counts, nil
}

// Ping verifies the store is reachable.
func (s *ProgressService) Ping(ctx context.Context) error {
	if err := s.progress.Ping(ctx); err != nil {
		s.logger.Warn("database ping failed", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "database unavailable")
	}
	return nil
}

func (s *ProgressService) electiveType(v string) string {
	if v == "" {
		return s.rules.ElectiveType
	}
	return v
}

func sortCounts(counts []models.OrientationCount) {
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Orientation < counts[j].Orientation })
}

// evaluateRule picks the orientation with most completions; ties go to the
// first in ascending order. Counts must be sorted.
func evaluateRule(counts []models.OrientationCount, required int) models.RuleResult {
	var result models.RuleResult
	for _, c := range counts {
		if result.BestOrientation == nil || c.Count > result.BestCount {
			orientation := c.Orientation
			result.BestOrientation = &orientation
			result.BestCount = c.Count
		}
	}
	result.Passes = result.BestOrientation != nil && result.BestCount >= required
	return result
}

func scoreRisk(counts []models.OrientationCount, target int) models.RiskScore {
	var score models.RiskScore
	for _, c := range counts {
		score.TotalCompleted += c.Count
	}
	best := evaluateRule(counts, target)
	score.BestOrientation = best.BestOrientation
	score.BestCount = best.BestCount
	score.Gap = target - best.BestCount
	if score.Gap < 0 {
		score.Gap = 0
	}
	score.Level = riskLevel(score.Gap)
	return score
}

func riskLevel(gap int) models.RiskLevel {
	switch {
	case gap <= 0:
		return models.RiskLow
	case gap <= 2:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// mergeCounts sums two count lists per orientation and returns them sorted.
func mergeCounts(a, b []models.OrientationCount) []models.OrientationCount {
	totals := models.CountsByOrientation(a)
	for orientation, n := range models.CountsByOrientation(b) {
		totals[orientation] += n
	}
	merged := make([]models.OrientationCount, 0, len(totals))
	for orientation, n := range totals {
		merged = append(merged, models.OrientationCount{Orientation: orientation, Count: n})
	}
	sortCounts(merged)
	return merged
}
