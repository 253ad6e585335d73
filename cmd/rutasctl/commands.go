package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/noah-isme/rutas-academicas/internal/app"
	"github.com/noah-isme/rutas-academicas/internal/middleware"
	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
	"github.com/noah-isme/rutas-academicas/pkg/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				counts, err := a.Progress.HealthCounts(cmd.Context())
				if err != nil {
					return err
				}
				color.Green("schema up to date (%s)", a.DB.DriverName())

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Courses", "Students", "Plans", "Enrollments"})
				table.Append([]string{
					strconv.Itoa(counts.Courses),
					strconv.Itoa(counts.Students),
					strconv.Itoa(counts.Plans),
					strconv.Itoa(counts.Enrollments),
				})
				table.Render()
				return nil
			})
		},
	}
}

func newImportScheduleCmd() *cobra.Command {
	var opts service.ImportOptions

	cmd := &cobra.Command{
		Use:   "import-schedule <file>",
		Short: "Import the consolidated schedule workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				summary := a.Schedule.ImportScheduleFile(cmd.Context(), args[0], opts)

				if opts.DryRun {
					color.Yellow("\nDry run of %s (nothing was written)", filepath.Base(args[0]))
				} else {
					color.Yellow("\nImport of %s", filepath.Base(args[0]))
				}
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Entity", "Created", "Updated"})
				table.Append([]string{"courses", strconv.Itoa(summary.CreatedCourses), strconv.Itoa(summary.UpdatedCourses)})
				table.Append([]string{"course sources", strconv.Itoa(summary.CreatedSources), strconv.Itoa(summary.UpdatedSources)})
				table.Render()

				return reportErrors(summary.Errors)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate and count without writing")
	cmd.Flags().StringVar(&opts.Actor, "actor", middleware.DefaultActor, "Actor recorded in the change log")
	return cmd
}

func newImportStudentsCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "import-students <file>",
		Short: "Create students from a CSV or xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withApp(cmd.Context(), func(a *app.App) error {
				summary := a.Students.Import(cmd.Context(), actor, f, filepath.Base(args[0]))
				color.Green("%d students created", summary.Created)
				return reportErrors(summary.Errors)
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", middleware.DefaultActor, "Actor recorded in the change log")
	return cmd
}

func newComplianceCmd() *cobra.Command {
	var cohort, program, electiveType string

	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Show concentration rule compliance for a cohort or program",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if (cohort == "") == (program == "") {
				return errors.New("exactly one of --cohort or --program is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				var (
					metrics models.GroupMetrics
					err     error
				)
				if cohort != "" {
					metrics, err = a.Progress.AggregatedMetricsByCohort(cmd.Context(), cohort, electiveType)
				} else {
					metrics, err = a.Progress.AggregatedMetricsByProgram(cmd.Context(), strings.ToUpper(program), electiveType)
				}
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Group", "Students", "Compliant", "Rate", "Avg electives"})
				table.Append([]string{
					metrics.Group,
					strconv.Itoa(metrics.TotalStudents),
					strconv.Itoa(metrics.Compliant),
					fmt.Sprintf("%.1f%%", metrics.ComplianceRate*100),
					fmt.Sprintf("%.2f", metrics.AvgElectivesCompleted),
				})
				table.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cohort, "cohort", "", "Cohort label, e.g. 2024-1")
	cmd.Flags().StringVar(&program, "program", "", "Program, MBA or EMBA")
	cmd.Flags().StringVar(&electiveType, "elective-type", "", "Course type counted as elective (default from config)")
	return cmd
}

func newRiskCmd() *cobra.Command {
	var electiveType string

	cmd := &cobra.Command{
		Use:   "risk <student-id>",
		Short: "Evaluate the concentration rule and risk level for one student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				rules := a.Progress.Rules()

				counts, err := a.Progress.ElectiveCountsByOrientation(ctx, args[0], electiveType)
				if err != nil {
					return err
				}
				rule, err := a.Progress.CheckRule5of8(ctx, args[0], electiveType, rules.RequiredCount)
				if err != nil {
					return err
				}
				risk, err := a.Progress.RiskScore(ctx, args[0], electiveType, rules.RiskTarget)
				if err != nil {
					return err
				}

				color.Yellow("\nCompleted electives by orientation")
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Orientation", "Completed"})
				for _, c := range counts {
					table.Append([]string{c.Orientation, strconv.Itoa(c.Count)})
				}
				table.Render()

				best := "-"
				if rule.BestOrientation != nil {
					best = *rule.BestOrientation
				}
				if rule.Passes {
					color.Green("rule %d/%d met: %s with %d", rules.RequiredCount, rules.TargetElectives, best, rule.BestCount)
				} else {
					color.Red("rule %d/%d not met: best %s with %d", rules.RequiredCount, rules.TargetElectives, best, rule.BestCount)
				}

				msg := fmt.Sprintf("risk %s: %d completed, gap %d", risk.Level, risk.TotalCompleted, risk.Gap)
				switch risk.Level {
				case models.RiskHigh:
					color.Red("%s", msg)
				case models.RiskMedium:
					color.Yellow("%s", msg)
				default:
					color.Green("%s", msg)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&electiveType, "elective-type", "", "Course type counted as elective (default from config)")
	return cmd
}

func newRosterCmd() *cobra.Command {
	var (
		filter models.RiskRosterFilter
		levels []string
	)

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "List active students by risk of missing the concentration rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, l := range levels {
				filter.Levels = append(filter.Levels, models.RiskLevel(l))
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				roster, err := a.Progress.StudentRiskRoster(cmd.Context(), filter)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Student", "Email", "Cohort", "Best orientation", "Completed", "Gap", "Risk"})
				for _, e := range roster {
					cohort, best := "-", "-"
					if e.Cohort != nil {
						cohort = *e.Cohort
					}
					if e.BestOrientation != nil {
						best = fmt.Sprintf("%s (%d)", *e.BestOrientation, e.BestCount)
					}
					table.Append([]string{e.Name, e.Email, cohort, best, strconv.Itoa(e.TotalCompleted), strconv.Itoa(e.Gap), string(e.Level)})
				}
				table.Render()
				color.Yellow("%d students", len(roster))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Cohort, "cohort", "", "Cohort label, e.g. 2024-1")
	cmd.Flags().StringVar(&filter.Program, "program", "", "Program, MBA or EMBA")
	cmd.Flags().StringSliceVar(&levels, "level", nil, "Risk levels to keep: low, medium, high")
	cmd.Flags().StringVar(&filter.ElectiveType, "elective-type", "", "Course type counted as elective (default from config)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <actor>",
		Short: "Issue a bearer token for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			issued, err := service.NewTokenService(cfg.JWT, service.SystemClock).Generate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
			color.Yellow("expires %s", issued.ExpiresAt.Format("2006-01-02 15:04 MST"))
			return nil
		},
	}
}

func reportErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	color.Red("\n%d problems", len(errs))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Problem"})
	for i, e := range errs {
		table.Append([]string{strconv.Itoa(i + 1), e})
	}
	table.Render()
	return fmt.Errorf("finished with %d errors", len(errs))
}
