package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/schedule"
	"github.com/noah-isme/rutas-academicas/internal/service"
	"github.com/noah-isme/rutas-academicas/pkg/config"
)

func newSQLiteApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Database: config.DatabaseConfig{DataDir: t.TempDir()},
		Imports:  config.ImportsConfig{UploadDir: t.TempDir()},
	}
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func scheduleWorkbook(t *testing.T, rows ...map[string]interface{}) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close() //nolint:errcheck

	_, err := wb.NewSheet(schedule.SheetName)
	require.NoError(t, err)
	header := make([]interface{}, len(schedule.ExpectedColumns))
	for i, col := range schedule.ExpectedColumns {
		header[i] = col
	}
	require.NoError(t, wb.SetSheetRow(schedule.SheetName, "A1", &header))
	for n, values := range rows {
		data := make([]interface{}, len(schedule.ExpectedColumns))
		for i, col := range schedule.ExpectedColumns {
			data[i] = values[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow(schedule.SheetName, cell, &data))
	}

	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestScheduleReimportOnSQLiteIsNoOp(t *testing.T) {
	a := newSQLiteApp(t)
	ctx := context.Background()

	workbook := scheduleWorkbook(t,
		map[string]interface{}{
			schedule.ColProgram:     "MBA",
			schedule.ColYear:        2024,
			schedule.ColModule:      "Módulo 1",
			schedule.ColSubject:     "Finanzas Corporativas",
			schedule.ColHours:       24,
			schedule.ColInstructor1: "Gómez",
			schedule.ColStart:       time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			schedule.ColEnd:         time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC),
			schedule.ColWeekday:     "Lunes",
			schedule.ColTimeBlock:   "19:00-22:00",
			schedule.ColFormat:      "Presencial",
			schedule.ColOrientation: "finanzas",
			schedule.ColSubjectType: "electiva",
			schedule.ColSourceTab:   "MBA",
			schedule.ColCourseID:    "FIN301",
		},
		map[string]interface{}{
			schedule.ColProgram:     "EMBA",
			schedule.ColYear:        1,
			schedule.ColModule:      "Módulo 2",
			schedule.ColSubject:     "Negociación",
			schedule.ColHours:       "16+4",
			schedule.ColStart:       "2024-05-06",
			schedule.ColComments:    "aula 3",
			schedule.ColSubjectType: "obligatoria",
			schedule.ColCourseID:    "NEG200",
		},
	)

	opts := service.ImportOptions{Actor: "coord"}
	first := a.Schedule.ImportSchedule(ctx, bytes.NewReader(workbook), opts)
	require.Empty(t, first.Errors)
	assert.Equal(t, 2, first.CreatedCourses)
	assert.Equal(t, 2, first.CreatedSources)

	second := a.Schedule.ImportSchedule(ctx, bytes.NewReader(workbook), opts)
	assert.Equal(t, models.ImportSummary{Errors: []string{}}, second)

	var logged int
	require.NoError(t, a.DB.GetContext(ctx, &logged, "SELECT COUNT(*) FROM change_logs WHERE entity = ?", models.EntityCourse))
	assert.Equal(t, 2, logged)
}
