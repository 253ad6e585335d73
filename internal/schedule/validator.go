// Package schedule validates the consolidated schedule sheet and coerces its
// rows into typed values.
package schedule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/noah-isme/rutas-academicas/internal/normalize"
	"github.com/noah-isme/rutas-academicas/pkg/spreadsheet"
)

// SheetName is the workbook tab the importer reads.
const SheetName = "CronogramaConsolidado"

// Column headers, matched exactly.
const (
	ColProgram     = "Programa"
	ColYear        = "Año"
	ColModule      = "Módulo"
	ColSubject     = "Materia"
	ColHours       = "Horas"
	ColInstructor1 = "Profesor 1"
	ColInstructor2 = "Profesor 2"
	ColInstructor3 = "Profesor 3"
	ColStart       = "Inicio"
	ColEnd         = "Final"
	ColWeekday     = "Día"
	ColTimeBlock   = "Horario"
	ColFormat      = "Formato"
	ColOrientation = "Orientación"
	ColComments    = "Comentarios"
	ColSubjectType = "TipoMateria"
	ColSourceTab   = "SolapaFuente"
	ColCourseID    = "MateriaID"
	ColCourseKey   = "MateriaKey"
)

// ExpectedColumns lists every header the sheet must carry, in sheet order.
var ExpectedColumns = []string{
	ColProgram, ColYear, ColModule, ColSubject, ColHours,
	ColInstructor1, ColInstructor2, ColInstructor3,
	ColStart, ColEnd, ColWeekday, ColTimeBlock, ColFormat,
	ColOrientation, ColComments, ColSubjectType, ColSourceTab,
	ColCourseID, ColCourseKey,
}

// requiredColumns may not be absent in any row.
var requiredColumns = []string{ColProgram, ColModule, ColSubject, ColCourseID}

// Row is one coerced data row. Index is the 0-based data row position.
type Row struct {
	Index       int
	Program     *string
	Year        *int
	Module      *string
	Subject     *string
	Hours       *float64
	Instructors [3]*string
	Start       *time.Time
	End         *time.Time
	Weekday     *string
	TimeBlock   *string
	Format      *string
	Orientation *string
	Comments    *string
	SubjectType *string
	SourceTab   *string
	CourseID    *string
	CourseKey   *string
}

// SourceRow is the sheet line the row came from: one for the header plus one
// because sheet lines count from 1.
func (r Row) SourceRow() int { return r.Index + 2 }

// MissingColumns returns the expected headers absent from t, in expected order.
func MissingColumns(t *spreadsheet.Table) []string {
	var missing []string
	for _, col := range ExpectedColumns {
		if t.Index(col) < 0 {
			missing = append(missing, col)
		}
	}
	return missing
}

// Validate coerces every row of t and collects one error per offending
// (row, column) pair. A table missing expected columns yields a single error
// and no rows. Rows are returned even when errors are reported.
func Validate(t *spreadsheet.Table) ([]Row, []string) {
	if missing := MissingColumns(t); len(missing) > 0 {
		return nil, []string{fmt.Sprintf("missing required columns: %v", missing)}
	}

	rows := make([]Row, 0, len(t.Rows))
	var errs []string
	for i := range t.Rows {
		row := coerce(t, i)
		errs = append(errs, check(t, row)...)
		rows = append(rows, row)
	}
	return rows, errs
}

func coerce(t *spreadsheet.Table, i int) Row {
	cell := func(col string) string { return t.Cell(i, col) }
	return Row{
		Index:   i,
		Program: normalize.String(cell(ColProgram)),
		Year:    normalize.Int(cell(ColYear)),
		Module:  normalize.String(cell(ColModule)),
		Subject: normalize.String(cell(ColSubject)),
		Hours:   normalize.Float(cell(ColHours)),
		Instructors: [3]*string{
			normalize.String(cell(ColInstructor1)),
			normalize.String(cell(ColInstructor2)),
			normalize.String(cell(ColInstructor3)),
		},
		Start:       normalize.Date(cell(ColStart)),
		End:         normalize.Date(cell(ColEnd)),
		Weekday:     normalize.String(cell(ColWeekday)),
		TimeBlock:   normalize.String(cell(ColTimeBlock)),
		Format:      normalize.String(cell(ColFormat)),
		Orientation: normalize.String(cell(ColOrientation)),
		Comments:    normalize.String(cell(ColComments)),
		SubjectType: normalize.String(cell(ColSubjectType)),
		SourceTab:   normalize.String(cell(ColSourceTab)),
		CourseID:    normalize.String(cell(ColCourseID)),
		CourseKey:   normalize.String(cell(ColCourseKey)),
	}
}

func check(t *spreadsheet.Table, row Row) []string {
	var errs []string
	present := map[string]bool{
		ColProgram:  row.Program != nil,
		ColModule:   row.Module != nil,
		ColSubject:  row.Subject != nil,
		ColCourseID: row.CourseID != nil,
	}
	for _, col := range requiredColumns {
		if !present[col] {
			errs = append(errs, fmt.Sprintf("row %d: %s -> %s", row.Index, col, describe(t.Cell(row.Index, col))))
		}
	}
	if row.Hours != nil && *row.Hours < 0 {
		errs = append(errs, fmt.Sprintf("row %d: %s -> %s", row.Index, ColHours, strconv.FormatFloat(*row.Hours, 'f', -1, 64)))
	}
	return errs
}

func describe(raw string) string {
	if raw == "" {
		return "null"
	}
	return strconv.Quote(raw)
}
