package spreadsheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, sheet string, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
		require.NoError(t, f.DeleteSheet("Sheet1"))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadSheet(t *testing.T) {
	buf := workbook(t, "Datos", [][]interface{}{
		{" Programa ", "Horas", "Notas"},
		{"MBA", 24},
		{},
		{"EMBA", "16+4", "x"},
		{},
	})

	table, err := ReadSheet(buf, "Datos")
	require.NoError(t, err)

	assert.Equal(t, "Datos", table.Sheet)
	assert.Equal(t, []string{"Programa", "Horas", "Notas"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"MBA", "24", ""}, table.Rows[0])
	assert.Equal(t, []string{"", "", ""}, table.Rows[1])
	assert.Equal(t, "16+4", table.Cell(2, "Horas"))
	assert.Equal(t, "", table.Cell(2, "Missing"))
}

func TestReadSheetMissing(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]interface{}{{"a"}})

	_, err := ReadSheet(buf, "CronogramaConsolidado")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestReadSheetCorrupt(t *testing.T) {
	_, err := ReadSheet(strings.NewReader("not a workbook"), "Any")
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	body := "\xef\xbb\xbfNombre,Apellido,EMAIL\nAna,Pérez,ana@example.com\nLuis,Gómez\n\n"
	table, err := ReadCSV(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, []string{"Nombre", "Apellido", "EMAIL"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"Luis", "Gómez", ""}, table.Rows[1])
	assert.Equal(t, 2, table.IndexFold("email"))
	assert.Equal(t, -1, table.Index("email"))
}

func TestReadAnyDispatchesOnExtension(t *testing.T) {
	table, err := ReadAny(strings.NewReader("a,b\n1,2\n"), "alumnos.CSV")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Columns)

	buf := workbook(t, "Alumnos", [][]interface{}{{"nombre"}, {"Ana"}})
	table, err = ReadAny(buf, "alumnos.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Alumnos", table.Sheet)
	assert.Equal(t, [][]string{{"Ana"}}, table.Rows)
}
