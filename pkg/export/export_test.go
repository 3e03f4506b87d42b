package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Term summary",
		Meta:    []Field{{Label: "Class", Value: "L1 A"}},
		Headers: []string{"Matricule", "Term average"},
		Rows: []map[string]string{
			{"Matricule": "M001", "Term average": "13.00"},
			{"Matricule": "M002"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Class,L1 A\n\nMatricule,Term average\nM001,13.00\nM002,\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestXLSXExporterRender(t *testing.T) {
	exporter := NewXLSXExporter("Recap")
	out, err := exporter.Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	assert.Equal(t, []string{"Recap"}, f.GetSheetList())
	title, err := f.GetCellValue("Recap", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Term summary", title)
	class, err := f.GetCellValue("Recap", "B3")
	require.NoError(t, err)
	assert.Equal(t, "L1 A", class)
	header, err := f.GetCellValue("Recap", "B5")
	require.NoError(t, err)
	assert.Equal(t, "Term average", header)
	value, err := f.GetCellValue("Recap", "B6")
	require.NoError(t, err)
	assert.Equal(t, "13.00", value)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "application/pdf", NewPDFExporter().ContentType())
}
