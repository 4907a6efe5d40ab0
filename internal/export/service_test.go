package export

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/video-insights/internal/table"
)

func TestWriteXLSX(t *testing.T) {
	tbl := &table.Table{
		Header: []string{"Filename", "Summary"},
		Records: []table.Record{
			{"Filename": "a.mp4", "Summary": "line one\nline two"},
			{"Filename": "b.mp4"},
		},
	}
	path := filepath.Join(t.TempDir(), "out", "combined.xlsx")
	require.NoError(t, NewService(nil).WriteXLSX(tbl, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Filename", "Summary"}, rows[0])
	assert.Equal(t, []string{"a.mp4", "line one\nline two"}, rows[1])
	assert.Equal(t, "b.mp4", rows[2][0])
	assert.Equal(t, []string{sheetName}, f.GetSheetList())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	long := strings.Repeat("x", maxCellChars+10)
	assert.Len(t, []rune(truncate(long, maxCellChars)), maxCellChars)
}
