package export

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/WorkLog/internal/models"
)

func workRow(id, date, created string, hours string) []string {
	return []string{id, "u1", "Alice", date, "manual", "", "Weeding", "warehouse", "Main", "", hours, "", created}
}

func TestSheets_MissingSheetHasNoRows(t *testing.T) {
	s := NewSheets(afero.NewMemMapFs(), "/exports")
	rows, err := s.Rows(models.FlowWork, "2024-05")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSheets_UnknownFlow(t *testing.T) {
	s := NewSheets(afero.NewMemMapFs(), "/exports")
	_, err := s.Rows(models.FlowAdmin, "2024-05")
	assert.Error(t, err)
	assert.Error(t, s.Upsert(models.FlowAdmin, "2024-05", []string{"x"}))
}

func TestSheets_UpsertAppendsAndReplaces(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewSheets(fs, "/exports")

	require.NoError(t, s.Upsert(models.FlowWork, "2024-05", workRow("wr_2", "2024-05-09", "2024-05-09T10:00:00Z", "4")))
	require.NoError(t, s.Upsert(models.FlowWork, "2024-05", workRow("wr_1", "2024-05-08", "2024-05-08T10:00:00Z", "6")))
	require.NoError(t, s.Upsert(models.FlowWork, "2024-05", workRow("wr_2", "2024-05-09", "2024-05-09T10:00:00Z", "5")))

	rows, err := s.Rows(models.FlowWork, "2024-05")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "wr_1", rows[0][0])
	assert.Equal(t, "wr_2", rows[1][0])
	assert.Equal(t, "5", rows[1][10])

	data, err := afero.ReadFile(fs, "/exports/work-2024-05.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(workHeader, ",")+"\n"))

	// Only the sheet itself is left behind.
	infos, err := afero.ReadDir(fs, "/exports")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "work-2024-05.csv", infos[0].Name())
}

func TestSheets_Delete(t *testing.T) {
	s := NewSheets(afero.NewMemMapFs(), "/exports")
	require.NoError(t, s.Upsert(models.FlowWork, "2024-05", workRow("wr_1", "2024-05-08", "t1", "6")))
	require.NoError(t, s.Upsert(models.FlowWork, "2024-05", workRow("wr_2", "2024-05-09", "t2", "4")))

	removed, err := s.Delete(models.FlowWork, "2024-05", "wr_1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(models.FlowWork, "2024-05", "wr_1")
	require.NoError(t, err)
	assert.False(t, removed)

	rows, err := s.Rows(models.FlowWork, "2024-05")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "wr_2", rows[0][0])
}

func TestSheets_ReplaceKeepsMonthsApart(t *testing.T) {
	s := NewSheets(afero.NewMemMapFs(), "/exports")
	require.NoError(t, s.Upsert(models.FlowWork, "2024-04", workRow("wr_0", "2024-04-30", "t0", "2")))
	require.NoError(t, s.Replace(models.FlowWork, "2024-05", [][]string{
		workRow("wr_b", "2024-05-02", "t1", "1"),
		workRow("wr_a", "2024-05-01", "t1", "1"),
	}))

	may, err := s.Rows(models.FlowWork, "2024-05")
	require.NoError(t, err)
	require.Len(t, may, 2)
	assert.Equal(t, "wr_a", may[0][0])

	april, err := s.Rows(models.FlowWork, "2024-04")
	require.NoError(t, err)
	assert.Len(t, april, 1)

	require.NoError(t, s.Replace(models.FlowWork, "2024-05", nil))
	may, err = s.Rows(models.FlowWork, "2024-05")
	require.NoError(t, err)
	assert.Empty(t, may)
}

func TestRowsRenderOptionalColumnsEmpty(t *testing.T) {
	w := WorkRow(models.WorkReport{ID: "wr_1", Hours: 3}, "Al")
	assert.Len(t, w, len(workHeader))
	assert.Equal(t, "", w[11])
	assert.Equal(t, "3", w[10])

	f := ForemanRow(models.ForemanReport{ID: "fr_1", Rows: 4, Workers: 2, Bags: 7}, "Bo")
	assert.Len(t, f, len(foremanHeader))
	assert.Equal(t, "7", f[9])
}
