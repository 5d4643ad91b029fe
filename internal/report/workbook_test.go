package report

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/standscan/internal/season"
	"github.com/sells-group/standscan/internal/trafficability"
	"github.com/sells-group/standscan/internal/volume"
)

func sampleVolume() *volume.Result {
	return &volume.Result{
		Status:         volume.StatusDone,
		AreaHa:         2.5,
		VolumePerHa:    180,
		TotalVolume:    450,
		MeanDiameterCm: 24,
		MeanHeightM:    19,
		BasalArea:      22,
		SpeciesSource:  "remote",
		Species: []volume.Species{
			{Key: "tall", Name: "Tall", Category: volume.Conifer, VolumePerHectare: 120, TotalVolume: 300, ShareOfTotal: 0.667},
			{Key: "gran", Name: "Gran", Category: volume.Conifer, VolumePerHectare: 60, TotalVolume: 150, ShareOfTotal: 0.333},
		},
		Thinning: &volume.Thinning{Needed: true},
	}
}

func readBack(t *testing.T, stands []Stand) *xlsx.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, stands))
	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	return f
}

func floatCell(t *testing.T, c *xlsx.Cell) float64 {
	t.Helper()
	v, err := c.Float()
	require.NoError(t, err)
	return v
}

func TestWrite_VolumeOnly(t *testing.T) {
	f := readBack(t, []Stand{{Name: "Skifte 1", Volume: sampleVolume()}})

	require.Len(t, f.Sheets, 2)
	assert.Equal(t, SheetStands, f.Sheets[0].Name)
	assert.Equal(t, SheetSpecies, f.Sheets[1].Name)

	stands := f.Sheets[0]
	require.Len(t, stands.Rows, 2)
	assert.Equal(t, "Bestånd", stands.Rows[0].Cells[0].String())
	row := stands.Rows[1]
	assert.Equal(t, "Skifte 1", row.Cells[0].String())
	assert.Equal(t, "done", row.Cells[1].String())
	assert.InDelta(t, 2.5, floatCell(t, row.Cells[2]), 1e-9)
	assert.InDelta(t, 450, floatCell(t, row.Cells[4]), 1e-9)
	assert.False(t, row.Cells[8].Bool())
	assert.Equal(t, "remote", row.Cells[9].String())
	assert.True(t, row.Cells[10].Bool())

	species := f.Sheets[1]
	require.Len(t, species.Rows, 3)
	assert.Equal(t, "Tall", species.Rows[1].Cells[1].String())
	assert.Equal(t, "conifer", species.Rows[1].Cells[2].String())
	assert.InDelta(t, 150, floatCell(t, species.Rows[2].Cells[4]), 1e-9)
}

func TestWrite_WithTrafficability(t *testing.T) {
	tr := &trafficability.Result{
		Split:           trafficability.Split{Green: 0.6, Yellow: 0.3, Red: 0.1},
		Assessment:      trafficability.AssessPlan,
		DominantSoil:    "Morän",
		MeanSlope:       8.4,
		SeasonCategory:  season.Dry,
		ForwarderLoads:  28,
		BaseRoadWarning: true,
	}
	f := readBack(t, []Stand{
		{Name: "A", Volume: sampleVolume(), Trafficability: tr},
		{Name: "B", Trafficability: tr},
	})

	require.Len(t, f.Sheets, 3)
	sheet := f.Sheet[SheetTrafficability]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 3)

	row := sheet.Rows[2]
	assert.Equal(t, "B", row.Cells[0].String())
	assert.InDelta(t, 0.6, floatCell(t, row.Cells[1]), 1e-9)
	assert.Equal(t, "plan", row.Cells[4].String())
	assert.Equal(t, "Morän", row.Cells[5].String())
	assert.Equal(t, "dry", row.Cells[7].String())
	assert.InDelta(t, 28, floatCell(t, row.Cells[8]), 1e-9)
	assert.True(t, row.Cells[9].Bool())

	// B has no volume result, so only A appears on the stand sheet.
	assert.Len(t, f.Sheet[SheetStands].Rows, 2)
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Save(path, []Stand{{Name: "A", Volume: sampleVolume()}}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 2)
}

func TestWrite_Empty(t *testing.T) {
	f := readBack(t, nil)
	require.Len(t, f.Sheets, 2)
	assert.Len(t, f.Sheets[0].Rows, 1)
}
