// Package report writes stand analyses to XLSX workbooks.
package report

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/standscan/internal/trafficability"
	"github.com/sells-group/standscan/internal/volume"
)

// Sheet names.
const (
	SheetStands         = "Bestånd"
	SheetSpecies        = "Trädslag"
	SheetTrafficability = "Framkomlighet"
)

const numFormat = "0.00"

// Stand is one named row of the report. Either analysis may be nil.
type Stand struct {
	Name           string
	Volume         *volume.Result
	Trafficability *trafficability.Result
}

var (
	standHeader = []string{
		"Bestånd", "Status", "Areal (ha)", "Volym (m³sk/ha)", "Totalvolym (m³sk)",
		"Medeldiameter (cm)", "Medelhöjd (m)", "Grundyta (m²/ha)", "Avverkad", "Trädslagskälla", "Gallringsbehov",
	}
	speciesHeader = []string{
		"Bestånd", "Trädslag", "Kategori", "Volym (m³sk/ha)", "Totalvolym (m³sk)",
		"Andel", "Timmer (m³fub)", "Massaved (m³fub)", "GROT (ton ts)",
	}
	trafficHeader = []string{
		"Bestånd", "Grön", "Gul", "Röd", "Bedömning", "Dominerande jordart",
		"Medellutning (°)", "Säsong", "Lass", "Basvägsvarning",
	}
)

// Build assembles the workbook. The trafficability sheet is only added when
// at least one stand carries a trafficability result.
func Build(stands []Stand) (*xlsx.File, error) {
	f := xlsx.NewFile()

	st, err := addSheet(f, SheetStands, standHeader)
	if err != nil {
		return nil, err
	}
	sp, err := addSheet(f, SheetSpecies, speciesHeader)
	if err != nil {
		return nil, err
	}

	var traffic bool
	for _, s := range stands {
		traffic = traffic || s.Trafficability != nil
		if s.Volume == nil {
			continue
		}
		writeStand(st.AddRow(), s.Name, s.Volume)
		for _, spec := range s.Volume.Species {
			writeSpecies(sp.AddRow(), s.Name, spec)
		}
	}

	if traffic {
		tr, err := addSheet(f, SheetTrafficability, trafficHeader)
		if err != nil {
			return nil, err
		}
		for _, s := range stands {
			if s.Trafficability != nil {
				writeTrafficability(tr.AddRow(), s.Name, s.Trafficability)
			}
		}
	}
	return f, nil
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, stands []Stand) error {
	f, err := Build(stands)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "report: write workbook")
}

// Save builds the workbook and saves it to path.
func Save(path string, stands []Stand) error {
	f, err := Build(stands)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %s", name)
	}
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
	return sheet, nil
}

func writeStand(row *xlsx.Row, name string, r *volume.Result) {
	row.AddCell().SetString(name)
	row.AddCell().SetString(string(r.Status))
	addFloat(row, r.AreaHa)
	addFloat(row, r.VolumePerHa)
	addFloat(row, r.TotalVolume)
	addFloat(row, r.MeanDiameterCm)
	addFloat(row, r.MeanHeightM)
	addFloat(row, r.BasalArea)
	row.AddCell().SetBool(r.HarvestedWarning)
	row.AddCell().SetString(r.SpeciesSource)
	if r.Thinning != nil {
		row.AddCell().SetBool(r.Thinning.Needed)
	} else {
		row.AddCell().SetString("")
	}
}

func writeSpecies(row *xlsx.Row, stand string, s volume.Species) {
	row.AddCell().SetString(stand)
	row.AddCell().SetString(s.Name)
	row.AddCell().SetString(string(s.Category))
	addFloat(row, s.VolumePerHectare)
	addFloat(row, s.TotalVolume)
	addFloat(row, s.ShareOfTotal)
	addFloat(row, s.SawlogVolume)
	addFloat(row, s.PulpwoodVolume)
	addFloat(row, s.SlashMass)
}

func writeTrafficability(row *xlsx.Row, stand string, r *trafficability.Result) {
	row.AddCell().SetString(stand)
	addFloat(row, r.Green)
	addFloat(row, r.Yellow)
	addFloat(row, r.Red)
	row.AddCell().SetString(string(r.Assessment))
	row.AddCell().SetString(r.DominantSoil)
	addFloat(row, r.MeanSlope)
	row.AddCell().SetString(string(r.SeasonCategory))
	row.AddCell().SetInt(r.ForwarderLoads)
	row.AddCell().SetBool(r.BaseRoadWarning)
}

func addFloat(row *xlsx.Row, v float64) {
	row.AddCell().SetFloatWithFormat(v, numFormat)
}
