package normalize

import (
	"github.com/Tpgainz/sirene-export/geo"
	"github.com/Tpgainz/sirene-export/sirene"
)

// ResolveRegion returns the region (RPEN) and geographic code (DEPCOMEN) of
// the legal unit of rec. A headquarters uses its own address; any other
// establishment uses the address of its headquarters found in index. found
// is false when that headquarters is not in index.
func ResolveRegion(rec sirene.Establishment, table *geo.Table, index sirene.Index) (region, code string, found bool) {
	hq := rec
	if !rec.IsHeadquarters() {
		var ok bool

		hq, ok = index.Lookup(rec.HeadquartersKey())
		if !ok {
			return "", "", false
		}
	}

	code = geoCode(hq.Address())

	return table.Region(code), code, true
}

func geoCode(address map[string]any) string {
	if country, _ := address["codePaysEtrangerEtablissement"].(string); country != "" {
		return country
	}

	commune, _ := address["codeCommuneEtablissement"].(string)

	return commune
}
