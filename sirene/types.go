package sirene

// Establishment is one raw record of the etablissements array, kept as the
// decoded JSON object.
type Establishment map[string]any

func (e Establishment) str(key string) string {
	s, _ := e[key].(string)

	return s
}

func (e Establishment) Siren() string {
	return e.str("siren")
}

func (e Establishment) Siret() string {
	return e.str("siret")
}

// IsHeadquarters reports the etablissementSiege flag.
func (e Establishment) IsHeadquarters() bool {
	siege, _ := e["etablissementSiege"].(bool)

	return siege
}

// LegalUnit returns the nested uniteLegale object, or nil.
func (e Establishment) LegalUnit() map[string]any {
	ul, _ := e["uniteLegale"].(map[string]any)

	return ul
}

// Address returns the nested adresseEtablissement object, or nil.
func (e Establishment) Address() map[string]any {
	a, _ := e["adresseEtablissement"].(map[string]any)

	return a
}

// HeadquartersKey is the siret of the headquarters of the legal unit:
// siren + uniteLegale.nicSiegeUniteLegale. It is empty when the nic is
// unknown.
func (e Establishment) HeadquartersKey() string {
	nic, _ := e.LegalUnit()["nicSiegeUniteLegale"].(string)
	if nic == "" {
		return ""
	}

	return e.Siren() + nic
}

// Page is one decoded answer of the establishment endpoint.
type Page struct {
	Records    []Establishment
	Cursor     string
	NextCursor string
	Total      int
}

// Done reports whether the server stopped advancing the cursor.
func (p *Page) Done() bool {
	return p.NextCursor == p.Cursor
}

// Index maps an establishment siret to its headquarters record.
type Index map[string]Establishment

// Lookup returns the headquarters record for key.
func (i Index) Lookup(key string) (Establishment, bool) {
	if i == nil || key == "" {
		return nil, false
	}

	e, ok := i[key]

	return e, ok
}
