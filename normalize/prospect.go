package normalize

import (
	"context"
	"time"

	"github.com/Tpgainz/sirene-export/sirene"
)

// Prospect is the layout of the prospect extraction (active establishments
// filtered by NAF code).
var Prospect = NewSchema("prospect",
	"Code_INSEE_Commune",
	"Code_NAF",
	"Libellé_NAF",
	"Code_postal",
	"No_Siren",
	"Connu_Siren",
	"No_Siret",
	"Connu_Siret",
	"Date_de_création_établissement",
	"Raison_sociale",
	"Enseigne",
	"Nom_Prénom",
	"Adresse_postale",
	"Complément_Adresse",
	"Ville",
	"No_Tél",
	"Statut_diffusion",
)

// frenchDate turns AAAA-MM-JJ into JJ/MM/AAAA. Values that do not parse are
// returned as is.
func frenchDate(value string) string {
	if value == "" {
		return ""
	}

	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return value
	}

	return t.Format("02/01/2006")
}

func mapProspect(_ context.Context, n *Normalizer, r view, _ sirene.Establishment) (*Row, string) {
	row := n.schema.NewRow()

	ul := r.object("uniteLegale")
	a := r.object("adresseEtablissement")
	p := r.first("periodesEtablissement")

	activity := p.str("activitePrincipaleEtablissement")

	row.Set("Code_INSEE_Commune", a.str("codeCommuneEtablissement"))
	row.Set("Code_NAF", stripDots(activity))
	row.Set("Libellé_NAF", activity)
	row.Set("Code_postal", a.str("codePostalEtablissement"))
	row.Set("No_Siren", r.str("siren"))
	row.Set("No_Siret", r.str("siret"))
	row.Set("Date_de_création_établissement", frenchDate(r.str("dateCreationEtablissement")))
	row.Set("Raison_sociale", displayName(ul))
	row.Set("Enseigne", p.str("enseigne1Etablissement"))
	row.Set("Nom_Prénom", joinNonEmpty(" ", ul.str("nomUniteLegale"), ul.str("prenom1UniteLegale")))
	row.Set("Adresse_postale", joinNonEmpty(" ",
		a.str("numeroVoieEtablissement"),
		a.str("typeVoieEtablissement"),
		a.str("libelleVoieEtablissement"),
	))
	row.Set("Complément_Adresse", a.str("complementAdresseEtablissement"))
	row.Set("Ville", a.str("libelleCommuneEtablissement"))
	row.Set("Statut_diffusion", "O")

	return row, ""
}
