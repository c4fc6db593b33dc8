package normalize

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tpgainz/sirene-export/sirene"
)

// SIRC is the historical Sirene file layout.
var SIRC = NewSchema("sirc",
	"SIREN", "NIC",
	"L1_NORMALISEE", "L2_NORMALISEE", "L3_NORMALISEE", "L4_NORMALISEE", "L5_NORMALISEE", "L6_NORMALISEE", "L7_NORMALISEE",
	"L1_DECLAREE", "L2_DECLAREE", "L3_DECLAREE", "L4_DECLAREE", "L5_DECLAREE", "L6_DECLAREE", "L7_DECLAREE",
	"NUMVOIE", "INDREP", "TYPVOIE", "LIBVOIE", "CODPOS", "CEDEX", "RPET", "LIBREG", "DEPET", "ARRONET", "CTONET",
	"COMET", "LIBCOM", "DU", "TU", "UU", "EPCI", "TCD", "ZEMET", "SIEGE", "ENSEIGNE", "IND_PUBLIPO", "DIFFCOM",
	"AMINTRET", "NATETAB", "LIBNATETAB", "APET700", "LIBAPET", "DAPET", "TEFET", "LIBTEFET", "EFETCENT", "DEFET",
	"ORIGINE", "DCRET", "DDEBACT", "ACTIVNAT", "LIEUACT", "ACTISURF", "SAISONAT", "MODET", "PRODET", "PRODPART",
	"AUXILT", "NOMEN_LONG", "SIGLE", "NOM", "PRENOM", "CIVILITE", "RNA", "NICSIEGE", "RPEN", "DEPCOMEN", "ADR_MAIL",
	"NJ", "LIBNJ", "APEN700", "LIBAPEN", "DAPEN", "APRM", "ESS", "DATEESS", "TEFEN", "LIBTEFEN", "EFENCENT", "DEFEN",
	"CATEGORIE", "DCREN", "AMINTREN", "MONOACT", "MODEN", "PRODEN", "ESAANN", "TCA", "ESAAPEN", "ESASEC1N",
	"ESASEC2N", "ESASEC3N", "ESASEC4N", "VMAJ", "VMAJ1", "VMAJ2", "VMAJ3", "DATEMAJ", "EVE", "DATEVE", "TYPCREH",
	"DREACTET", "DREACTEN", "MADRESSE", "MENSEIGNE", "MAPET", "MPRODET", "MAUXILT", "MNOMEN", "MSIGLE", "MNICSIEGE",
	"MNJ", "MAPEN", "MPRODEN", "SIRETPS", "TEL",
)

func stripDots(code string) string {
	return strings.ReplaceAll(code, ".", "")
}

func stripDashes(date string) string {
	return strings.ReplaceAll(date, "-", "")
}

func mapSIRC(ctx context.Context, n *Normalizer, r view, rec sirene.Establishment) (*Row, string) {
	row := n.schema.NewRow()

	ul := r.object("uniteLegale")
	a := r.object("adresseEtablissement")
	p := r.first("periodesEtablissement")

	month := n.now().Format("200601")

	row.Set("SIREN", r.str("siren"))
	row.Set("NIC", r.str("nic"))

	l1 := displayName(ul)
	l3 := joinNonEmpty(" ", a.str("numeroVoieEtablissement"), a.str("typeVoieEtablissement"), a.str("libelleVoieEtablissement"))
	l6 := joinNonEmpty(" ", a.str("codePostalEtablissement"), a.str("libelleCommuneEtablissement"))

	l7 := "FRANCE"
	if a.str("codePaysEtrangerEtablissement") != "" {
		if country := a.str("libellePaysEtrangerEtablissement"); country != "" {
			l7 = country
		}
	}

	row.Set("L1_NORMALISEE", l1)
	row.Set("L3_NORMALISEE", l3)
	row.Set("L6_NORMALISEE", l6)
	row.Set("L7_NORMALISEE", l7)
	row.Set("L1_DECLAREE", l1)
	row.Set("L3_DECLAREE", l3)
	row.Set("L7_DECLAREE", l7)

	commune := a.str("codeCommuneEtablissement")

	row.Set("NUMVOIE", a.str("numeroVoieEtablissement"))
	row.Set("INDREP", a.str("indiceRepetitionEtablissement"))
	row.Set("TYPVOIE", a.str("typeVoieEtablissement"))
	row.Set("LIBVOIE", a.str("libelleVoieEtablissement"))
	row.Set("CODPOS", a.str("codePostalEtablissement"))
	row.Set("CEDEX", a.str("codeCedexEtablissement"))
	row.Set("DEPET", prefix(commune, 2))
	row.Set("COMET", commune)
	row.Set("LIBCOM", a.str("libelleCommuneEtablissement"))

	siege := "0"
	if r.flag("etablissementSiege") {
		siege = "1"
	}

	row.Set("SIEGE", siege)
	row.Set("ENSEIGNE", p.str("enseigne1Etablissement"))
	row.Set("DIFFCOM", "O")
	row.Set("AMINTRET", month)

	activity := p.str("activitePrincipaleEtablissement")
	row.Set("APET700", stripDots(activity))
	row.Set("LIBAPET", activity)

	workforce := r.str("trancheEffectifsEtablissement")
	row.Set("TEFET", workforce)
	row.Set("LIBTEFET", n.workforceLabel(ctx, workforce))
	row.Set("DEFET", r.str("anneeEffectifsEtablissement"))
	row.Set("DCRET", stripDashes(r.str("dateCreationEtablissement")))

	row.Set("NOMEN_LONG", longName(ul))
	row.Set("SIGLE", ul.str("sigleUniteLegale"))
	row.Set("NOM", ul.str("nomUniteLegale"))
	row.Set("PRENOM", ul.str("prenom1UniteLegale"))
	row.Set("CIVILITE", civility(ul.str("sexeUniteLegale")))
	row.Set("RNA", ul.str("identifiantAssociationUniteLegale"))
	row.Set("NICSIEGE", ul.str("nicSiegeUniteLegale"))

	region, code, found := ResolveRegion(rec, n.geo, n.index)
	if !found {
		zerolog.Ctx(ctx).Info().
			Str("siret", rec.Siret()).
			Str("headquarters", rec.HeadquartersKey()).
			Msg("siret has an invalid headquarter")
	}

	row.Set("RPEN", region)
	row.Set("DEPCOMEN", code)

	category := ul.str("categorieJuridiqueUniteLegale")
	row.Set("NJ", category)
	row.Set("LIBNJ", category)

	unitActivity := ul.str("activitePrincipaleUniteLegale")
	row.Set("APEN700", stripDots(unitActivity))
	row.Set("LIBAPEN", unitActivity)
	row.Set("APRM", r.str("activitePrincipaleRegistreMetiersEtablissement"))
	row.Set("ESS", ul.str("economieSocialeSolidaireUniteLegale"))

	unitWorkforce := ul.str("trancheEffectifsUniteLegale")
	row.Set("TEFEN", unitWorkforce)
	row.Set("LIBTEFEN", n.workforceLabel(ctx, unitWorkforce))
	row.Set("DEFEN", ul.str("anneeEffectifsUniteLegale"))
	row.Set("CATEGORIE", ul.str("categorieEntreprise"))
	row.Set("DCREN", ul.str("dateCreationUniteLegale"))
	row.Set("AMINTREN", month)

	status := p.str("etatAdministratifEtablissement")

	switch status {
	case statusActive:
		row.Set("VMAJ", "C")
		row.Set("EVE", "CE")
	case statusClosed:
		row.Set("VMAJ", "O")
		row.Set("EVE", "O")
	}

	processed := r.str("dateDernierTraitementEtablissement")
	row.Set("DATEMAJ", processed)
	row.Set("DATEVE", stripDashes(prefix(processed, 10)))

	return row, status
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
