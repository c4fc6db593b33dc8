package sirene

import "strings"

// HeadquartersFields are the fields requested when resolving headquarters.
var HeadquartersFields = []string{
	"siren",
	"nic",
	"siret",
	"etablissementSiege",
	"codeCommuneEtablissement",
	"codePaysEtrangerEtablissement",
}

// UpdatesQuery selects establishments processed on date (AAAA-MM-JJ).
func UpdatesQuery(date string) string {
	return "dateDernierTraitementEtablissement:" + date
}

// ProspectsQuery selects active establishments whose current period has one
// of the given NAF codes.
func ProspectsQuery(nafCodes []string) string {
	return "periode(etatAdministratifEtablissement:A AND (" + disjunction("activitePrincipaleEtablissement", nafCodes) + "))"
}

// SiretQuery selects the given sirets.
func SiretQuery(sirets []string) string {
	return disjunction("siret", sirets)
}

func disjunction(field string, values []string) string {
	terms := make([]string, 0, len(values))
	for _, v := range values {
		terms = append(terms, field+":"+v)
	}

	return strings.Join(terms, " OR ")
}
