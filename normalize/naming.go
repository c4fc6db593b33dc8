package normalize

const naturalPersonCategory = "1000"

func isNaturalPerson(ul view) bool {
	return ul.str("categorieJuridiqueUniteLegale") == naturalPersonCategory
}

func salutation(sex string) string {
	switch sex {
	case "F":
		return "MADAME"
	case "M":
		return "MONSIEUR"
	default:
		return ""
	}
}

func civility(sex string) string {
	switch sex {
	case "F":
		return "2"
	case "M":
		return "1"
	default:
		return ""
	}
}

// displayName is the first address line of the legal unit: civility, usual
// first name and usage (or birth) name for a natural person, the
// denomination otherwise.
func displayName(ul view) string {
	if !isNaturalPerson(ul) {
		return ul.str("denominationUniteLegale")
	}

	sex := salutation(ul.str("sexeUniteLegale"))

	name := ul.str("nomUsageUniteLegale")
	if name == "" {
		name = ul.str("nomUniteLegale")
	}

	return joinNonEmpty(" ", sex, ul.str("prenomUsuelUniteLegale"), name)
}

// longName is the NOMEN_LONG layout: NOM*USAGE/PRENOMS/ or NOM*PRENOMS/.
func longName(ul view) string {
	if !isNaturalPerson(ul) {
		return ul.str("denominationUniteLegale")
	}

	name := ul.str("nomUniteLegale")
	firstNames := joinNonEmpty(" ",
		ul.str("prenom1UniteLegale"),
		ul.str("prenom2UniteLegale"),
		ul.str("prenom3UniteLegale"),
		ul.str("prenom4UniteLegale"),
	)

	if usage := ul.str("nomUsageUniteLegale"); usage != "" {
		return name + "*" + usage + "/" + firstNames + "/"
	}

	return name + "*" + firstNames + "/"
}
