// Package geo holds the static French administrative reference tables used
// when building export rows.
package geo

// Regions maps a region code (RPEN) to the department prefixes it contains.
// Overseas territories are listed with their 3 character prefixes.
// https://www.sirene.fr/sirene/public/variable/rpen
var Regions = NewTable(map[string][]string{
	"01": {"971"},
	"02": {"972"},
	"03": {"973"},
	"04": {"974"},
	"06": {"976"},
	"07": {"977"},
	"08": {"978"},
	"11": {"75", "77", "78", "91", "92", "93", "94", "95"},
	"24": {"18", "28", "36", "37", "41", "45"},
	"27": {"21", "25", "39", "58", "70", "71", "89", "90"},
	"28": {"14", "27", "50", "61", "76"},
	"32": {"02", "59", "60", "62", "80"},
	"44": {"08", "10", "51", "52", "54", "55", "57", "67", "68", "88"},
	"52": {"44", "49", "53", "72", "85"},
	"53": {"22", "29", "35", "56"},
	"75": {"16", "17", "19", "23", "24", "33", "40", "47", "64", "79", "86", "87"},
	"76": {"09", "11", "12", "30", "31", "32", "34", "46", "48", "65", "66", "81", "82"},
	"84": {"01", "03", "07", "15", "26", "38", "42", "43", "63", "69", "73", "74"},
	"93": {"04", "05", "06", "13", "83", "84"},
	"94": {"2A", "2B"},
	"98": {"975", "984", "986", "987", "988"},
	"99": {"99"},
})

// Table is an immutable reverse index from department prefix to region code.
type Table struct {
	byPrefix map[string]string
}

// NewTable builds a Table from a region -> prefixes mapping. When a prefix is
// listed under several regions the greatest region code wins, so the result
// does not depend on map iteration order.
func NewTable(regions map[string][]string) *Table {
	t := &Table{byPrefix: make(map[string]string)}

	for region, prefixes := range regions {
		for _, prefix := range prefixes {
			if current, ok := t.byPrefix[prefix]; ok && current > region {
				continue
			}

			t.byPrefix[prefix] = region
		}
	}

	return t
}

// Region returns the region containing code, trying its first 3 characters
// and then its first 2. An empty string means no region matched.
func (t *Table) Region(code string) string {
	for _, n := range []int{3, 2} {
		if len(code) < n {
			continue
		}

		if region, ok := t.byPrefix[code[:n]]; ok {
			return region
		}
	}

	return ""
}
