package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegion(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"75056", "11"},
		{"2A004", "94"},
		{"97105", "01"},
		{"97502", "98"},
		{"99132", "99"},
		{"13055", "93"},
		{"00000", ""},
		{"7", ""},
		{"", ""},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, Regions.Region(test.code), "Region(%q)", test.code)
	}
}

func TestRegionFallsBackToTwoCharacters(t *testing.T) {
	table := NewTable(map[string][]string{
		"01": {"971"},
		"98": {"97"},
	})

	assert.Equal(t, "98", table.Region("9751"))
	assert.Equal(t, "01", table.Region("97105"))
	assert.Equal(t, "", table.Region("8812"))
}

func TestNewTableIsDeterministicOnConflicts(t *testing.T) {
	table := NewTable(map[string][]string{
		"11": {"75"},
		"12": {"75"},
	})

	for i := 0; i < 20; i++ {
		assert.Equal(t, "12", table.Region("75001"))
	}
}

func TestWorkforceLabel(t *testing.T) {
	label, ok := WorkforceLabel("53")
	assert.True(t, ok)
	assert.Equal(t, "10 000 salariés et plus", label)

	label, ok = WorkforceLabel("NN")
	assert.True(t, ok)
	assert.Equal(t, "Unités non employeuses", label)

	_, ok = WorkforceLabel("99")
	assert.False(t, ok)
}
