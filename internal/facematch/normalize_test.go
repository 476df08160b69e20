package facematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "accents", input: "Jan Novák", want: "jan_novak"},
		{name: "czech", input: "Žluťoučký kůň", want: "zlutoucky_kun"},
		{name: "separator runs", input: "  Jiří -- Dvořák ", want: "jiri_dvorak"},
		{name: "dash", input: "jan-novak", want: "jan_novak"},
		{name: "upper case", input: "JOHN DOE", want: "john_doe"},
		{name: "uuid", input: "0b6f3c9e-1a2b-4c5d-8e9f-abcdef012345", want: "0b6f3c9e_1a2b_4c5d_8e9f_abcdef012345"},
		{name: "apostrophe", input: "O'Brien", want: "o_brien"},
		{name: "digits", input: "Unknown 7", want: "unknown_7"},
		{name: "only symbols", input: "?!", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Slug(tc.input))
		})
	}
}

func TestSlugSameIdentity(t *testing.T) {
	assert.Equal(t, Slug("Jiří Dvořák"), Slug("jiri-dvorak"))
	assert.NotEqual(t, Slug("Jan Novak"), Slug("Jana Novak"))
}
