package guardianname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		name         string
		fullName     string
		childSurname string
		email        string
		wantFirst    string
		wantLast     string
	}{
		{
			name:      "two part name",
			fullName:  "Amina Okafor",
			wantFirst: "Amina",
			wantLast:  "Okafor",
		},
		{
			name:      "multi part name joins the remainder",
			fullName:  "Maria del Carmen Reyes",
			wantFirst: "Maria",
			wantLast:  "del Carmen Reyes",
		},
		{
			name:         "single word uses the child surname",
			fullName:     "Amina",
			childSurname: "Okafor",
			wantFirst:    "Amina",
			wantLast:     "Okafor",
		},
		{
			name:      "single word without child surname repeats it",
			fullName:  "Amina",
			wantFirst: "Amina",
			wantLast:  "Amina",
		},
		{
			name:         "empty name derives from email",
			fullName:     "",
			childSurname: "",
			email:        "amina.okafor@example.com",
			wantFirst:    "Amina",
			wantLast:     "Okafor",
		},
		{
			name:         "empty name prefers the child surname over the email",
			fullName:     "",
			childSurname: "Mwangi",
			email:        "amina.okafor@example.com",
			wantFirst:    "Amina",
			wantLast:     "Mwangi",
		},
		{
			name:      "nothing usable falls back to placeholders",
			fullName:  "",
			email:     "@example.com",
			wantFirst: "Guardian",
			wantLast:  "Guardian",
		},
		{
			name:      "whitespace only counts as empty",
			fullName:  "   ",
			email:     "zed@example.com",
			wantFirst: "Zed",
			wantLast:  "Guardian",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, last := Split(tc.fullName, tc.childSurname, tc.email)
			assert.Equal(t, tc.wantFirst, first)
			assert.Equal(t, tc.wantLast, last)
		})
	}
}

func TestDeriveFromEmail(t *testing.T) {
	t.Run("splits on common separators", func(t *testing.T) {
		first, last := DeriveFromEmail("john_k-doe@example.com")
		assert.Equal(t, "John", first)
		assert.Equal(t, "Doe", last)
	})

	t.Run("single segment yields first only", func(t *testing.T) {
		first, last := DeriveFromEmail("amina@example.com")
		assert.Equal(t, "Amina", first)
		assert.Empty(t, last)
	})

	t.Run("unusable local part yields nothing", func(t *testing.T) {
		first, last := DeriveFromEmail("@example.com")
		assert.Empty(t, first)
		assert.Empty(t, last)
	})
}
