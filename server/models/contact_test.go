package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormattedPhoneNumber(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{"+1 (555) 123-4567", "+15551234567"},
		{"555.123.4567", "5551234567"},
		{"+234 801 234 5678", "+2348012345678"},
		{"5551234567", "5551234567"},
		{"55+512345", "55512345"}, // '+' only survives in the lead position
	}

	for _, tcase := range testCases {
		t.Run(tcase.raw, func(t *testing.T) {
			contact := Contact{PhoneNumber: tcase.raw}
			assert.Equal(t, tcase.expected, contact.FormattedPhoneNumber())
		})
	}
}

func TestSelectedContacts(t *testing.T) {
	InitializeTestDb()

	user := &User{
		FirstName:   "harvey",
		LastName:    "specter",
		Email:       "harvey@pearson.com",
		Password:    "very-secure",
		PhoneNumber: "+12345678900",
	}
	assert.Nil(t, CreateUser(user))

	assert.Nil(t, user.AddContact(&Contact{Name: "donna", PhoneNumber: "+15551112222", Selected: true}))
	assert.Nil(t, user.AddContact(&Contact{Name: "mike", PhoneNumber: "+15553334444"}))
	assert.Nil(t, user.AddContact(&Contact{Name: "jessica", PhoneNumber: "+15555556666", Selected: true}))

	contacts, err := SelectedContacts(user.ID)
	assert.Nil(t, err)
	assert.Len(t, contacts, 2)

	// Insertion order decides who is "first selected"
	assert.Equal(t, "donna", contacts[0].Name)
	assert.Equal(t, "jessica", contacts[1].Name)
}
