package models

import "strings"

// Contact is an emergency contact a user alerts during a panic or
// live-tracking session. Only contacts with Selected=true take part
// in the alert fan-out.
type Contact struct {
	BaseModel
	Name        string `json:"name" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	Selected    bool   `json:"selected"`
	UserID      uint   `json:"user_id" gorm:"not null;index"`
}

// FormattedPhoneNumber strips the raw user-entered number down to a
// leading '+' and digits, the only form used for outbound messaging.
// e.g. "+1 (555) 123-4567" -> "+15551234567"
func (c *Contact) FormattedPhoneNumber() string {
	var b strings.Builder
	for i, r := range c.PhoneNumber {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// SelectedContacts returns the user's contacts that participate in
// alert fan-out, in insertion order.
func SelectedContacts(userID interface{}) ([]Contact, error) {
	contacts := []Contact{}
	err := db.Where("user_id = ? AND selected = ?", userID, true).Order("id asc").Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

func FindContact(userID interface{}, contactID interface{}) (*Contact, error) {
	contact := Contact{}
	err := db.Where("user_id = ?", userID).First(&contact, contactID).Error
	if err != nil {
		return nil, err
	}

	return &contact, nil
}

func DeleteContactsForUser(userID uint) error {
	return db.Where("user_id = ?", userID).Delete(&Contact{}).Error
}
