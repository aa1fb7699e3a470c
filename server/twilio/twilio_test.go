package twilio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDivideMessage(t *testing.T) {
	testCases := []struct {
		desc          string
		msg           string
		size          int
		expectedParts []string
	}{
		{"short message stays whole", "help me", 1500, []string{"help me"}},
		{"empty message stays whole", "", 1500, []string{""}},
		{"exact fit stays whole", "abcd", 4, []string{"abcd"}},
		{"long message is divided", "abcdefg", 3, []string{"abc", "def", "g"}},
		{"division counts runes not bytes", "🚨🚨🚨🚨🚨", 2, []string{"🚨🚨", "🚨🚨", "🚨"}},
	}

	for _, tcase := range testCases {
		t.Run(tcase.desc, func(t *testing.T) {
			assert.Equal(t, tcase.expectedParts, DivideMessage(tcase.msg, tcase.size))
		})
	}
}

func TestDivideMessageReassembles(t *testing.T) {
	msg := strings.Repeat("a", 4000)
	parts := DivideMessage(msg, maxSegmentLength)

	assert.Len(t, parts, 3)
	assert.Equal(t, msg, strings.Join(parts, ""))
}
