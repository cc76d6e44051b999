package mpesa

import (
	"regexp"
	"strings"
)

var msisdn = regexp.MustCompile(`^254[17][0-9]{8}$`)

// NormalizePhone converts the local formats users type (07XXXXXXXX,
// 01XXXXXXXX, +2547XXXXXXXX, 7XXXXXXXX) into the 2547XXXXXXXX /
// 2541XXXXXXXX form the gateway expects.
func NormalizePhone(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '+':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case (strings.HasPrefix(s, "7") || strings.HasPrefix(s, "1")) && len(s) == 9:
		s = "254" + s
	}
	if !msisdn.MatchString(s) {
		return "", &InitiationError{Kind: ErrKindInvalidPhone, Message: "invalid phone number " + raw}
	}
	return s, nil
}
