package mpesa

import "testing"

func TestNormalizePhone(t *testing.T) {
	valid := map[string]string{
		"0712345678":       "254712345678",
		"0112345678":       "254112345678",
		"+254712345678":    "254712345678",
		"254712345678":     "254712345678",
		"712345678":        "254712345678",
		"112345678":        "254112345678",
		" 0712-345 678 ":   "254712345678",
		"(+254) 712345678": "254712345678",
	}
	for in, want := range valid {
		got, err := NormalizePhone(in)
		if err != nil || got != want {
			t.Errorf("NormalizePhone(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, in := range []string{"", "12345", "0812345678", "25471234567", "2547123456789", "07123abc78", "255712345678"} {
		_, err := NormalizePhone(in)
		ie, ok := IsInitiationError(err)
		if !ok || ie.Kind != ErrKindInvalidPhone {
			t.Errorf("NormalizePhone(%q) err = %v, want invalid phone", in, err)
		}
	}
}
