package payout

import (
	"strings"
)

// NumberPlan describes the MSISDN scheme a carrier accepts.
type NumberPlan struct {
	CountryCode    string   // without "+"
	Prefixes       []string // national prefixes without the trunk "0"
	NationalDigits int      // length of the national number without trunk "0"
}

// MTNRwanda is the numbering scheme of the supported mobile-money carrier.
var MTNRwanda = NumberPlan{
	CountryCode:    "250",
	Prefixes:       []string{"78", "79"},
	NationalDigits: 9,
}

// national strips separators, the international prefix and the trunk zero.
// ok is false when the result is not a plausible national number.
func (p NumberPlan) national(phone string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "00"+p.CountryCode) {
		s = s[2+len(p.CountryCode):]
	} else if strings.HasPrefix(s, p.CountryCode) && len(s) == len(p.CountryCode)+p.NationalDigits {
		s = s[len(p.CountryCode):]
	}
	if len(s) == p.NationalDigits+1 && s[0] == '0' {
		s = s[1:]
	}

	if len(s) != p.NationalDigits {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

// Validate reports whether phone belongs to the plan's carrier.
func (p NumberPlan) Validate(phone string) bool {
	n, ok := p.national(phone)
	if !ok {
		return false
	}
	for _, prefix := range p.Prefixes {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

// Format returns phone in international form without "+", e.g. 250788123456.
// Numbers that do not validate are returned unchanged.
func (p NumberPlan) Format(phone string) string {
	if !p.Validate(phone) {
		return phone
	}
	n, _ := p.national(phone)
	return p.CountryCode + n
}
