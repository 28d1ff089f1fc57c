package domain

import "strings"

// phoneStripper removes the formatting characters the provider tolerates in
// phone numbers before the digits-only check.
var phoneStripper = strings.NewReplacer("+", "", "-", "", "(", "", ")", "", " ", "")

// NormalizePhoneNumber strips common formatting from a phone number and
// validates what remains: digits only, at least 10 of them. field names the
// input in the returned ValidationError (e.g. "recipient", "did").
func NormalizePhoneNumber(field, raw string) (string, error) {
	n := phoneStripper.Replace(raw)
	if len(n) < 10 {
		return "", &ValidationError{Field: field, Reason: "must contain at least 10 digits"}
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return "", &ValidationError{Field: field, Reason: "must contain digits only"}
		}
	}
	return n, nil
}
