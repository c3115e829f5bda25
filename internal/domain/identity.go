package domain

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var errIllegalKeyChars = errors.New("key must not contain path separators")

// NormalizeKey canonicalizes an identity key so visually identical keys
// typed on different systems compare equal: NFC form, trimmed, inner
// whitespace runs collapsed to a single underscore.
func NormalizeKey(key string) string {
	key = norm.NFC.String(strings.TrimSpace(key))
	return strings.Join(strings.Fields(key), "_")
}

// IdentityKey builds the "<roll>_<name>" key used for enrolled students
func IdentityKey(roll, name string) string {
	roll = NormalizeKey(roll)
	name = NormalizeKey(name)
	switch {
	case roll == "":
		return name
	case name == "":
		return roll
	}
	return roll + "_" + name
}

// ValidateKey normalizes key and rejects empty results
func ValidateKey(key string) (string, error) {
	k := NormalizeKey(key)
	if k == "" {
		return "", ErrInvalidIdentityKey
	}
	if strings.ContainsAny(k, "/\\") {
		return "", ErrInvalidIdentityKey.WithError(errIllegalKeyChars)
	}
	return k, nil
}
