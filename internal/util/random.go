// Package util provides utility functions for the chatbot engine.
package util

import (
	"math/rand/v2"
	"strings"
)

// passwordChars leaves out easily confused glyphs (0/O, 1/l/I).
const passwordChars = "0123456789abcdefghijkmnpqrstuvwxyz23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateUsername derives a login username from a person's name, falling back
// to a random suffix when the name yields nothing usable.
// "Juan Pérez" becomes e.g. "jperez384".
func GenerateUsername(name string) string {
	var base strings.Builder
	parts := strings.Fields(strings.ToLower(name))
	if len(parts) > 0 {
		base.WriteByte(parts[0][0])
		if len(parts) > 1 {
			base.WriteString(stripAccents(parts[len(parts)-1]))
		} else {
			base.WriteString(stripAccents(parts[0][1:]))
		}
	}
	if base.Len() == 0 {
		base.WriteString("user")
	}
	return base.String() + GenerateRandomDigits(3)
}

// GeneratePassword generates a random trial password of the specified length.
func GeneratePassword(length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(passwordChars[rand.IntN(len(passwordChars))])
	}
	return builder.String()
}

// GenerateRandomDigits generates a random numeric string of the specified length.
func GenerateRandomDigits(length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(byte('0' + rand.IntN(10)))
	}
	return builder.String()
}

// stripAccents maps common Spanish accented letters to their ASCII base so
// generated usernames stay plain ASCII.
func stripAccents(s string) string {
	replacer := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
		"ü", "u", "ñ", "n",
	)
	return replacer.Replace(s)
}
