package ngram

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize composes s to NFC and lower-cases it. Seeds passed to a Generator
// should go through Normalize so they match the histories seen in training.
func Normalize(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Prepare normalizes raw text for training and prefixes it with order
// sentinels so that every position has a full history.
func Prepare(raw string, order int) string {
	if order < 0 {
		order = 0
	}
	return strings.Repeat(string(Sentinel), order) + Normalize(raw)
}
