// Package fingerprint derives the stable identity key used to decide whether
// a gallery item has been downloaded before.
package fingerprint

import (
	"strings"
)

// PromptPrefixLen is the number of prompt runes that participate in the
// identity key. The site truncates long prompts differently in the grid and
// the detail view, so only a prefix is compared. Prompts sharing an identical
// 100-rune prefix under the same timestamp collapse to one fingerprint; with
// an exact-to-the-second timestamp in the key this has not been observed to
// collide in practice.
const PromptPrefixLen = 100

// Separator joins the timestamp and prompt prefix in the key. It never
// appears in normalized timestamps.
const Separator = "|"

// Fingerprint is the derived identity key of a gallery item.
type Fingerprint string

// Compute builds the fingerprint for a timestamp / prompt pair. It is a pure
// function: whitespace is normalized and the prompt truncated identically no
// matter which view the fields were read from, so grid-side and detail-side
// computations always agree.
func Compute(timestamp, prompt string) Fingerprint {
	return Fingerprint(normalize(timestamp) + Separator + Prefix(prompt))
}

// Prefix returns the normalized prompt prefix that participates in the key.
func Prefix(prompt string) string {
	p := normalize(prompt)
	runes := []rune(p)
	if len(runes) > PromptPrefixLen {
		return string(runes[:PromptPrefixLen])
	}
	return p
}

// Parse splits a fingerprint back into its timestamp and prompt-prefix
// parts. ok is false when s does not contain the separator.
func Parse(s string) (timestamp, prefix string, ok bool) {
	timestamp, prefix, ok = strings.Cut(s, Separator)
	return
}

// normalize trims the string and collapses internal whitespace runs to a
// single space. Rendered DOM text frequently differs only in whitespace
// between the grid and the detail view.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
