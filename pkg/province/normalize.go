// Package province canonicalizes the province labels found in INE exports
// into the keys of a fixed geographic reference set.
//
// INE files prefix every province with its official code ("46 Valencia/València"),
// some exports keep a stray code fragment in front of the name, bilingual
// provinces are written "Local/Castilian" while the reference set uses the
// reverse order, and articles are inverted ("Coruña, A"). Normalize undoes
// all of that and then requires an exact match against the reference set.
package province

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownProvince is matched by every NormalizationError.
var ErrUnknownProvince = errors.New("unknown province")

// NormalizationError reports a label that does not resolve to a reference key.
type NormalizationError struct {
	Raw        string // label as found in the source
	Cleaned    string // label after the rewrite rules
	Suggestion Key    // accent/case-insensitive near miss, if any
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("unknown province %q (normalized %q)", e.Raw, e.Cleaned)
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; did you mean %q?", e.Suggestion)
	}
	return msg
}

func (e *NormalizationError) Is(target error) bool {
	return target == ErrUnknownProvince
}

var leadingCode = regexp.MustCompile(`^\d+\s*`)

// Clean applies the label rewrite rules without validating the result:
// strip the leading numeric code, drop artifactPrefix runes left over by some
// exports, swap "A/B" to "B/A", swap "X, Y" to "Y X", trim.
func Clean(raw string, artifactPrefix int) string {
	s := leadingCode.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)

	if artifactPrefix > 0 {
		r := []rune(s)
		if len(r) > artifactPrefix {
			s = string(r[artifactPrefix:])
		} else {
			s = ""
		}
	}

	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		reverse(parts)
		s = strings.Join(parts, "/")
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		reverse(parts)
		s = strings.Join(parts, " ")
	}

	return norm.NFC.String(strings.TrimSpace(s))
}

// Normalizer resolves raw labels of one source variant against a registry.
type Normalizer struct {
	ref *Registry

	// ArtifactPrefix is the number of runes to drop after the numeric code
	// has been stripped. Zero for most exports.
	ArtifactPrefix int
}

// NewNormalizer returns a normalizer bound to ref (nil means Default()).
func NewNormalizer(ref *Registry, artifactPrefix int) *Normalizer {
	if ref == nil {
		ref = Default()
	}
	return &Normalizer{ref: ref, ArtifactPrefix: artifactPrefix}
}

// Registry returns the reference set the normalizer validates against.
func (n *Normalizer) Registry() *Registry {
	return n.ref
}

// Normalize returns the reference key for raw, or a *NormalizationError.
func (n *Normalizer) Normalize(raw string) (Key, error) {
	cleaned := Clean(raw, n.ArtifactPrefix)
	k := Key(cleaned)
	if n.ref.Contains(k) {
		return k, nil
	}
	e := &NormalizationError{Raw: raw, Cleaned: cleaned}
	if s, ok := n.ref.suggest(cleaned); ok {
		e.Suggestion = s
	}
	return "", e
}

// Normalize resolves raw against the default reference set with no artifact prefix.
func Normalize(raw string) (Key, error) {
	return NewNormalizer(nil, 0).Normalize(raw)
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips accents ("Ávila" -> "avila").
func fold(s string) string {
	out, _, _ := transform.String(stripAccents, strings.ToLower(strings.TrimSpace(s)))
	return out
}

func reverse(parts []string) {
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
}
