// Package property interprets stored property locators. It never performs
// I/O: a locator either names an inline value or it resolves to nothing.
package property

import (
	"strings"

	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

// Value kinds accepted in aif://values/<kind>/<value>.
const (
	KindPlain  = "plain"
	KindSecret = "secret"
)

// Resolve returns the value a property points at. It reports false when the
// property is nil, its locator is not a values URI with exactly two parts,
// or the value kind is not plain or secret.
func Resolve(p *models.PropertyValue) (string, bool) {
	if p == nil {
		return "", false
	}
	u, ok := uri.Parse(p.ValueURI)
	if !ok || u.Category != uri.CategoryValues || len(u.Parts) != 2 {
		return "", false
	}
	switch u.Parts[0] {
	case KindPlain, KindSecret:
		return u.Parts[1], true
	}
	return "", false
}

// ResolveOr is Resolve with a fallback for unset or empty values.
func ResolveOr(p *models.PropertyValue, def string) string {
	if v, ok := Resolve(p); ok && v != "" {
		return v
	}
	return def
}

// Encode wraps a raw value into a values locator. Empty values encode to "".
func Encode(value string, secret bool) string {
	if value == "" {
		return ""
	}
	kind := KindPlain
	if secret {
		kind = KindSecret
	}
	return uri.MustBuild(uri.ValueScheme, uri.CategoryValues, kind, value)
}

// EncodeInput stores an incoming update. A value that already parses as a
// resource URI (e.g. a cloud secret reference) is kept verbatim.
func EncodeInput(value string, secret bool) string {
	if _, ok := uri.Parse(value); ok {
		return value
	}
	return Encode(value, secret)
}

// Mask replaces every character with '*'.
func Mask(s string) string {
	return strings.Repeat("*", len([]rune(s)))
}

// View projects a property for display. Secret values are always masked.
func View(p *models.PropertyValue) *models.PropertyView {
	v := &models.PropertyView{Description: p.Description, Hint: p.Hint, IsSecret: p.IsSecret}
	value, ok := Resolve(p)
	if !ok {
		value = p.ValueURI
	}
	if p.IsSecret {
		value = Mask(value)
	}
	v.Value = value
	return v
}
