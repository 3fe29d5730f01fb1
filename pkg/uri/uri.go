// Package uri builds and parses the resource identifiers used to address
// agents, models and stored property values:
//
//	<scheme>://<category>/<part>[/<part>...][?<key>=<value>[&<key>=<value>...]]
//
// The scheme is a provider id (e.g. "ollama") or the reserved value scheme "aif".
package uri

import (
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Category is the closed set of resource kinds a URI can address.
type Category string

const (
	CategoryAgents Category = "agents"
	CategoryModels Category = "models"
	CategoryValues Category = "values"
)

// ValueScheme is the reserved scheme for stored property values.
const ValueScheme = "aif"

// ErrInvalidArgument is returned by Build when the inputs cannot form a URI.
var ErrInvalidArgument = errors.New("uri: invalid argument")

// ResourceURI is the parsed form of a resource identifier.
type ResourceURI struct {
	Scheme   string
	Category Category
	Parts    []string
	Params   map[string]string
}

var pattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.\-]*)://([^/?]+)/([^?]+)(?:\?(.*))?$`)

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryAgents, CategoryModels, CategoryValues:
		return true
	}
	return false
}

// Build serializes a URI. Parts are path-escaped and parameters are emitted
// in key order so the output is deterministic.
func Build(scheme string, category Category, parts []string, params map[string]string) (string, error) {
	if len(parts) == 0 {
		return "", errors.Join(ErrInvalidArgument, errors.New("at least one part is required"))
	}
	if scheme == "" || !category.Valid() {
		return "", errors.Join(ErrInvalidArgument, errors.New("scheme and a known category are required"))
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(string(category))
	for _, p := range parts {
		if p == "" {
			return "", errors.Join(ErrInvalidArgument, errors.New("empty part"))
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			if k == "" {
				return "", errors.Join(ErrInvalidArgument, errors.New("empty parameter key"))
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(params[k]))
		}
	}
	return b.String(), nil
}

// MustBuild is Build for inputs known to be valid at compile time.
func MustBuild(scheme string, category Category, parts ...string) string {
	s, err := Build(scheme, category, parts, nil)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse accepts any scheme. The boolean is false when raw is not a
// recognized resource URI; that is an expected outcome, not an error.
func Parse(raw string) (*ResourceURI, bool) {
	return parse("", raw)
}

// ParseWithScheme is Parse that additionally requires the scheme to equal scheme.
func ParseWithScheme(scheme, raw string) (*ResourceURI, bool) {
	if scheme == "" {
		return nil, false
	}
	return parse(scheme, raw)
}

func parse(scheme, raw string) (*ResourceURI, bool) {
	m := pattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	if scheme != "" && m[1] != scheme {
		return nil, false
	}
	category := Category(m[2])
	if !category.Valid() {
		return nil, false
	}

	segments := strings.Split(m[3], "/")
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			return nil, false
		}
		p, err := url.PathUnescape(s)
		if err != nil {
			return nil, false
		}
		parts = append(parts, p)
	}

	params := map[string]string{}
	// A "?" present in the raw string must be followed by at least one pair.
	if strings.Contains(raw, "?") {
		if m[4] == "" {
			return nil, false
		}
		for _, pair := range strings.Split(m[4], "&") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k == "" {
				return nil, false
			}
			key, err := url.QueryUnescape(k)
			if err != nil {
				return nil, false
			}
			val, err := url.QueryUnescape(v)
			if err != nil {
				return nil, false
			}
			if _, dup := params[key]; dup {
				return nil, false
			}
			params[key] = val
		}
	}

	return &ResourceURI{Scheme: m[1], Category: category, Parts: parts, Params: params}, true
}

// String re-serializes the URI. It returns "" for a URI that Build rejects.
func (u *ResourceURI) String() string {
	s, err := Build(u.Scheme, u.Category, u.Parts, u.Params)
	if err != nil {
		return ""
	}
	return s
}

// Param returns a parameter value or def when absent.
func (u *ResourceURI) Param(key, def string) string {
	if v, ok := u.Params[key]; ok {
		return v
	}
	return def
}

// Last returns the final path part, which names the addressed resource.
func (u *ResourceURI) Last() string {
	return u.Parts[len(u.Parts)-1]
}
