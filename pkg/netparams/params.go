// Package netparams implements the case-insensitive, auto-coercing
// configuration bag that selects and configures a transport (method, host,
// port, timeout, and so on). It is deliberately separate from the process's
// CLI flags: a [Params] value describes one logical link, and an application
// may hold many of them (one per configured connection), while CLI flags
// configure the process as a whole.
package netparams

import (
	"strconv"
	"strings"
)

// Params wraps a raw string-keyed configuration map and coerces values to
// int, float64, bool, or []any on read, the same way a loosely-typed
// configuration file would be interpreted by a dynamic-language client.
type Params struct {
	raw map[string]string
}

// New builds a [Params] from a map of configuration keys to string values.
// Keys are lower-cased on entry, so lookups are case-insensitive.
func New(raw map[string]string) Params {
	p := Params{raw: make(map[string]string, len(raw))}
	for k, v := range raw {
		p.raw[strings.ToLower(k)] = v
	}
	return p
}

// Has reports whether key is present in the configuration, regardless of case.
func (p Params) Has(key string) bool {
	if p.raw == nil {
		return false
	}
	_, ok := p.raw[strings.ToLower(key)]
	return ok
}

// Get returns the coerced value for key, or nil if key is absent.
func (p Params) Get(key string) any {
	if !p.Has(key) {
		return nil
	}
	return castDataType(p.raw[strings.ToLower(key)])
}

// GetDefault returns the coerced value for key, or def if key is absent.
func (p Params) GetDefault(key string, def any) any {
	if !p.Has(key) {
		return def
	}
	return p.Get(key)
}

// String returns key's value as a string, or "" if absent or not a string.
func (p Params) String(key string) string {
	v, _ := p.Get(key).(string)
	return v
}

// StringDefault returns key's value as a string, or def if absent.
func (p Params) StringDefault(key, def string) string {
	if !p.Has(key) {
		return def
	}
	return p.String(key)
}

// Int returns key's value as an int, coercing a float if needed.
func (p Params) Int(key string) int {
	switch v := p.Get(key).(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// IntDefault returns key's value as an int, or def if absent.
func (p Params) IntDefault(key string, def int) int {
	if !p.Has(key) {
		return def
	}
	return p.Int(key)
}

// Bool returns key's value as a bool.
func (p Params) Bool(key string) bool {
	v, _ := p.Get(key).(bool)
	return v
}

// BoolDefault returns key's value as a bool, or def if absent.
func (p Params) BoolDefault(key string, def bool) bool {
	if !p.Has(key) {
		return def
	}
	return p.Bool(key)
}

// RequireKeys returns the list of keys in need that are missing from p.
// An empty result means every required key is present.
func (p Params) RequireKeys(need ...string) []string {
	var missing []string
	for _, k := range need {
		if !p.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// castDataType coerces a single raw string value to int, float64, bool,
// []any (comma-separated), or leaves it as a string. Numeric literals win
// over boolean/list interpretation; TRUE/FALSE is case-insensitive; a comma
// anywhere in the value triggers list splitting, with each element coerced
// recursively.
func castDataType(v string) any {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}

	switch strings.ToUpper(v) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}

	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		out := make([]any, len(parts))
		for i, part := range parts {
			out[i] = castDataType(part)
		}
		return out
	}

	return v
}
