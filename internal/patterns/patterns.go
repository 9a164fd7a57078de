// Package patterns holds the fixed, ordered catalog of PII categories that
// documents are scanned for.
package patterns

import (
	"fmt"
	"regexp"
)

// Definition is a single PII category. Rule is always compiled
// case-insensitive and is applied to every non-overlapping occurrence.
type Definition struct {
	ID    string
	Rule  *regexp.Regexp
	Label string
	Color string
}

// Category ids
const (
	Aadhaar = "aadhaar"
	Phone   = "phone"
	Email   = "email"
	PAN     = "pan"
	DOB     = "dob"
	Name    = "name"
)

// Declaration order is draw and report precedence; keep it stable.
var registry = []Definition{
	{
		ID:    Aadhaar,
		Rule:  compile(`\b\d{4} ?\d{4} ?\d{4}\b`),
		Label: "Aadhaar Number",
		Color: "#EF4444",
	},
	{
		ID:    Phone,
		Rule:  compile(`(?:\+91[\s-]?)?[6-9]\d{9}\b`),
		Label: "Phone Number",
		Color: "#F97316",
	},
	{
		ID:    Email,
		Rule:  compile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`),
		Label: "Email Address",
		Color: "#EAB308",
	},
	{
		ID:    PAN,
		Rule:  compile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`),
		Label: "PAN Number",
		Color: "#22C55E",
	},
	{
		ID:    DOB,
		Rule:  compile(`\b(?:\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2})\b`),
		Label: "Date of Birth",
		Color: "#3B82F6",
	},
	{
		ID:    Name,
		Rule:  compile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+){1,3}\b`),
		Label: "Potential Name",
		Color: "#A855F7",
	},
}

// compile forces case-insensitive semantics whatever the pattern declares.
func compile(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// Default returns the full catalog in declaration order. The slice is a copy;
// the compiled rules are shared and safe for concurrent use.
func Default() []Definition {
	out := make([]Definition, len(registry))
	copy(out, registry)
	return out
}

// IDs returns the category ids in declaration order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for _, def := range registry {
		ids = append(ids, def.ID)
	}
	return ids
}

// Select returns the definitions named by ids, in declaration order
// regardless of the order of ids. The special id "all" selects everything.
func Select(defs []Definition, ids []string) ([]Definition, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "all" {
			out := make([]Definition, len(defs))
			copy(out, defs)
			return out, nil
		}

		found := false
		for _, def := range defs {
			if def.ID == id {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown category: %s", id)
		}
		wanted[id] = true
	}

	out := make([]Definition, 0, len(wanted))
	for _, def := range defs {
		if wanted[def.ID] {
			out = append(out, def)
		}
	}
	return out, nil
}

// Lookup finds a definition by its display label.
func Lookup(defs []Definition, label string) (Definition, bool) {
	for _, def := range defs {
		if def.Label == label {
			return def, true
		}
	}
	return Definition{}, false
}
