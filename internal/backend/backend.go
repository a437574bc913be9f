package backend

import (
	"fmt"
	"strings"
)

// Kind selects the database technology a session targets. The zero value means no
// backend has been selected.
type Kind int

const (
	Relational Kind = iota + 1
	Document
)

const (
	wireRelational = "sqlite"
	wireDocument   = "mongodb"
)

func All() []Kind {
	return []Kind{Relational, Document}
}

func (k Kind) Valid() bool {
	return k == Relational || k == Document
}

// WireName is the lower-cased name used in the query endpoint's database_type field.
func (k Kind) WireName() string {
	switch k {
	case Relational:
		return wireRelational
	case Document:
		return wireDocument
	default:
		return ""
	}
}

func (k Kind) DisplayName() string {
	switch k {
	case Relational:
		return "SQLite"
	case Document:
		return "MongoDB"
	default:
		return "none"
	}
}

func (k Kind) String() string {
	switch k {
	case Relational:
		return "relational"
	case Document:
		return "document"
	default:
		return "unset"
	}
}

// FromWire maps a database_used/database_type value back to a Kind.
func FromWire(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case wireRelational:
		return Relational, true
	case wireDocument:
		return Document, true
	default:
		return 0, false
	}
}

// Parse accepts wire names plus the common aliases users type at a prompt.
func Parse(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case wireRelational, "sql", "relational", "table", "tabular":
		return Relational, nil
	case wireDocument, "mongo", "document", "documents", "nosql":
		return Document, nil
	default:
		return 0, fmt.Errorf("unknown backend %q (want %s or %s)", raw, wireRelational, wireDocument)
	}
}
