// Package schema introspects the gateway database and renders the table
// descriptors shared with the plan generator and with clients.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Column describes one column of an introspected table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      string `json:"key,omitempty"`
}

// KeyPrimary marks columns that belong to a table's primary key.
const KeyPrimary = "PRI"

// Descriptor maps table names to their ordered column descriptors.
type Descriptor map[string][]Column

// Tables returns the table names in a stable order.
func (d Descriptor) Tables() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Text renders the descriptor as the compact one-table-per-line form embedded
// in the generation prompt and returned to clients for transparency.
func (d Descriptor) Text() string {
	var b strings.Builder
	for _, table := range d.Tables() {
		b.WriteString(table)
		b.WriteString(" (")
		for i, column := range d[table] {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(column.Name)
			b.WriteString(" ")
			b.WriteString(column.Type)
			if !column.Nullable {
				b.WriteString(" NOT NULL")
			}
			if column.Key == KeyPrimary {
				b.WriteString(" PRIMARY KEY")
			}
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// String implements fmt.Stringer.
func (d Descriptor) String() string { return d.Text() }

var _ fmt.Stringer = Descriptor{}
