package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrdering parses a comma separated ordering such as "name,-created_at".
func ParseOrdering(s string) []DBOrdering {
	var orderings []DBOrdering
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" || field == "-" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		orderings = append(orderings, DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}

// AllowedOrderings keeps orderings whose Field is a key of `columns` and renames them to the mapped column.
func AllowedOrderings(orderings []DBOrdering, columns map[string]string) []DBOrdering {
	allowed := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := columns[ord.Field]; ok {
			allowed = append(allowed, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return allowed
}
