package rules

// ResolveFilter computes the admitted subset of catalog for one filter
// dimension. It is a pure function: mode "none" admits the whole catalog,
// "include" admits the intersection with Selected, and "exclude" admits the
// catalog minus Selected. Output preserves catalog order. An include filter
// with an empty selection legitimately admits nothing.
func ResolveFilter(f Filter, catalog []string) []string {
	switch f.Mode {
	case FilterInclude:
		selected := toSet(f.Selected)
		admitted := make([]string, 0, len(f.Selected))
		for _, id := range catalog {
			if selected[id] {
				admitted = append(admitted, id)
			}
		}
		return admitted

	case FilterExclude:
		selected := toSet(f.Selected)
		admitted := make([]string, 0, len(catalog))
		for _, id := range catalog {
			if !selected[id] {
				admitted = append(admitted, id)
			}
		}
		return admitted

	default:
		// "none" (or unset): no restriction.
		admitted := make([]string, len(catalog))
		copy(admitted, catalog)
		return admitted
	}
}

// active reports whether a filter imposes any restriction.
func (f Filter) active() bool {
	return f.Mode == FilterInclude || f.Mode == FilterExclude
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
