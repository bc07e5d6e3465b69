package detector

// ResolveOverlaps makes the ranges of the sections named in priority pairwise
// disjoint, highest priority first. A lower-priority section whose start falls
// inside a higher-priority range starts again on the page after that range; one
// that begins earlier and runs into a higher-priority range is cut short before
// it. A section left with no pages is marked not detected. Higher-priority
// ranges are never changed. Sections not named in priority pass through as is.
// The input slice is not modified.
func ResolveOverlaps(sections []Section, priority []string) []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	for i := range out {
		if out[i].Range != nil {
			r := *out[i].Range
			out[i].Range = &r
		}
	}

	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.Name] = i
	}

	var kept []*PageRange
	for _, name := range priority {
		i, ok := index[name]
		if !ok || out[i].Range == nil {
			continue
		}
		r := out[i].Range
		// Each push can land inside another kept range, so repeat until stable.
		for changed := true; changed && r != nil; {
			changed = false
			for _, h := range kept {
				switch {
				case h.Contains(r.Start):
					r.Start = h.End + 1
					changed = true
				case r.Start < h.Start && r.End >= h.Start:
					r.End = h.Start - 1
					changed = true
				}
				if r.Start > r.End {
					r = nil
					break
				}
			}
		}
		out[i].Range = r
		if r != nil {
			kept = append(kept, r)
		}
	}
	return out
}
