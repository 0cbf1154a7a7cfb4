package catalog

// Merge combines incoming items into existing, deduplicating by RepoID.
// First occurrence keeps its position; later occurrences update mutable
// fields in place. Optional fields that were already resolved
// (ParameterCount, ContextLength) are sticky: an incoming nil never clears
// them, so a slow enrichment fetch cannot be undone by a less informative
// source arriving afterwards. The inputs are not mutated.
func Merge(existing, incoming []Item) []Item {
	out := make([]Item, len(existing))
	copy(out, existing)
	index := make(map[string]int, len(out))
	for i, it := range out {
		index[it.RepoID] = i
	}
	for _, in := range incoming {
		if in.RepoID == "" {
			continue
		}
		i, seen := index[in.RepoID]
		if !seen {
			index[in.RepoID] = len(out)
			out = append(out, in)
			continue
		}
		out[i] = overlay(out[i], in)
	}
	return out
}

// overlay applies in on top of base, last-merged wins except for sticky
// optionals and empty incoming fields.
func overlay(base, in Item) Item {
	merged := in
	if merged.ParameterCount == nil {
		merged.ParameterCount = base.ParameterCount
	}
	if merged.ContextLength == nil {
		merged.ContextLength = base.ContextLength
	}
	if merged.Author == "" {
		merged.Author = base.Author
	}
	if merged.PipelineTag == "" {
		merged.PipelineTag = base.PipelineTag
	}
	if merged.License == "" {
		merged.License = base.License
	}
	if len(merged.Tags) == 0 {
		merged.Tags = base.Tags
	}
	if len(merged.Languages) == 0 {
		merged.Languages = base.Languages
	}
	if len(merged.Files) == 0 {
		merged.Files = base.Files
	}
	if merged.LastModified.IsZero() {
		merged.LastModified = base.LastModified
	}
	if merged.Downloads == 0 {
		merged.Downloads = base.Downloads
	}
	if merged.Likes == 0 {
		merged.Likes = base.Likes
	}
	if merged.Origin == "" {
		merged.Origin = base.Origin
	}
	return merged
}

// Dedup collapses a single list by RepoID, preserving first-seen order and
// folding duplicates with the same sticky-field rules as Merge.
func Dedup(items []Item) []Item {
	return Merge(nil, items)
}
