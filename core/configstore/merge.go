package configstore

// DeepMerge merges src into dst and returns dst. Nested maps merge
// recursively; scalars and lists in src replace dst values wholesale.
// dst is the accumulator and is mutated in place; src is never mutated,
// and nested dst maps are copied before merging so src values are not
// written into maps the caller may share.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := asMap(srcVal)
		if !srcIsMap {
			dst[key] = srcVal
			continue
		}
		dstMap, dstIsMap := asMap(dst[key])
		if !dstIsMap {
			dst[key] = DeepMerge(map[string]any{}, srcMap)
			continue
		}
		dst[key] = DeepMerge(copyMap(dstMap), srcMap)
	}
	return dst
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
