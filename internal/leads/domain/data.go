package domain

import "fmt"

// MergeData folds newly extracted facts into an existing lead data document
// without ever overwriting what is already there. Scalars only fill empty
// slots, nested objects merge recursively, and lists grow by appending
// values not already present. Type conflicts keep the existing value.
func MergeData(existing, incoming map[string]any) map[string]any {
	if existing == nil {
		existing = map[string]any{}
	}
	for key, newVal := range incoming {
		oldVal, ok := existing[key]
		if !ok || isEmptyValue(oldVal) {
			existing[key] = newVal
			continue
		}
		oldMap, oldIsMap := oldVal.(map[string]any)
		newMap, newIsMap := newVal.(map[string]any)
		if oldIsMap && newIsMap {
			existing[key] = MergeData(oldMap, newMap)
			continue
		}
		oldList, oldIsList := oldVal.([]any)
		newList, newIsList := newVal.([]any)
		if oldIsList && newIsList {
			existing[key] = appendMissing(oldList, newList)
			continue
		}
		// Existing scalar wins. Corrections are a staff action, not
		// something automation does on its own.
	}
	return existing
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func appendMissing(dst, src []any) []any {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[fmt.Sprint(v)] = true
	}
	for _, v := range src {
		key := fmt.Sprint(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, v)
	}
	return dst
}

// Namespace returns the nested object stored under key, creating it in the
// document when absent. Flow state keepers use this to get a private corner
// of the lead data without clobbering sibling facts.
func Namespace(doc map[string]any, key string) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	if sub, ok := doc[key].(map[string]any); ok {
		return sub
	}
	sub := map[string]any{}
	doc[key] = sub
	return sub
}

// StringField reads a string value from a data document, returning "" when
// the key is absent or holds a different type.
func StringField(doc map[string]any, key string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[key].(string)
	return s
}
