package qualifier

// Progress documents round-trip through jsonb, so numbers come back as
// float64 and lists as []any. These readers absorb that.

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func listContains(m map[string]any, key, val string) bool {
	list, _ := m[key].([]any)
	for _, v := range list {
		if s, ok := v.(string); ok && s == val {
			return true
		}
	}
	return false
}

func listAppend(m map[string]any, key, val string) {
	if listContains(m, key, val) {
		return
	}
	list, _ := m[key].([]any)
	m[key] = append(list, val)
}
