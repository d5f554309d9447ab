package entity

// Command parameter extraction helpers. Bus payloads arrive as generic JSON,
// so numbers may be float64, int, or numeric strings.

func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func paramInt(params map[string]any, key string, fallback int) int {
	f, ok := paramFloat(params, key)
	if !ok {
		return fallback
	}
	return int(f)
}

func paramString(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}
