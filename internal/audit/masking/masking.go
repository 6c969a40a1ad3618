package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are masked wherever they appear in audit metadata.
var sensitiveKeys = map[string]struct{}{
	"phone":          {},
	"msisdn":         {},
	"email":          {},
	"external_tx_id": {},
	"reference":      {},
}

// MaskSecret redacts a value while keeping the last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskPhone keeps a leading '+' and country prefix visible.
func MaskPhone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 7 {
		return maskToken
	}
	return trimmed[:4] + maskToken + trimmed[len(trimmed)-3:]
}

// MaskMetadata returns a copy of input with sensitive keys masked.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; !ok {
			return cast
		}
		if strings.EqualFold(key, "phone") || strings.EqualFold(key, "msisdn") {
			return MaskPhone(cast)
		}
		return MaskSecret(cast)
	case map[string]any:
		return MaskMetadata(cast)
	default:
		return value
	}
}
