package types

import (
	"encoding/json"
	"fmt"
)

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}

func scanJSON(value interface{}, dst any, label string) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}
