package types

import (
	"database/sql/driver"
	"encoding/json"
)

// StringList is a JSONB-backed list of strings.
type StringList []string

// Value marshals the list into JSON for Postgres.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the list.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var out []string
	if err := scanJSON(value, &out, "string list"); err != nil {
		return err
	}
	*l = out
	return nil
}

// Contains reports whether the list holds value.
func (l StringList) Contains(value string) bool {
	for _, candidate := range l {
		if candidate == value {
			return true
		}
	}
	return false
}

// ZoneMaps maps a zone name to the URL of its floor map.
type ZoneMaps map[string]string

// Value marshals the map into JSON for Postgres.
func (m ZoneMaps) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the map.
func (m *ZoneMaps) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	out := make(map[string]string)
	if err := scanJSON(value, &out, "zone maps"); err != nil {
		return err
	}
	*m = out
	return nil
}
