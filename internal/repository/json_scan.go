package repository

import (
	"encoding/json"
)

// entitiesScanner reads the jsonb entities column. NULL and empty values
// become an empty map.
type entitiesScanner struct {
	dst *map[string][]string
}

func (s entitiesScanner) Scan(src any) error {
	if s.dst == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case map[string]any:
		// pgx decodes jsonb into a generic map when scanning into any.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b = raw
	}
	out := map[string][]string{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
	}
	*s.dst = out
	return nil
}

func entitiesJSON(m map[string][]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
