package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB represents a JSONB database type
type JSONB map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface
func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
}

// String returns the value under key when it is a string.
func (j JSONB) String(key string) string {
	if j == nil {
		return ""
	}
	s, _ := j[key].(string)
	return s
}

// Bool returns the value under key when it is a boolean.
func (j JSONB) Bool(key string) bool {
	if j == nil {
		return false
	}
	b, _ := j[key].(bool)
	return b
}

// Int64 returns the value under key when it is a whole number. Values read
// back from the database arrive as float64.
func (j JSONB) Int64(key string) (int64, bool) {
	if j == nil {
		return 0, false
	}
	switch v := j[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), v == float64(int64(v))
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
