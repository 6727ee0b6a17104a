// Package settings implements the two-tier configuration store:
// ownership-specific rows override system-wide rows, which override
// caller-supplied defaults. Values are raw strings decoded through a
// valueType discriminator.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueType discriminates how a setting's raw value decodes
type ValueType string

// Supported value types
const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeDecimal ValueType = "decimal"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
	TypeArray   ValueType = "array"
)

// Valid reports whether v is a known value type
func (v ValueType) Valid() bool {
	switch v {
	case TypeString, TypeInteger, TypeDecimal, TypeBoolean, TypeJSON, TypeArray:
		return true
	}
	return false
}

// SystemSetting is one configuration row. OwnershipID nil means the row is
// system-wide. (ownershipId, key) is unique.
type SystemSetting struct {
	ID          int64     `json:"id"`
	OwnershipID *int64    `json:"ownership_id,omitempty"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	ValueType   ValueType `json:"value_type"`
	Group       string    `json:"group"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SystemWide reports whether the row applies to all ownerships
func (s *SystemSetting) SystemWide() bool {
	return s.OwnershipID == nil
}

// Decode converts the raw value according to the value type
func (s *SystemSetting) Decode() (interface{}, error) {
	return DecodeValue(s.Value, s.ValueType)
}

// DecodeValue converts a raw string according to a value type
func DecodeValue(raw string, valueType ValueType) (interface{}, error) {
	switch valueType {
	case TypeInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer setting value %q: %w", raw, err)
		}
		return v, nil
	case TypeDecimal:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal setting value %q: %w", raw, err)
		}
		return v, nil
	case TypeBoolean:
		return ParseBool(raw), nil
	case TypeJSON, TypeArray:
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid %s setting value %q: %w", valueType, raw, err)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// ParseBool interprets a raw setting string as a truthy value.
// "1", "true", "yes", "on" (case-insensitive) are true.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
