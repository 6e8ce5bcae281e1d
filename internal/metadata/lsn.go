package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// LSN is a SQL Server log sequence number. msdb stores these as numeric(25,0),
// which does not fit in an int64, so the value is kept as its decimal digits.
type LSN string

// ParseLSN validates and normalizes a decimal LSN
func ParseLSN(s string) (LSN, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid LSN %q: must contain only decimal digits", s)
		}
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return LSN(trimmed), nil
}

// IsZero reports whether the LSN is unknown
func (l LSN) IsZero() bool {
	return l == "" || l == "0"
}

// Compare returns -1, 0 or +1 comparing l to other numerically
func (l LSN) Compare(other LSN) int {
	a := strings.TrimLeft(string(l), "0")
	b := strings.TrimLeft(string(other), "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Less reports whether l sorts before other
func (l LSN) Less(other LSN) bool {
	return l.Compare(other) < 0
}

func (l LSN) String() string {
	if l == "" {
		return "0"
	}
	return string(l)
}

// MarshalJSON always writes a string; LSNs overflow float64 precision
func (l LSN) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(l))
}

// UnmarshalJSON accepts both quoted and bare numeric LSNs
func (l *LSN) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*l = ""
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := ParseLSN(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l LSN) MarshalYAML() (interface{}, error) {
	return string(l), nil
}

func (l *LSN) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseLSN(value.Value)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
