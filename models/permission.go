package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PermissionLevel is totally ordered: a higher level implies every capability
// of the lower ones. The numeric value is the rank.
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota
	PermissionView
	PermissionEdit
	PermissionAdmin
)

func (p PermissionLevel) String() string {
	switch p {
	case PermissionView:
		return "VIEW"
	case PermissionEdit:
		return "EDIT"
	case PermissionAdmin:
		return "ADMIN"
	default:
		return "NONE"
	}
}

// Satisfies reports whether p grants at least required.
func (p PermissionLevel) Satisfies(required PermissionLevel) bool {
	return p >= required
}

func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VIEW":
		return PermissionView, nil
	case "EDIT":
		return PermissionEdit, nil
	case "ADMIN":
		return PermissionAdmin, nil
	default:
		return PermissionNone, fmt.Errorf("unknown permission level %q", s)
	}
}

func (p PermissionLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PermissionLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.EqualFold(s, "NONE") {
		*p = PermissionNone
		return nil
	}
	level, err := ParsePermissionLevel(s)
	if err != nil {
		return err
	}
	*p = level
	return nil
}
