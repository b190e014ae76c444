package model

import (
	"encoding/json"
	"fmt"
)

type TargetKind string

const (
	TargetUser   TargetKind = "user"
	TargetUsers  TargetKind = "users"
	TargetCampus TargetKind = "campus"
	TargetAll    TargetKind = "all"
)

// Target identifies the recipients of a notification as a tagged variant:
// a single user, a list of users, every push-enabled user of a campus
// domain, or every push-enabled user.
type Target struct {
	Kind    TargetKind `json:"kind"`
	UserID  string     `json:"user_id,omitempty"`
	UserIDs []string   `json:"user_ids,omitempty"`
	Domain  string     `json:"domain,omitempty"`
}

// Broadcast reports whether the target addresses users beyond an explicit
// id list. Broadcast targets require elevated caller rights.
func (t Target) Broadcast() bool {
	return t.Kind == TargetCampus || t.Kind == TargetAll
}

// Validate checks that the variant carries the field its kind requires.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetUser:
		if t.UserID == "" {
			return fmt.Errorf("target kind %q requires user_id", t.Kind)
		}
	case TargetUsers:
		if len(t.UserIDs) == 0 {
			return fmt.Errorf("target kind %q requires user_ids", t.Kind)
		}
	case TargetCampus:
		if t.Domain == "" {
			return fmt.Errorf("target kind %q requires domain", t.Kind)
		}
	case TargetAll:
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

// UnmarshalJSON accepts either the tagged object form or the shorthand
// string "all".
func (t *Target) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != string(TargetAll) {
			return fmt.Errorf("unknown target shorthand %q", s)
		}
		t.Kind = TargetAll
		return nil
	}

	type alias Target
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*t = Target(a)
	return nil
}
