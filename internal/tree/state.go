package tree

import (
	"encoding/json"
	"fmt"
)

// ChangeState describes how a file differs from the workspace baseline.
type ChangeState uint8

// Change states.
const (
	Unchanged ChangeState = iota
	Added
	Modified
	Deleted
)

var changeStateNames = [...]string{"unchanged", "added", "modified", "deleted"}

func (s ChangeState) String() string {
	if int(s) < len(changeStateNames) {
		return changeStateNames[s]
	}
	return fmt.Sprintf("ChangeState(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s ChangeState) MarshalText() ([]byte, error) {
	if int(s) >= len(changeStateNames) {
		return nil, fmt.Errorf("invalid change state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ChangeState) UnmarshalText(text []byte) error {
	v, err := parseState(changeStateNames[:], string(text))
	if err != nil {
		return fmt.Errorf("change state: %w", err)
	}
	*s = ChangeState(v)
	return nil
}

// ConflictState describes whether a file has conflicting changes.
// No resolution happens here; the state is only tracked and aggregated.
type ConflictState uint8

// Conflict states.
const (
	ConflictNone ConflictState = iota
	ConflictUnresolved
	ConflictResolved
	ConflictIncoming
)

var conflictStateNames = [...]string{"none", "unresolved", "resolved", "incoming"}

func (s ConflictState) String() string {
	if int(s) < len(conflictStateNames) {
		return conflictStateNames[s]
	}
	return fmt.Sprintf("ConflictState(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s ConflictState) MarshalText() ([]byte, error) {
	if int(s) >= len(conflictStateNames) {
		return nil, fmt.Errorf("invalid conflict state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConflictState) UnmarshalText(text []byte) error {
	v, err := parseState(conflictStateNames[:], string(text))
	if err != nil {
		return fmt.Errorf("conflict state: %w", err)
	}
	*s = ConflictState(v)
	return nil
}

// ParseConflictState parses the textual form of a ConflictState.
func ParseConflictState(s string) (ConflictState, error) {
	var c ConflictState
	err := c.UnmarshalText([]byte(s))
	return c, err
}

func parseState(names []string, s string) (uint8, error) {
	for i, name := range names {
		if name == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("unknown value %q", s)
}

// State is implemented by the small enumerations that can be aggregated into a Set.
type State interface {
	~uint8
	fmt.Stringer
}

// Set is a bitset over a State enumeration.
type Set[S State] uint8

// ChangeStateSet aggregates the change states of a subtree.
type ChangeStateSet = Set[ChangeState]

// ConflictStateSet aggregates the conflict states of a subtree.
type ConflictStateSet = Set[ConflictState]

// SetOf returns a set holding the given states.
func SetOf[S State](states ...S) Set[S] {
	var set Set[S]
	for _, s := range states {
		set = set.With(s)
	}
	return set
}

// With returns the set with s added.
func (set Set[S]) With(s S) Set[S] {
	return set | 1<<s
}

// Union returns the states present in either set.
func (set Set[S]) Union(other Set[S]) Set[S] {
	return set | other
}

// Contains reports whether s is in the set.
func (set Set[S]) Contains(s S) bool {
	return set&(1<<s) != 0
}

// IsEmpty reports whether the set holds no states.
func (set Set[S]) IsEmpty() bool {
	return set == 0
}

// States returns the members in ascending order.
func (set Set[S]) States() []S {
	var out []S
	for i := 0; i < 8; i++ {
		if set&(1<<i) != 0 {
			out = append(out, S(i))
		}
	}
	return out
}

// MarshalJSON encodes the set as a list of state names.
func (set Set[S]) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 4)
	for _, s := range set.States() {
		names = append(names, s.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of state names.
func (set *Set[S]) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out Set[S]
next:
	for _, name := range names {
		for i := 0; i < 8; i++ {
			if S(i).String() == name {
				out = out.With(S(i))
				continue next
			}
		}
		return fmt.Errorf("unknown state %q", name)
	}
	*set = out
	return nil
}
