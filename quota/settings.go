// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package quota

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CurrentVersion is the newest settings schema this package understands.
const CurrentVersion = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported quota settings version")
	ErrMissingGroupField  = errors.New("group_by_field is required when groups are configured")
	ErrInvalidGroupName   = errors.New("group name must not be empty")
	ErrDuplicateGroup     = errors.New("duplicate group name")
	ErrNegativeTarget     = errors.New("group target must not be negative")
	ErrOverlappingValues  = errors.New("a value is mapped to more than one group")
)

// Group maps a set of raw demographic values to a quota group.
type Group struct {
	Name   string
	Values []string
	Target int
}

// Settings is the validated form of a form's quota settings blob.
// Groups keep the order in which they appeared in the document; Classify
// walks them in that order.
type Settings struct {
	Version      int
	GroupByField string
	Groups       []Group
}

type groupDoc struct {
	Values []string `json:"values"`
	Target int      `json:"target"`
}

type settingsDoc struct {
	Version      int             `json:"version"`
	GroupByField string          `json:"group_by_field"`
	LegacyField  string          `json:"groupByField"`
	Groups       json.RawMessage `json:"groups"`
}

// ParseSettings decodes, normalizes and validates a raw settings document.
// An empty document yields empty settings, under which nobody classifies.
func ParseSettings(raw []byte) (Settings, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Settings{Version: CurrentVersion}, nil
	}

	var doc settingsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Settings{}, fmt.Errorf("failed to decode quota settings: %w", err)
	}

	s := Settings{
		Version:      doc.Version,
		GroupByField: strings.TrimSpace(doc.GroupByField),
	}
	if s.GroupByField == "" {
		s.GroupByField = strings.TrimSpace(doc.LegacyField)
	}

	groups, err := decodeGroups(doc.Groups)
	if err != nil {
		return Settings{}, err
	}
	s.Groups = groups

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// decodeGroups walks the groups object token by token so key order survives.
func decodeGroups(raw json.RawMessage) ([]Group, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("groups must be a JSON object")
	}

	var groups []Group
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode groups: %w", err)
		}
		name, _ := tok.(string)

		var g groupDoc
		if err := dec.Decode(&g); err != nil {
			return nil, fmt.Errorf("failed to decode group %q: %w", name, err)
		}
		groups = append(groups, Group{Name: name, Values: g.Values, Target: g.Target})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}

	return groups, nil
}

func (s *Settings) applyDefaults() {
	if s.Version == 0 {
		s.Version = CurrentVersion
	}
	for i := range s.Groups {
		s.Groups[i].Name = strings.TrimSpace(s.Groups[i].Name)

		seen := make(map[string]bool, len(s.Groups[i].Values))
		values := make([]string, 0, len(s.Groups[i].Values))
		for _, v := range s.Groups[i].Values {
			n := Normalize(v)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			values = append(values, n)
		}
		s.Groups[i].Values = values
	}
}

// Validate checks the structural rules, including that no normalized value
// belongs to two groups.
func (s Settings) Validate() error {
	if s.Version < 0 || s.Version > CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	if len(s.Groups) > 0 && s.GroupByField == "" {
		return ErrMissingGroupField
	}

	names := make(map[string]bool, len(s.Groups))
	owner := make(map[string]string)
	for _, g := range s.Groups {
		if g.Name == "" {
			return ErrInvalidGroupName
		}
		if names[g.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateGroup, g.Name)
		}
		names[g.Name] = true

		if g.Target < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeTarget, g.Name)
		}
		for _, v := range g.Values {
			if prev, ok := owner[v]; ok {
				return fmt.Errorf("%w: %q in %s and %s", ErrOverlappingValues, v, prev, g.Name)
			}
			owner[v] = g.Name
		}
	}
	return nil
}

// Group returns the named group.
func (s Settings) Group(name string) (Group, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// MarshalJSON writes the canonical document, keeping group order.
func (s Settings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	fmt.Fprintf(&buf, "%d", s.Version)
	buf.WriteString(`,"group_by_field":`)
	field, err := json.Marshal(s.GroupByField)
	if err != nil {
		return nil, err
	}
	buf.Write(field)
	buf.WriteString(`,"groups":{`)
	for i, g := range s.Groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(g.Name)
		if err != nil {
			return nil, err
		}
		values := g.Values
		if values == nil {
			values = []string{}
		}
		body, err := json.Marshal(groupDoc{Values: values, Target: g.Target})
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// Normalize is the comparison form of a raw demographic value.
func Normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
