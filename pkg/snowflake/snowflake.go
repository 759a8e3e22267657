// Package snowflake implements the 64-bit identifiers used by every
// platform object.
package snowflake

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/tidwall/gjson"
)

// ID is a platform snowflake. The zero value means "no ID".
type ID uint64

// Parse reads a decimal snowflake.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake %q: %w", s, err)
	}
	return ID(v), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromResult converts a gjson result holding either a string or a number.
// Missing and null values yield 0.
func FromResult(r gjson.Result) ID {
	switch r.Type {
	case gjson.String:
		id, err := Parse(r.Str)
		if err != nil {
			return 0
		}
		return id
	case gjson.Number:
		return ID(r.Uint())
	default:
		return 0
	}
}

// Get peeks a snowflake at path inside raw without decoding the document.
func Get(raw []byte, path string) ID {
	return FromResult(gjson.GetBytes(raw, path))
}

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Valid reports whether id is set.
func (id ID) Valid() bool { return id != 0 }

// Time returns the creation time encoded in the ID.
func (id ID) Time() time.Time {
	t, err := discordgo.SnowflakeTimestamp(id.String())
	if err != nil {
		return time.Time{}
	}
	return t
}

// MarshalJSON encodes the ID as a string, matching the platform.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(id.String())), nil
}

// UnmarshalJSON accepts "123", 123 and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*id = v
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("parse snowflake %s: %w", b, err)
	}
	*id = ID(v)
	return nil
}

// Set is a small set of IDs.
type Set map[ID]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Add(id ID) { s[id] = struct{}{} }
