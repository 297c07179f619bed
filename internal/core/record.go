package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Column is one named cell of an uploaded row.
type Column struct {
	Name  string
	Value string
}

// Record is an uploaded row with its columns in upload order.
type Record []Column

// Names returns the column names in order.
func (r Record) Names() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the first column whose name matches one of
// the aliases, compared case-insensitively after trimming, or -1.
func (r Record) Index(aliases ...string) int {
	for _, alias := range aliases {
		for i, c := range r {
			if strings.EqualFold(strings.TrimSpace(c.Name), alias) {
				return i
			}
		}
	}
	return -1
}

// Lookup returns the value of the first column matching one of the aliases.
func (r Record) Lookup(aliases ...string) (string, bool) {
	if i := r.Index(aliases...); i >= 0 {
		return r[i].Value, true
	}
	return "", false
}

// Value returns the column value by exact name.
func (r Record) Value(name string) string {
	for _, c := range r {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Set replaces the first column matching name (case-insensitive) or appends it.
func (r Record) Set(name, value string) Record {
	if i := r.Index(name); i >= 0 {
		r[i].Value = value
		return r
	}
	return append(r, Column{Name: name, Value: value})
}

// Without drops the columns matching any of the names.
func (r Record) Without(names ...string) Record {
	out := make(Record, 0, len(r))
	for _, c := range r {
		drop := false
		for _, n := range names {
			if strings.EqualFold(strings.TrimSpace(c.Name), n) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns an independent copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return append(Record(nil), r...)
}

// MarshalJSON renders the record as a JSON object keeping column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order. Scalars are kept as
// their literal text, null becomes empty, nested values are kept as raw JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	out := Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode %q: %w", name, err)
		}
		out = append(out, Column{Name: name, Value: RawValue(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// RawValue converts a raw JSON scalar to its text form.
func RawValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
