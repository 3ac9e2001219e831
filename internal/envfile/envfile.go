// Package envfile reads and writes per-project .env files.
//
// The format is one key=value pair per line. Values may contain '='.
// Key order is preserved from the file (or from insertion) so that a
// read-modify-write cycle does not reshuffle the file.
package envfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// FileName is the environment file name inside a project directory.
const FileName = ".env"

// ErrNotFound is returned when the environment file does not exist.
var ErrNotFound = errors.New("environment file not found")

// Env is an ordered mapping of unique keys to string values.
// The zero value is an empty mapping ready to use.
type Env struct {
	keys   []string
	values map[string]string
}

// New returns an Env populated from pairs (k1, v1, k2, v2, ...).
// A trailing key without a value is ignored.
func New(pairs ...string) *Env {
	e := &Env{}
	for i := 0; i+1 < len(pairs); i += 2 {
		e.Set(pairs[i], pairs[i+1])
	}
	return e
}

// Set assigns value to key. A new key is appended; an existing key keeps
// its position.
func (e *Env) Set(key, value string) {
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Get returns the value for key.
func (e *Env) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Delete removes key. It reports whether the key was present.
func (e *Env) Delete(key string) bool {
	if _, ok := e.values[key]; !ok {
		return false
	}
	delete(e.values, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in order.
func (e *Env) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len returns the number of pairs.
func (e *Env) Len() int {
	return len(e.keys)
}

// Environ returns the pairs in "key=value" form, suitable for exec.Cmd.Env.
func (e *Env) Environ() []string {
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, k+"="+e.values[k])
	}
	return out
}

// Parse parses env file content. Empty lines are skipped. Each remaining
// line is split on '='; the key is the first fragment trimmed, the value is
// the rest rejoined with '=' and trimmed. A line without '=' yields an
// empty value.
func Parse(content string) *Env {
	e := &Env{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.Split(line, "=")
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(strings.Join(parts[1:], "="))
		e.Set(key, value)
	}
	return e
}

// Format serializes the mapping as key=value lines joined by '\n', in key
// order. There is no trailing newline.
func Format(e *Env) string {
	if e == nil {
		return ""
	}
	return strings.Join(e.Environ(), "\n")
}

// Read reads and parses the env file at path.
func Read(path string) (*Env, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return Parse(string(data)), nil
}

// Write overwrites the env file at path with e.
func Write(path string, e *Env) error {
	if err := os.WriteFile(path, []byte(Format(e)), 0644); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

// MarshalJSON encodes the mapping as a JSON object in key order.
func (e *Env) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if e != nil {
		for i, k := range e.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(e.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string values, preserving the
// order keys appear in the document.
func (e *Env) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("envfile: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*e = Env{}
		return nil
	}
	if !res.IsObject() {
		return errors.New("envfile: expected JSON object")
	}

	var out Env
	var decodeErr error
	res.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			decodeErr = fmt.Errorf("envfile: value for %q is not a string", key.String())
			return false
		}
		out.Set(key.String(), value.String())
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}
	*e = out
	return nil
}
