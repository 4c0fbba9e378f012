package logformat

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-json-experiment/json/jsontext"
)

var errNotObject = errors.New("not a JSON object")

// Field is one key/value pair kept in line order
type Field struct {
	Key   string
	Value string
}

// member is one raw top-level member of a JSON line
type member struct {
	key   string
	value string
	kind  jsontext.Kind
}

// readObject reads the top-level members of a single JSON object line,
// keeping their order. Nested objects and arrays are kept as compact JSON.
func readObject(line []byte) ([]member, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(line))

	tok, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}
	if tok.Kind() != '{' {
		return nil, errNotObject
	}

	var members []member
	for dec.PeekKind() != '}' {
		keyTok, err := dec.ReadToken()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		m := member{key: keyTok.String(), kind: dec.PeekKind()}

		switch m.kind {
		case '{', '[':
			raw, err := dec.ReadValue()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", m.key, err)
			}
			if err := raw.Compact(); err != nil {
				return nil, fmt.Errorf("compact %s: %w", m.key, err)
			}
			m.value = string(raw)
		default:
			valTok, err := dec.ReadToken()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", m.key, err)
			}
			m.value = valTok.String()
		}
		members = append(members, m)
	}
	if _, err := dec.ReadToken(); err != nil {
		return nil, err
	}
	return members, nil
}
