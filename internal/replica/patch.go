package replica

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrPathNotFound   = errors.New("replica: patch path not found")
	ErrInvalidPatch   = errors.New("replica: invalid patch")
	ErrInvalidPointer = errors.New("replica: invalid json pointer")
	// ErrCorrupted marks the tree as untrusted until the next full snapshot.
	ErrCorrupted = errors.New("replica: server state corrupted")
)

const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
)

// Op is one patch operation. Only add, remove and replace are supported.
type Op struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ParseOps decodes a JSON array of operations.
func ParseOps(raw json.RawMessage) ([]Op, error) {
	var ops []Op
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return ops, nil
}

// ParsePointer splits an RFC 6901 pointer into unescaped tokens.
func ParsePointer(p string) ([]string, error) {
	if p == "" {
		return nil, nil
	}
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPointer, p)
	}
	parts := strings.Split(p[1:], "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		parts[i] = strings.ReplaceAll(part, "~0", "~")
	}
	return parts, nil
}

// decodeValue parses JSON keeping numbers exact.
func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Apply runs ops in order against a deep copy of doc and returns the new
// document. On any error the input is left untouched.
func Apply(doc any, ops []Op) (any, error) {
	out := deepCopy(doc)
	for i, op := range ops {
		var err error
		out, err = applyOne(out, op)
		if err != nil {
			return nil, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return out, nil
}

func applyOne(doc any, op Op) (any, error) {
	tokens, err := ParsePointer(op.Path)
	if err != nil {
		return nil, err
	}
	var value any
	switch op.Op {
	case OpAdd, OpReplace:
		if len(op.Value) == 0 {
			return nil, fmt.Errorf("%w: %s without value", ErrInvalidPatch, op.Op)
		}
		if value, err = decodeValue(op.Value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
	case OpRemove:
	default:
		return nil, fmt.Errorf("%w: unsupported op %q", ErrInvalidPatch, op.Op)
	}

	if len(tokens) == 0 {
		switch op.Op {
		case OpRemove:
			return nil, fmt.Errorf("%w: cannot remove document root", ErrInvalidPatch)
		default:
			return value, nil
		}
	}

	parent, err := resolve(doc, tokens[:len(tokens)-1])
	if err != nil {
		return nil, err
	}
	last := tokens[len(tokens)-1]

	switch container := parent.(type) {
	case map[string]any:
		_, exists := container[last]
		switch op.Op {
		case OpAdd:
			container[last] = value
		case OpReplace:
			if !exists {
				return nil, fmt.Errorf("%w: %q", ErrPathNotFound, op.Path)
			}
			container[last] = value
		case OpRemove:
			if !exists {
				return nil, fmt.Errorf("%w: %q", ErrPathNotFound, op.Path)
			}
			delete(container, last)
		}
		return doc, nil
	case []any:
		arr, err := applyArray(container, last, op.Op, value)
		if err != nil {
			return nil, fmt.Errorf("%w (%s)", err, op.Path)
		}
		return setAt(doc, tokens[:len(tokens)-1], arr)
	default:
		return nil, fmt.Errorf("%w: parent of %q is not a container", ErrPathNotFound, op.Path)
	}
}

func applyArray(arr []any, token, op string, value any) ([]any, error) {
	if token == "-" {
		if op != OpAdd {
			return nil, fmt.Errorf("%w: %q only valid for add", ErrPathNotFound, token)
		}
		return append(arr, value), nil
	}
	idx, err := arrayIndex(token)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpAdd:
		if idx > len(arr) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrPathNotFound, idx)
		}
		arr = append(arr, nil)
		copy(arr[idx+1:], arr[idx:])
		arr[idx] = value
		return arr, nil
	case OpReplace:
		if idx >= len(arr) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrPathNotFound, idx)
		}
		arr[idx] = value
		return arr, nil
	default:
		if idx >= len(arr) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrPathNotFound, idx)
		}
		return append(arr[:idx], arr[idx+1:]...), nil
	}
}

func arrayIndex(token string) (int, error) {
	if token == "" || (len(token) > 1 && token[0] == '0') {
		return 0, fmt.Errorf("%w: bad array index %q", ErrInvalidPointer, token)
	}
	idx, err := strconv.Atoi(token)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%w: bad array index %q", ErrInvalidPointer, token)
	}
	return idx, nil
}

func resolve(doc any, tokens []string) (any, error) {
	cur := doc
	for _, tok := range tokens {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[tok]
			if !ok {
				return nil, fmt.Errorf("%w: missing key %q", ErrPathNotFound, tok)
			}
			cur = next
		case []any:
			idx, err := arrayIndex(tok)
			if err != nil {
				return nil, err
			}
			if idx >= len(node) {
				return nil, fmt.Errorf("%w: index %d out of range", ErrPathNotFound, idx)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("%w: %q is not a container", ErrPathNotFound, tok)
		}
	}
	return cur, nil
}

// setAt replaces the value at tokens, which must already resolve. Arrays
// are values in Go, so a grown or shrunk slice has to be written back into
// its own parent.
func setAt(doc any, tokens []string, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	parent, err := resolve(doc, tokens[:len(tokens)-1])
	if err != nil {
		return nil, err
	}
	last := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		node[last] = value
	case []any:
		idx, err := arrayIndex(last)
		if err != nil {
			return nil, err
		}
		node[idx] = value
	}
	return doc, nil
}

func deepCopy(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
