// Package patch applies RFC 6902 style patches to packed documents.
//
// A patch is a packed sequence of mappings with the keys "op", "path" and,
// depending on the operation, "value" or "from". Paths are sequences of
// tokens rather than JSON Pointer strings: a mapping is addressed by any
// packable key and a sequence by an integer index. The text token "-"
// appends when adding to a sequence.
package patch

import (
	"fmt"

	"github.com/starfederation/packify-go"
)

const (
	opAdd int64 = iota
	opRemove
	opReplace
	opMove
	opCopy
	opTest
)

var opNames = map[string]int64{
	"add":     opAdd,
	"remove":  opRemove,
	"replace": opReplace,
	"move":    opMove,
	"copy":    opCopy,
	"test":    opTest,
}

const appendToken = "-"

// decodeOpts keeps unknown extension values intact so patching never needs
// a registry.
var decodeOpts = packify.DecOptions{RawExtensions: true}

type opRecord struct {
	op       int64
	path     []any
	value    any
	hasValue bool
	from     []any
	hasFrom  bool
}

// ApplyPatch applies patch to target and returns the packed result. The
// operations apply in order; the first failure aborts the whole patch.
func ApplyPatch(target, patch []byte) ([]byte, error) {
	patchRoot, err := decodeOpts.Unpack(patch, nil)
	if err != nil {
		return nil, err
	}
	ops, ok := sequence(patchRoot)
	if !ok {
		return nil, fmt.Errorf("patch root must be a sequence")
	}
	root, err := decodeOpts.Unpack(target, nil)
	if err != nil {
		return nil, err
	}
	s := &patchState{root: root}
	for i, entry := range ops {
		m, ok := entry.(*packify.Map)
		if !ok {
			return nil, fmt.Errorf("patch op %d must be a map", i)
		}
		op, err := parseOperation(m)
		if err != nil {
			return nil, fmt.Errorf("patch op %d: %w", i, err)
		}
		if err := s.applyOperation(op); err != nil {
			return nil, fmt.Errorf("patch op %d: %w", i, err)
		}
	}
	return packify.Pack(s.root)
}

func parseOperation(m *packify.Map) (opRecord, error) {
	opVal, ok := m.Get("op")
	if !ok {
		return opRecord{}, fmt.Errorf("missing op")
	}
	var rec opRecord
	switch x := opVal.(type) {
	case int64:
		if x < opAdd || x > opTest {
			return opRecord{}, fmt.Errorf("invalid op %d", x)
		}
		rec.op = x
	case string:
		code, ok := opNames[x]
		if !ok {
			return opRecord{}, fmt.Errorf("invalid op %q", x)
		}
		rec.op = code
	default:
		return opRecord{}, fmt.Errorf("op must be an integer or text")
	}

	pathVal, ok := m.Get("path")
	if !ok {
		return opRecord{}, fmt.Errorf("missing path")
	}
	if rec.path, ok = sequence(pathVal); !ok {
		return opRecord{}, fmt.Errorf("path must be a sequence")
	}
	rec.value, rec.hasValue = m.Get("value")
	if fromVal, ok := m.Get("from"); ok {
		if rec.from, ok = sequence(fromVal); !ok {
			return opRecord{}, fmt.Errorf("from must be a sequence")
		}
		rec.hasFrom = true
	}
	return rec, nil
}

func sequence(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case packify.Tuple:
		return x, true
	default:
		return nil, false
	}
}

type patchState struct {
	root any
}

func (s *patchState) applyOperation(op opRecord) error {
	switch op.op {
	case opAdd:
		if !op.hasValue {
			return fmt.Errorf("add requires value")
		}
		return s.applyAdd(op.path, op.value)
	case opRemove:
		return s.applyRemove(op.path)
	case opReplace:
		if !op.hasValue {
			return fmt.Errorf("replace requires value")
		}
		return s.applyReplace(op.path, op.value)
	case opMove:
		if !op.hasFrom {
			return fmt.Errorf("move requires from")
		}
		return s.applyMove(op.from, op.path)
	case opCopy:
		if !op.hasFrom {
			return fmt.Errorf("copy requires from")
		}
		return s.applyCopy(op.from, op.path)
	case opTest:
		if !op.hasValue {
			return fmt.Errorf("test requires value")
		}
		return s.applyTest(op.path, op.value)
	default:
		return fmt.Errorf("unknown op %d", op.op)
	}
}

type pathStep struct {
	container any
	token     any
}

func (s *patchState) resolveParent(tokens []any) (any, any, []pathStep, error) {
	cur := s.root
	steps := make([]pathStep, 0, len(tokens)-1)
	for _, tok := range tokens[:len(tokens)-1] {
		child, err := childAt(cur, tok)
		if err != nil {
			return nil, nil, nil, err
		}
		steps = append(steps, pathStep{container: cur, token: tok})
		cur = child
	}
	return cur, tokens[len(tokens)-1], steps, nil
}

// rebuildPath stores updated back into each container on the way to the
// root. Sequences may have been reallocated, so every level is written.
func (s *patchState) rebuildPath(steps []pathStep, updated any) error {
	cur := updated
	for i := len(steps) - 1; i >= 0; i-- {
		var err error
		cur, err = replaceInContainer(steps[i].container, steps[i].token, cur)
		if err != nil {
			return err
		}
	}
	s.root = cur
	return nil
}

func (s *patchState) update(path []any, fn func(parent, last any) (any, error)) error {
	parent, last, steps, err := s.resolveParent(path)
	if err != nil {
		return err
	}
	updated, err := fn(parent, last)
	if err != nil {
		return err
	}
	return s.rebuildPath(steps, updated)
}

func (s *patchState) applyAdd(path []any, value any) error {
	if len(path) == 0 {
		s.root = value
		return nil
	}
	return s.update(path, func(parent, last any) (any, error) {
		return addToContainer(parent, last, value)
	})
}

func (s *patchState) applyReplace(path []any, value any) error {
	if len(path) == 0 {
		s.root = value
		return nil
	}
	return s.update(path, func(parent, last any) (any, error) {
		if _, err := childAt(parent, last); err != nil {
			return nil, err
		}
		return replaceInContainer(parent, last, value)
	})
}

func (s *patchState) applyRemove(path []any) error {
	if len(path) == 0 {
		return fmt.Errorf("remove cannot target document root")
	}
	return s.update(path, removeFromContainer)
}

func (s *patchState) applyCopy(from, path []any) error {
	val, err := s.getValueAtPath(from)
	if err != nil {
		return err
	}
	// The copy must not share mutable containers with its source.
	clone, err := cloneValue(val)
	if err != nil {
		return err
	}
	return s.applyAdd(path, clone)
}

func (s *patchState) applyMove(from, path []any) error {
	if len(from) < len(path) && packify.Equal(packify.Tuple(from), packify.Tuple(path[:len(from)])) {
		return fmt.Errorf("cannot move a value into one of its children")
	}
	val, err := s.getValueAtPath(from)
	if err != nil {
		return err
	}
	if len(from) == 0 {
		return s.applyAdd(path, val)
	}
	if err := s.applyRemove(from); err != nil {
		return err
	}
	return s.applyAdd(path, val)
}

func (s *patchState) applyTest(path []any, value any) error {
	got, err := s.getValueAtPath(path)
	if err != nil {
		return err
	}
	if !packify.Equal(got, value) {
		return fmt.Errorf("test operation failed")
	}
	return nil
}

func (s *patchState) getValueAtPath(tokens []any) (any, error) {
	cur := s.root
	for _, tok := range tokens {
		child, err := childAt(cur, tok)
		if err != nil {
			return nil, err
		}
		cur = child
	}
	return cur, nil
}

func childAt(container, tok any) (any, error) {
	switch c := container.(type) {
	case *packify.Map:
		v, ok := c.Get(tok)
		if !ok {
			return nil, fmt.Errorf("path not found")
		}
		return v, nil
	default:
		items, ok := sequence(container)
		if !ok {
			return nil, fmt.Errorf("path traverses non-container")
		}
		i, err := index(tok, len(items))
		if err != nil {
			return nil, err
		}
		return items[i], nil
	}
}

func addToContainer(parent, tok, value any) (any, error) {
	if m, ok := parent.(*packify.Map); ok {
		if err := m.Set(tok, value); err != nil {
			return nil, err
		}
		return m, nil
	}
	items, ok := sequence(parent)
	if !ok {
		return nil, fmt.Errorf("path traverses non-container")
	}
	at := len(items)
	if s, isText := tok.(string); !isText || s != appendToken {
		var err error
		if at, err = index(tok, len(items)+1); err != nil {
			return nil, err
		}
	}
	out := make([]any, 0, len(items)+1)
	out = append(out, items[:at]...)
	out = append(out, value)
	out = append(out, items[at:]...)
	return sameKind(parent, out), nil
}

func replaceInContainer(parent, tok, value any) (any, error) {
	if m, ok := parent.(*packify.Map); ok {
		if err := m.Set(tok, value); err != nil {
			return nil, err
		}
		return m, nil
	}
	items, ok := sequence(parent)
	if !ok {
		return nil, fmt.Errorf("path traverses non-container")
	}
	i, err := index(tok, len(items))
	if err != nil {
		return nil, err
	}
	out := append([]any{}, items...)
	out[i] = value
	return sameKind(parent, out), nil
}

func removeFromContainer(parent, tok any) (any, error) {
	if m, ok := parent.(*packify.Map); ok {
		if !m.Delete(tok) {
			return nil, fmt.Errorf("path not found")
		}
		return m, nil
	}
	items, ok := sequence(parent)
	if !ok {
		return nil, fmt.Errorf("path traverses non-container")
	}
	i, err := index(tok, len(items))
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items)-1)
	out = append(out, items[:i]...)
	out = append(out, items[i+1:]...)
	return sameKind(parent, out), nil
}

// sameKind keeps the sub-kind of the sequence being rewritten.
func sameKind(orig any, items []any) any {
	if _, ok := orig.(packify.Tuple); ok {
		return packify.Tuple(items)
	}
	return items
}

func index(tok any, length int) (int, error) {
	i, ok := tok.(int64)
	if !ok {
		return 0, fmt.Errorf("expected array index")
	}
	if i < 0 || i >= int64(length) {
		return 0, fmt.Errorf("array index %d out of range", i)
	}
	return int(i), nil
}

func cloneValue(v any) (any, error) {
	data, err := packify.Pack(v)
	if err != nil {
		return nil, err
	}
	return decodeOpts.Unpack(data, nil)
}
