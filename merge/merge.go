// Package merge combines packed mappings.
package merge

import (
	"fmt"

	"github.com/starfederation/packify-go"
)

var decodeOpts = packify.DecOptions{RawExtensions: true}

// ApplyMergePatch applies JSON Merge Patch (RFC 7386) semantics to a packed
// target. A null patch value deletes the key, a mapping merges recursively
// and anything else replaces. If the patch is not a mapping, the patch
// replaces the target.
func ApplyMergePatch(target, patch []byte) ([]byte, error) {
	patchRoot, err := decodeOpts.Unpack(patch, nil)
	if err != nil {
		return nil, err
	}
	patchMap, ok := patchRoot.(*packify.Map)
	if !ok {
		return patch, nil
	}

	targetRoot, err := decodeOpts.Unpack(target, nil)
	if err != nil {
		return nil, err
	}
	base, ok := targetRoot.(*packify.Map)
	if !ok {
		base = packify.NewMap()
	}
	merged, err := applyMapPatch(base, patchMap)
	if err != nil {
		return nil, err
	}
	return packify.Pack(merged)
}

func applyMapPatch(target, patch *packify.Map) (*packify.Map, error) {
	var err error
	patch.Range(func(k, v any) bool {
		switch pv := v.(type) {
		case nil:
			target.Delete(k)
		case *packify.Map:
			child, _ := target.Get(k)
			childMap, ok := child.(*packify.Map)
			if !ok {
				childMap = packify.NewMap()
			}
			var merged *packify.Map
			if merged, err = applyMapPatch(childMap, pv); err != nil {
				return false
			}
			err = target.Set(k, merged)
		default:
			err = target.Set(k, v)
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// MergeMaps merges two packed mappings with right-biased semantics. Keys of
// left keep their position; keys only present in right are appended in
// right's order. Values are not merged recursively.
func MergeMaps(left, right []byte) ([]byte, error) {
	l, err := decodeOpts.Unpack(left, nil)
	if err != nil {
		return nil, err
	}
	r, err := decodeOpts.Unpack(right, nil)
	if err != nil {
		return nil, err
	}
	lm, lok := l.(*packify.Map)
	rm, rok := r.(*packify.Map)
	if !lok || !rok {
		return nil, fmt.Errorf("merge expects map roots")
	}
	rm.Range(func(k, v any) bool {
		err = lm.Set(k, v)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return packify.Pack(lm)
}
