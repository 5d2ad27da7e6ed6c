// Package runtime holds a process-wide extension registry for programs that
// prefer registering types once at init time over threading a Registry
// through every call.
package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/starfederation/packify-go"
)

var ErrEmptyName = errors.New("packify: empty extension name")
var ErrNilUnpacker = errors.New("packify: nil unpacker")

var (
	mu     sync.RWMutex
	global = packify.Registry{}
)

// Register adds u under name to the process-wide registry. Registering the
// same name twice fails.
func Register(name string, u packify.Unpacker) error {
	if name == "" {
		return ErrEmptyName
	}
	if u == nil {
		return ErrNilUnpacker
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := global[name]; ok {
		return fmt.Errorf("packify: extension %q already registered", name)
	}
	global[name] = u
	return nil
}

// MustRegister is Register for init functions.
func MustRegister(name string, u packify.Unpacker) {
	if err := Register(name, u); err != nil {
		panic(err)
	}
}

// Unregister removes name and reports whether it was present.
func Unregister(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := global[name]; !ok {
		return false
	}
	delete(global, name)
	return true
}

// Lookup returns the Unpacker registered under name.
func Lookup(name string) (packify.Unpacker, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return global.Lookup(name)
}

// Snapshot returns a copy of the process-wide registry with inject layered
// on top. Entries in inject win over global ones.
func Snapshot(inject packify.Registry) packify.Registry {
	mu.RLock()
	reg := global.Clone()
	mu.RUnlock()
	for name, u := range inject {
		reg[name] = u
	}
	return reg
}

// Unpack decodes data against the process-wide registry plus inject.
func Unpack(data []byte, inject packify.Registry) (any, error) {
	return packify.Unpack(data, Snapshot(inject))
}

// Unmarshal decodes data against the process-wide registry into out.
func Unmarshal(data []byte, out any) error {
	return packify.Unmarshal(data, Snapshot(nil), out)
}
