// Package backend defines the contract between the compiler core and the
// code generators that turn an IR module into an executable kernel.
//
// Backends register themselves by name, usually from an init function, the
// same way database/sql drivers do:
//
//	import _ "github.com/YuminosukeSato/forestjit/backend/closure"
//
//	b, err := backend.Lookup("closure")
//	kernel, err := b.Compile(module, backend.O2)
package backend

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/YuminosukeSato/forestjit/ir"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// DefaultName is the backend used when none is configured.
const DefaultName = "closure"

// OptLevel is an optimization level from O0 to O3.
type OptLevel int

const (
	O0 OptLevel = iota
	O1
	O2
	O3
)

// MaxOptLevel is the highest supported level.
const MaxOptLevel = O3

func (l OptLevel) String() string {
	return "O" + strconv.Itoa(int(l))
}

// Valid reports whether l is between O0 and O3.
func (l OptLevel) Valid() bool {
	return l >= O0 && l <= MaxOptLevel
}

// ParseOptLevel accepts "0".."3" and "O0".."O3".
func ParseOptLevel(s string) (OptLevel, error) {
	if len(s) == 2 && (s[0] == 'O' || s[0] == 'o') {
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || !OptLevel(n).Valid() {
		return O0, errors.Newf("backend: invalid optimization level %q", s)
	}
	return OptLevel(n), nil
}

// Kernel evaluates rows [start, end) of a row-major feature matrix with the
// given stride and writes NumSlots outputs per row into out at row*NumSlots.
// A kernel holds no mutable state and may run concurrently on disjoint rows.
type Kernel func(features []float64, stride int, out []float64, start, end int)

// Backend compiles a verified IR module into a Kernel.
type Backend interface {
	Name() string
	Compile(m *ir.Module, level OptLevel) (Kernel, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register makes b available under b.Name(). It panics on duplicates.
func Register(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		panic("backend: Register backend is nil")
	}
	name := b.Name()
	if _, dup := backends[name]; dup {
		panic(fmt.Sprintf("backend: Register called twice for backend %q", name))
	}
	backends[name] = b
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return nil, errors.Newf("backend: unknown backend %q (registered: %v)", name, namesLocked())
	}
	return b, nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
