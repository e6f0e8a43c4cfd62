package chaos

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrInjectedFault is returned by renames the Faults switchboard fails.
var ErrInjectedFault = errors.New("chaos: injected rename failure")

// Faults decides which document replaces fail. Its Rename method is meant to
// be installed with docstore.WithRenameFunc.
type Faults struct {
	mu      sync.Mutex
	pending map[string]int
}

func NewFaults() *Faults {
	return &Faults{pending: make(map[string]int)}
}

// FailRenames makes the next n replaces of the named document fail. The name
// is the file's base name, for example "rentals.json". A negative n fails
// every replace until Clear.
func (f *Faults) FailRenames(document string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[document] = n
}

// Clear removes every pending fault.
func (f *Faults) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.pending)
}

func (f *Faults) Rename(oldpath, newpath string) error {
	if f.consume(filepath.Base(newpath)) {
		return ErrInjectedFault
	}
	return os.Rename(oldpath, newpath)
}

func (f *Faults) consume(document string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.pending[document]
	switch {
	case !ok || n == 0:
		return false
	case n > 0:
		f.pending[document] = n - 1
	}
	return true
}
