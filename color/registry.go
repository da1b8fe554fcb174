package color

import (
	"bytes"
	"fmt"
	"sync"
)

// Registry records the authority script behind each reissuable identifier
// so that later reissuance can locate it.
type Registry interface {
	RegisterAuthority(id ID, lockingScript []byte) error
	AuthorityScript(id ID) ([]byte, error)
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	scripts map[ID][]byte
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{scripts: make(map[ID][]byte)}
}

// RegisterAuthority stores lockingScript for id. The identifier must be the
// reissuable identifier of that script.
func (r *MemoryRegistry) RegisterAuthority(id ID, lockingScript []byte) error {
	if err := CheckAuthority(id, lockingScript); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[id] = bytes.Clone(lockingScript)
	return nil
}

// AuthorityScript returns the script registered for id.
func (r *MemoryRegistry) AuthorityScript(id ID) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthority, id)
	}
	return bytes.Clone(s), nil
}

// CheckAuthority verifies that id is the reissuable identifier derived from
// lockingScript.
func CheckAuthority(id ID, lockingScript []byte) error {
	if id.Type() != TypeReissuable {
		return fmt.Errorf("%w: %s has no authority script", ErrUnsupportedTokenType, id.Type())
	}
	if Reissuable(lockingScript) != id {
		return fmt.Errorf("%w: script does not derive %s", ErrInvalidID, id)
	}
	return nil
}
