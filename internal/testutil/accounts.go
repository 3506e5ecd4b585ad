package testutil

import (
	"sort"
	"sync"

	"github.com/roach88/capsale/internal/ir"
)

// AddressBook maps human-readable account names to addresses and back.
//
// Names resolve through ir.NamedAddress unless bound explicitly, so the
// same name always yields the same address across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type AddressBook struct {
	mu     sync.Mutex
	byName map[string]ir.Address
	byAddr map[ir.Address]string
}

// NewAddressBook creates an empty address book.
func NewAddressBook() *AddressBook {
	return &AddressBook{
		byName: make(map[string]ir.Address),
		byAddr: make(map[ir.Address]string),
	}
}

// Address returns the address for name, registering it on first use.
func (b *AddressBook) Address(name string) ir.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.byName[name]; ok {
		return a
	}
	a := ir.NamedAddress(name)
	b.byName[name] = a
	b.byAddr[a] = name
	return a
}

// Bind names an address that was not derived from its name, such as a
// deployed contract. A later Bind of the same name replaces the earlier one.
func (b *AddressBook) Bind(name string, addr ir.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.byName[name]; ok {
		delete(b.byAddr, old)
	}
	b.byName[name] = addr
	b.byAddr[addr] = name
}

// Name returns the name registered for addr.
func (b *AddressBook) Name(addr ir.Address) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name, ok := b.byAddr[addr]
	return name, ok
}

// Label returns the registered name for addr, or its hex form.
func (b *AddressBook) Label(addr ir.Address) string {
	if name, ok := b.Name(addr); ok {
		return name
	}
	return addr.String()
}

// Names returns all registered names in sorted order.
func (b *AddressBook) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.byName))
	for name := range b.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
