package hprof

import (
	"fmt"
	"strings"
)

const unresolvedPrefix = "unresolved name "

// UnresolvedName is the placeholder used for an id with no UTF8 record.
func UnresolvedName(id uint64) string {
	return fmt.Sprintf("%s%d", unresolvedPrefix, id)
}

// IsUnresolved reports whether name is a placeholder produced by Resolve.
func IsUnresolved(name string) bool {
	return strings.HasPrefix(name, unresolvedPrefix)
}

// SymbolTable maps symbol ids to names. Later entries with the same id
// replace earlier ones.
type SymbolTable struct {
	names map[uint64]string
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{names: make(map[uint64]string)}
}

// Put binds id to name.
func (t *SymbolTable) Put(id uint64, name string) {
	t.names[id] = name
}

// Lookup returns the name bound to id, or ErrUnresolvedSymbol.
func (t *SymbolTable) Lookup(id uint64) (string, error) {
	name, ok := t.names[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnresolvedSymbol, id)
	}
	return name, nil
}

// Resolve returns the name bound to id, or the placeholder for an unknown
// id. Resolve never fails and always returns the same answer for the same
// table contents.
func (t *SymbolTable) Resolve(id uint64) string {
	if name, ok := t.names[id]; ok {
		return name
	}
	return UnresolvedName(id)
}

// ResolveOptional is Resolve for fields where id 0 means absent, such as a
// frame without a source file or a thread without a parent group. An
// unbound 0 resolves to the empty string.
func (t *SymbolTable) ResolveOptional(id uint64) string {
	if _, ok := t.names[id]; !ok && id == 0 {
		return ""
	}
	return t.Resolve(id)
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	return len(t.names)
}

// All returns the underlying map. Callers must not modify it.
func (t *SymbolTable) All() map[uint64]string {
	return t.names
}

// ClassName converts a JVM internal class name to its dotted form.
func ClassName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// ClassTable holds LOAD_CLASS records keyed by class serial number, in load order.
type ClassTable struct {
	bySerial map[uint32]*LoadedClass
	order    []uint32
}

// NewClassTable creates an empty table.
func NewClassTable() *ClassTable {
	return &ClassTable{bySerial: make(map[uint32]*LoadedClass)}
}

// Load inserts or replaces the class with c's serial number. A class that
// has been unloaded stays unloaded.
func (t *ClassTable) Load(c *LoadedClass) {
	prev, ok := t.bySerial[c.SerialNumber]
	if !ok {
		t.order = append(t.order, c.SerialNumber)
	} else if prev.Status == ClassUnloaded {
		c.Status = ClassUnloaded
	}
	t.bySerial[c.SerialNumber] = c
}

// Unload marks the class with the given serial as unloaded. It reports
// whether the serial was known; an unknown serial is left alone.
func (t *ClassTable) Unload(serial uint32) bool {
	c, ok := t.bySerial[serial]
	if !ok {
		return false
	}
	c.Status = ClassUnloaded
	return true
}

// Get returns the class with the given serial.
func (t *ClassTable) Get(serial uint32) (*LoadedClass, bool) {
	c, ok := t.bySerial[serial]
	return c, ok
}

// Len returns the number of classes.
func (t *ClassTable) Len() int {
	return len(t.bySerial)
}

// Classes returns all classes in load order.
func (t *ClassTable) Classes() []*LoadedClass {
	out := make([]*LoadedClass, 0, len(t.order))
	for _, serial := range t.order {
		out = append(out, t.bySerial[serial])
	}
	return out
}

// ResolveNames re-resolves class names that were placeholders when their
// LOAD_CLASS record was read, and returns how many were fixed.
func (t *ClassTable) ResolveNames(symbols *SymbolTable) int {
	fixed := 0
	for _, c := range t.bySerial {
		if !IsUnresolved(c.Name) {
			continue
		}
		if name, err := symbols.Lookup(c.NameID); err == nil {
			c.Name = ClassName(name)
			fixed++
		}
	}
	return fixed
}
