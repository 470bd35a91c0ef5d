package hprof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTable_Resolve(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Put(1, "java/lang/String")

	tests := []struct {
		name     string
		id       uint64
		expected string
	}{
		{"known", 1, "java/lang/String"},
		{"unknown", 42, "unresolved name 42"},
		{"zero", 0, "unresolved name 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := symbols.Resolve(tt.id)
			assert.Equal(t, tt.expected, first)
			assert.Equal(t, first, symbols.Resolve(tt.id))
		})
	}
}

func TestSymbolTable_ResolveOptional(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Put(1, "Main.java")

	assert.Equal(t, "", symbols.ResolveOptional(0))
	assert.Equal(t, "Main.java", symbols.ResolveOptional(1))
	assert.Equal(t, "unresolved name 9", symbols.ResolveOptional(9))

	symbols.Put(0, "zero")
	assert.Equal(t, "zero", symbols.ResolveOptional(0))
	assert.Equal(t, "zero", symbols.Resolve(0))
}

func TestSymbolTable_Lookup(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Put(7, "x")

	name, err := symbols.Lookup(7)
	require.NoError(t, err)
	assert.Equal(t, "x", name)

	_, err = symbols.Lookup(8)
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
}

func TestSymbolTable_LaterEntryWins(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Put(1, "old")
	symbols.Put(1, "new")
	assert.Equal(t, "new", symbols.Resolve(1))
	assert.Equal(t, 1, symbols.Len())
}

func TestIsUnresolved(t *testing.T) {
	assert.True(t, IsUnresolved(UnresolvedName(5)))
	assert.False(t, IsUnresolved("java.lang.Object"))
}

func TestClassTable(t *testing.T) {
	t.Run("load order is preserved", func(t *testing.T) {
		classes := NewClassTable()
		classes.Load(&LoadedClass{SerialNumber: 3, Name: "C", Status: ClassLoaded})
		classes.Load(&LoadedClass{SerialNumber: 1, Name: "A", Status: ClassLoaded})
		classes.Load(&LoadedClass{SerialNumber: 2, Name: "B", Status: ClassLoaded})

		var names []string
		for _, c := range classes.Classes() {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"C", "A", "B"}, names)
		assert.Equal(t, 3, classes.Len())
	})

	t.Run("unload", func(t *testing.T) {
		classes := NewClassTable()
		classes.Load(&LoadedClass{SerialNumber: 1, Status: ClassLoaded})

		assert.True(t, classes.Unload(1))
		assert.False(t, classes.Unload(2))

		c, ok := classes.Get(1)
		require.True(t, ok)
		assert.Equal(t, ClassUnloaded, c.Status)
		_, ok = classes.Get(2)
		assert.False(t, ok)
	})

	t.Run("reload keeps unloaded status", func(t *testing.T) {
		classes := NewClassTable()
		classes.Load(&LoadedClass{SerialNumber: 1, Status: ClassLoaded})
		classes.Unload(1)
		classes.Load(&LoadedClass{SerialNumber: 1, Status: ClassLoaded})

		c, _ := classes.Get(1)
		assert.Equal(t, ClassUnloaded, c.Status)
		assert.Equal(t, 1, classes.Len())
	})

	t.Run("resolve names", func(t *testing.T) {
		symbols := NewSymbolTable()
		classes := NewClassTable()
		classes.Load(&LoadedClass{SerialNumber: 1, NameID: 10, Name: UnresolvedName(10)})
		classes.Load(&LoadedClass{SerialNumber: 2, NameID: 11, Name: UnresolvedName(11)})
		symbols.Put(10, "a/b/C")

		assert.Equal(t, 1, classes.ResolveNames(symbols))
		c, _ := classes.Get(1)
		assert.Equal(t, "a.b.C", c.Name)
		c, _ = classes.Get(2)
		assert.Equal(t, "unresolved name 11", c.Name)
	})
}

func TestClassStatus_String(t *testing.T) {
	assert.Equal(t, "loaded", ClassLoaded.String())
	assert.Equal(t, "unloaded", ClassUnloaded.String())
}
