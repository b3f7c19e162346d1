package vm

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash"
)

type KeyKind uint8

const (
	KeyKindString KeyKind = iota
	KeyKindSymbol
)

// Symbol is a unique, non-string property key identity.
type Symbol struct {
	id   uint32
	desc string
}

var symbolCounter atomic.Uint32

// NewSymbol allocates a fresh symbol. Two symbols with the same description are distinct.
func NewSymbol(desc string) *Symbol {
	return &Symbol{id: symbolCounter.Add(1), desc: desc}
}

func (s *Symbol) String() string { return fmt.Sprintf("Symbol(%s)", s.desc) }

// PropertyKey represents a property key which can be a string or a symbol.
// It is comparable and used directly as a map key.
type PropertyKey struct {
	kind KeyKind
	name string
	sym  uint32
}

// NewStringKey constructs a PropertyKey for string-named properties.
func NewStringKey(name string) PropertyKey { return PropertyKey{kind: KeyKindString, name: name} }

// NewSymbolKey constructs a PropertyKey for symbol-named properties.
func NewSymbolKey(sym *Symbol) PropertyKey {
	return PropertyKey{kind: KeyKindSymbol, name: sym.desc, sym: sym.id}
}

func (k PropertyKey) Kind() KeyKind  { return k.kind }
func (k PropertyKey) IsString() bool { return k.kind == KeyKindString }
func (k PropertyKey) IsSymbol() bool { return k.kind == KeyKindSymbol }

// Name returns the string name, or the symbol description for symbol keys.
func (k PropertyKey) Name() string { return k.name }

func (k PropertyKey) String() string {
	if k.kind == KeyKindSymbol {
		return fmt.Sprintf("Symbol(%s)", k.name)
	}
	return k.name
}

// ElementIndex reports whether the key is a canonical array index.
func (k PropertyKey) ElementIndex() (int, bool) {
	if k.kind != KeyKindString {
		return 0, false
	}
	return tryParseArrayIndex(k.name)
}

// hash is stable within a process; symbol hashes are not stable across runs.
func (k PropertyKey) hash() uint64 {
	if k.kind == KeyKindSymbol {
		var b [5]byte
		b[0] = byte(KeyKindSymbol)
		binary.LittleEndian.PutUint32(b[1:], k.sym)
		return xxhash.Sum64(b[:])
	}
	return xxhash.Sum64([]byte(k.name))
}

// tryParseArrayIndex checks if a string represents a valid array index.
// Valid array indices are non-negative integers in range [0, 2^32-1) without leading zeros.
func tryParseArrayIndex(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	if len(key) > 1 && key[0] == '0' {
		return 0, false
	}
	idx := 0
	for _, ch := range key {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		idx = idx*10 + int(ch-'0')
		if idx > 4294967294 {
			return 0, false
		}
	}
	return idx, true
}
