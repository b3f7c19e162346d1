package pgo

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash"
)

// ProfileKind tells what declaration a profile type stands for.
type ProfileKind uint8

const (
	KindClass ProfileKind = iota
	KindLiteral
	KindArrayLiteral
	KindPrototype
	KindConstructor
	KindTransition
)

func (k ProfileKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindLiteral:
		return "literal"
	case KindArrayLiteral:
		return "array-literal"
	case KindPrototype:
		return "prototype"
	case KindConstructor:
		return "constructor"
	case KindTransition:
		return "transition"
	default:
		return "unknown"
	}
}

// ProfileType is the VM-independent identity of a recorded shape: the
// bytecode file it comes from and a declaration id within it.
type ProfileType struct {
	AbcID uint32
	ID    uint32
	Kind  ProfileKind
}

func NewProfileType(abcID, id uint32, kind ProfileKind) ProfileType {
	return ProfileType{AbcID: abcID, ID: id, Kind: kind}
}

func (p ProfileType) IsZero() bool { return p == ProfileType{} }

func (p ProfileType) String() string {
	return fmt.Sprintf("(%d, %d, %s)", p.AbcID, p.ID, p.Kind)
}

// Child derives the profile type of the node reached from p by adding key
// with the given attribute metadata. The derivation is deterministic, so
// separate runs agree on node identities.
func (p ProfileType) Child(key string, meta uint8) ProfileType {
	var b [10]byte
	binary.LittleEndian.PutUint32(b[0:], p.AbcID)
	binary.LittleEndian.PutUint32(b[4:], p.ID)
	b[8] = byte(p.Kind)
	b[9] = meta
	d := xxhash.New()
	_, _ = d.Write(b[:])
	_, _ = d.Write([]byte(key))
	return ProfileType{AbcID: p.AbcID, ID: uint32(d.Sum64()), Kind: KindTransition}
}

func compareTypes(a, b ProfileType) int {
	switch {
	case a.AbcID != b.AbcID:
		return cmpUint(a.AbcID, b.AbcID)
	case a.ID != b.ID:
		return cmpUint(a.ID, b.ID)
	default:
		return cmpUint(a.Kind, b.Kind)
	}
}

func cmpUint[T ~uint8 | ~uint32](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
