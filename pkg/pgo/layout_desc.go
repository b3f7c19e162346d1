package pgo

import (
	"github.com/nooga/hiddenclass/pkg/vm"
)

// TrackType is the recorded value kind of a property.
type TrackType uint8

const (
	TrackNone TrackType = iota
	TrackInt
	TrackDouble
	TrackTagged
	TrackAccessor
)

func (t TrackType) String() string {
	switch t {
	case TrackNone:
		return "none"
	case TrackInt:
		return "int"
	case TrackDouble:
		return "double"
	case TrackTagged:
		return "tagged"
	case TrackAccessor:
		return "accessor"
	default:
		return "unknown"
	}
}

// Merge widens t to cover o.
func (t TrackType) Merge(o TrackType) TrackType {
	if t == TrackAccessor || o == TrackAccessor {
		return TrackAccessor
	}
	return fromRepresentation(t.Representation().Merge(o.Representation()))
}

// Representation maps the track type back to a field representation.
func (t TrackType) Representation() vm.Representation {
	switch t {
	case TrackInt:
		return vm.RepInt
	case TrackDouble:
		return vm.RepDouble
	case TrackTagged, TrackAccessor:
		return vm.RepTagged
	default:
		return vm.RepNone
	}
}

func fromRepresentation(r vm.Representation) TrackType {
	switch r {
	case vm.RepInt:
		return TrackInt
	case vm.RepDouble:
		return TrackDouble
	case vm.RepTagged:
		return TrackTagged
	default:
		return TrackNone
	}
}

func trackOf(attr vm.PropertyAttributes) TrackType {
	if attr.IsAccessor() {
		return TrackAccessor
	}
	return fromRepresentation(attr.Representation())
}

// PropertyDesc is one recorded (key, type hint) pair with the descriptor
// flags that identify the transition edge.
type PropertyDesc struct {
	Key   string
	Track TrackType
	Meta  uint8
}

// Attributes rebuilds the attributes a live class would carry for the property.
func (p PropertyDesc) Attributes() vm.PropertyAttributes {
	return vm.PropertyAttributes(0).WithMetadata(uint32(p.Meta)).WithRepresentation(p.Track.Representation())
}

func propertyOf(key vm.PropertyKey, attr vm.PropertyAttributes) PropertyDesc {
	return PropertyDesc{Key: key.Name(), Track: trackOf(attr), Meta: uint8(attr.Metadata())}
}

// RootLayoutDesc describes the root of a recorded tree.
type RootLayoutDesc struct {
	Type         ProfileType
	ObjectKind   vm.ObjectKind
	Flavor       vm.Flavor
	Size         uint32
	InlinedProps uint32
	Props        []PropertyDesc
}

// ChildLayoutDesc is one property-add edge below a root or another child.
type ChildLayoutDesc struct {
	Type   ProfileType
	Parent ProfileType
	Prop   PropertyDesc
}
