package vm

import "fmt"

// HandlerKind classifies what a cached handler does.
type HandlerKind uint8

const (
	HandlerField       HandlerKind = iota // own data slot
	HandlerNonExistent                    // key absent along the whole chain
	HandlerPrototype                      // data slot on a prototype holder
	HandlerAccessor                       // getter or setter call
	HandlerTransition                     // store that adds the key
	HandlerElement                        // indexed access on an array or typed array
	HandlerGlobal                         // global variable cell
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerField:
		return "field"
	case HandlerNonExistent:
		return "non-existent"
	case HandlerPrototype:
		return "prototype"
	case HandlerAccessor:
		return "accessor"
	case HandlerTransition:
		return "transition"
	case HandlerElement:
		return "element"
	case HandlerGlobal:
		return "global"
	default:
		return "unknown"
	}
}

type elementFlags uint8

const (
	elemJSArray elementFlags = 1 << iota
	elemTypedArray
	elemOnHeap
	elemOutOfBounds
)

// Handler is the immutable recipe recorded by an inline cache for one
// receiver class.
type Handler struct {
	kind   HandlerKind
	attr   PropertyAttributes
	holder *JSObject
	marker *ProtoChangeMarker
	child  HClassRef
	elem   elementFlags
	box    *PropertyBox
}

func (h *Handler) Kind() HandlerKind              { return h.kind }
func (h *Handler) Attributes() PropertyAttributes { return h.attr }
func (h *Handler) Offset() uint32                 { return h.attr.Offset() }
func (h *Handler) IsInlined() bool                { return h.attr.IsInlined() }
func (h *Handler) Holder() *JSObject              { return h.holder }
func (h *Handler) Marker() *ProtoChangeMarker     { return h.marker }
func (h *Handler) TransitionTarget() HClassRef    { return h.child }
func (h *Handler) Box() *PropertyBox              { return h.box }
func (h *Handler) IsJSArray() bool                { return h.elem&elemJSArray != 0 }
func (h *Handler) IsTypedArray() bool             { return h.elem&elemTypedArray != 0 }
func (h *Handler) IsOnHeap() bool                 { return h.elem&elemOnHeap != 0 }
func (h *Handler) AllowsOutOfBounds() bool        { return h.elem&elemOutOfBounds != 0 }

// IsValid reports whether the assumptions the handler was built on still hold.
func (h *Handler) IsValid() bool {
	if h.marker.HasChanged() {
		return false
	}
	if h.kind == HandlerGlobal {
		return h.box.IsValid()
	}
	return true
}

func (h *Handler) String() string {
	switch h.kind {
	case HandlerTransition:
		return fmt.Sprintf("transition(%s, offset=%d)", h.child, h.Offset())
	case HandlerElement:
		return fmt.Sprintf("element(array=%t, typed=%t, onHeap=%t, oob=%t)",
			h.IsJSArray(), h.IsTypedArray(), h.IsOnHeap(), h.AllowsOutOfBounds())
	case HandlerGlobal:
		return fmt.Sprintf("global(%s)", h.box.key)
	case HandlerNonExistent:
		return "non-existent"
	default:
		return fmt.Sprintf("%s(offset=%d, inlined=%t)", h.kind, h.Offset(), h.IsInlined())
	}
}

// withChild returns a copy retargeted at a relocated transition child.
func (h *Handler) withChild(ref HClassRef) *Handler {
	c := *h
	c.child = ref
	return &c
}
