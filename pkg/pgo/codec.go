package pgo

import (
	"bufio"
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/nooga/hiddenclass/pkg/vm"
)

const (
	profileMagic   uint32 = 0x48435047 // "GPCH"
	profileVersion uint32 = 1
	maxKeyLength          = 1 << 16
	maxCount              = 1 << 24
)

// ErrCorrupt is returned for profile data that does not decode.
var ErrCorrupt = errors.New("corrupt profile")

type fileHeader struct {
	Magic   uint32
	Version uint32
	Trees   uint32
}

type treeHeader struct {
	AbcID        uint32
	ID           uint32
	Kind         ProfileKind
	ObjectKind   vm.ObjectKind
	Flavor       vm.Flavor
	_            uint8
	Size         uint32
	InlinedProps uint32
	NumProps     uint32
	NumChildren  uint32
}

type childHeader struct {
	AbcID      uint32
	ID         uint32
	ParentAbc  uint32
	ParentID   uint32
	Kind       ProfileKind
	ParentKind ProfileKind
	_          [2]uint8
}

// Encode writes p in the binary profile format.
func Encode(w io.Writer, p *Profile) error {
	bw := bufio.NewWriter(w)
	snap := p.Snapshot()
	types := snap.Types()

	fh := fileHeader{Magic: profileMagic, Version: profileVersion, Trees: uint32(len(types))}
	if _, err := bw.Write(photon.NewFromValue(&fh).B); err != nil {
		return errors.WithStack(err)
	}
	for _, pt := range types {
		t, _ := snap.Tree(pt)
		if err := encodeTree(bw, t); err != nil {
			return err
		}
	}
	return errors.WithStack(bw.Flush())
}

func encodeTree(w *bufio.Writer, t *TreeDesc) error {
	th := treeHeader{
		AbcID:        t.Root.Type.AbcID,
		ID:           t.Root.Type.ID,
		Kind:         t.Root.Type.Kind,
		ObjectKind:   t.Root.ObjectKind,
		Flavor:       t.Root.Flavor,
		Size:         t.Root.Size,
		InlinedProps: t.Root.InlinedProps,
		NumProps:     uint32(len(t.Root.Props)),
		NumChildren:  uint32(t.Len()),
	}
	if _, err := w.Write(photon.NewFromValue(&th).B); err != nil {
		return errors.WithStack(err)
	}
	for _, prop := range t.Root.Props {
		if err := encodeProp(w, prop); err != nil {
			return err
		}
	}
	var err error
	t.Walk(func(n *ChildLayoutDesc) bool {
		if err != nil {
			return false
		}
		ch := childHeader{
			AbcID:      n.Type.AbcID,
			ID:         n.Type.ID,
			Kind:       n.Type.Kind,
			ParentAbc:  n.Parent.AbcID,
			ParentID:   n.Parent.ID,
			ParentKind: n.Parent.Kind,
		}
		if _, err = w.Write(photon.NewFromValue(&ch).B); err != nil {
			err = errors.WithStack(err)
			return false
		}
		err = encodeProp(w, n.Prop)
		return err == nil
	})
	return err
}

func encodeProp(w *bufio.Writer, p PropertyDesc) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(p.Key)))
	if _, err := w.Write(buf[:n]); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.WriteString(p.Key); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.Write([]byte{byte(p.Track), p.Meta}); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Decode reads a profile written by Encode.
func Decode(r io.Reader) (*Profile, error) {
	br := bufio.NewReader(r)
	fh, err := readFixed[fileHeader](br)
	if err != nil {
		return nil, errors.Wrap(err, "reading profile header")
	}
	if fh.Magic != profileMagic {
		return nil, errors.Wrapf(ErrCorrupt, "bad magic %#x", fh.Magic)
	}
	if fh.Version != profileVersion {
		return nil, errors.Errorf("unsupported profile version %d", fh.Version)
	}
	if fh.Trees > maxCount {
		return nil, errors.Wrapf(ErrCorrupt, "tree count %d", fh.Trees)
	}

	p := NewProfile()
	for i := range fh.Trees {
		t, err := decodeTree(br)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding tree %d", i)
		}
		p.Add(t)
	}
	return p, nil
}

func decodeTree(r *bufio.Reader) (*TreeDesc, error) {
	th, err := readFixed[treeHeader](r)
	if err != nil {
		return nil, err
	}
	if th.NumProps > maxCount || th.NumChildren > maxCount {
		return nil, errors.Wrapf(ErrCorrupt, "counts %d/%d", th.NumProps, th.NumChildren)
	}
	root := RootLayoutDesc{
		Type:         NewProfileType(th.AbcID, th.ID, th.Kind),
		ObjectKind:   th.ObjectKind,
		Flavor:       th.Flavor,
		Size:         th.Size,
		InlinedProps: th.InlinedProps,
		Props:        make([]PropertyDesc, 0, th.NumProps),
	}
	for range th.NumProps {
		prop, err := decodeProp(r)
		if err != nil {
			return nil, err
		}
		root.Props = append(root.Props, prop)
	}

	t := NewTreeDesc(root)
	for range th.NumChildren {
		ch, err := readFixed[childHeader](r)
		if err != nil {
			return nil, err
		}
		prop, err := decodeProp(r)
		if err != nil {
			return nil, err
		}
		parent := NewProfileType(ch.ParentAbc, ch.ParentID, ch.ParentKind)
		pt, _ := t.AddChild(parent, prop)
		if pt != NewProfileType(ch.AbcID, ch.ID, ch.Kind) {
			return nil, errors.Wrapf(ErrCorrupt, "child %q of %s does not match its id", prop.Key, parent)
		}
	}
	return t, nil
}

func decodeProp(r *bufio.Reader) (PropertyDesc, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return PropertyDesc{}, errors.WithStack(err)
	}
	if n > maxKeyLength {
		return PropertyDesc{}, errors.Wrapf(ErrCorrupt, "key length %d", n)
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return PropertyDesc{}, errors.WithStack(err)
	}
	track := TrackType(buf[n])
	if track > TrackAccessor {
		return PropertyDesc{}, errors.Wrapf(ErrCorrupt, "track type %d", track)
	}
	return PropertyDesc{Key: string(buf[:n]), Track: track, Meta: buf[n+1]}, nil
}

func readFixed[T comparable](r io.Reader) (T, error) {
	var v T
	buf := make([]byte, unsafe.Sizeof(v))
	if _, err := io.ReadFull(r, buf); err != nil {
		return v, errors.WithStack(err)
	}
	return *photon.FromBytes[T](buf), nil
}
