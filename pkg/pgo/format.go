package pgo

import (
	"fmt"
	"io"
	"strings"
)

// Format writes a human-readable rendering of p, one tree per block. When
// keep is not nil only trees with at least one key it accepts are written.
func Format(w io.Writer, p *Profile, keep func(key string) bool) error {
	snap := p.Snapshot()
	for _, pt := range snap.Types() {
		t, _ := snap.Tree(pt)
		if keep != nil && !treeHasKey(t, keep) {
			continue
		}
		r := t.Root
		if _, err := fmt.Fprintf(w, "%s kind=%s flavor=%d size=%d inline=%d max=%d fingerprint=%016x\n",
			pt, r.ObjectKind, r.Flavor, r.Size, r.InlinedProps, t.CalculateMaxNumOfObj(), t.Fingerprint()); err != nil {
			return err
		}
		for _, prop := range r.Props {
			if _, err := fmt.Fprintf(w, "  = %s:%s\n", prop.Key, prop.Track); err != nil {
				return err
			}
		}
		var err error
		t.Walk(func(n *ChildLayoutDesc) bool {
			indent := strings.Repeat("  ", t.Depth(n.Type))
			_, err = fmt.Fprintf(w, "%s+ %s:%s meta=%d\n", indent, n.Prop.Key, n.Prop.Track, n.Prop.Meta)
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func treeHasKey(t *TreeDesc, keep func(key string) bool) bool {
	for _, prop := range t.Root.Props {
		if keep(prop.Key) {
			return true
		}
	}
	found := false
	t.Walk(func(n *ChildLayoutDesc) bool {
		found = found || keep(n.Prop.Key)
		return !found
	})
	return found
}
