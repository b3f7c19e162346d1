package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/outofforest/logger"
	"github.com/stretchr/testify/require"

	"github.com/nooga/hiddenclass/pkg/pgo"
	"github.com/nooga/hiddenclass/pkg/vm"
)

func prop(k string) pgo.PropertyDesc {
	return pgo.PropertyDesc{Key: k, Track: pgo.TrackInt, Meta: uint8(vm.DefaultAttributes().Metadata())}
}

// saveProfile writes a profile holding one tree root -> keys[0] -> keys[1] ...
func saveProfile(t *testing.T, id uint32, keys ...string) string {
	t.Helper()
	root := pgo.NewProfileType(1, id, pgo.KindLiteral)
	tree := pgo.NewTreeDesc(pgo.RootLayoutDesc{Type: root, ObjectKind: vm.KindObject, InlinedProps: 4, Size: 48})
	parent := root
	for _, k := range keys {
		parent, _ = tree.AddChild(parent, prop(k))
	}
	p := pgo.NewProfile()
	p.Add(tree)
	path := filepath.Join(t.TempDir(), "profile.ap")
	require.NoError(t, pgo.NewFileStore(path).Save(p))
	return path
}

func TestMergeCommand(t *testing.T) {
	requireT := require.New(t)

	a := saveProfile(t, 1, "x", "y")
	b := saveProfile(t, 2, "name")
	out := filepath.Join(t.TempDir(), "merged.ap")
	requireT.NoError(runMerge([]string{"-o", out, a, b}))

	merged, err := pgo.NewFileStore(out).Load()
	requireT.NoError(err)
	requireT.Equal(2, merged.Len())

	requireT.ErrorIs(runMerge([]string{a}), errUsage)
	requireT.ErrorIs(runMerge([]string{"-o", out}), errUsage)
}

func TestDumpCommand(t *testing.T) {
	requireT := require.New(t)

	a := saveProfile(t, 1, "x", "y")
	b := saveProfile(t, 2, "name")
	path := filepath.Join(t.TempDir(), "merged.ap")
	requireT.NoError(runMerge([]string{"-o", path, a, b}))

	buf := &bytes.Buffer{}
	requireT.NoError(runDump(buf, []string{path}))
	out := buf.String()
	requireT.Contains(out, "+ x:int")
	requireT.Contains(out, "+ name:int")
	requireT.True(strings.HasSuffix(out, "2 trees, 3 nodes\n"), out)

	buf.Reset()
	requireT.NoError(runDump(buf, []string{"-match", "^na(?=me)", path}))
	out = buf.String()
	requireT.Contains(out, "+ name:int")
	requireT.NotContains(out, "+ x:int")

	requireT.Error(runDump(buf, []string{"-match", "(", path}))
	requireT.ErrorIs(runDump(buf, nil), errUsage)
}

func TestRecordCommand(t *testing.T) {
	requireT := require.New(t)

	out := filepath.Join(t.TempDir(), "recorded.ap")
	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	requireT.NoError(runRecord(ctx, []string{"-o", out, "-objects", "30"}))

	p, err := pgo.NewFileStore(out).Load()
	requireT.NoError(err)
	tree, ok := p.Tree(pgo.NewProfileType(1, 1, pgo.KindLiteral))
	requireT.True(ok)

	tracks := map[string]pgo.TrackType{}
	tree.Walk(func(n *pgo.ChildLayoutDesc) bool {
		tracks[n.Prop.Key] = n.Prop.Track
		return true
	})
	requireT.Equal(pgo.TrackInt, tracks["x"])
	requireT.Equal(pgo.TrackDouble, tracks["y"])
	requireT.Equal(pgo.TrackTagged, tracks["z"])

	requireT.ErrorIs(runRecord(ctx, nil), errUsage)
}
