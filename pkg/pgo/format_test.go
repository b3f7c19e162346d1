package pgo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	requireT := require.New(t)

	p := NewProfile()
	p.Add(sampleTree(1))
	sb := &strings.Builder{}
	requireT.NoError(Format(sb, p, nil))

	out := sb.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	requireT.Len(lines, 7)
	requireT.True(strings.HasPrefix(lines[0], "(1, 1, literal) kind=object"))
	requireT.Contains(lines[0], "max=4")
	requireT.Equal("  = p:int", lines[1])
	requireT.Equal("  + a:int meta=7", lines[2])
	requireT.Equal("      + c:tagged meta=7", lines[4])

	sb.Reset()
	requireT.NoError(Format(sb, p, func(k string) bool { return k == "missing" }))
	requireT.Empty(sb.String())

	sb.Reset()
	requireT.NoError(Format(sb, p, func(k string) bool { return k == "c" }))
	requireT.Equal(out, sb.String())
}
