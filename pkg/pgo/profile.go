package pgo

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Profile is a keyed collection of recorded trees.
type Profile struct {
	mu    sync.RWMutex
	trees map[ProfileType]*TreeDesc
}

func NewProfile() *Profile {
	return &Profile{trees: map[ProfileType]*TreeDesc{}}
}

// Tree returns the tree recorded for root type pt.
func (p *Profile) Tree(pt ProfileType) (*TreeDesc, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.trees[pt]
	return t, ok
}

// Len returns the number of trees.
func (p *Profile) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.trees)
}

// Types returns the root types in a stable order.
func (p *Profile) Types() []ProfileType {
	p.mu.RLock()
	types := lo.Keys(p.trees)
	p.mu.RUnlock()
	slices.SortFunc(types, compareTypes)
	return types
}

// Add merges tree into the profile, taking a copy of it.
func (p *Profile) Add(tree *TreeDesc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.trees[tree.Type()]; ok {
		cur.Merge(tree)
		return
	}
	p.trees[tree.Type()] = tree.Clone()
}

// Merge unions every tree of other into p.
func (p *Profile) Merge(other *Profile) {
	snap := other.Snapshot()
	for _, pt := range snap.Types() {
		p.Add(snap.trees[pt])
	}
}

// Snapshot returns a deep copy safe to use without the profile's lock.
func (p *Profile) Snapshot() *Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := NewProfile()
	for pt, t := range p.trees {
		s.trees[pt] = t.Clone()
	}
	return s
}

// Fingerprint hashes all trees in type order.
func (p *Profile) Fingerprint() uint64 {
	types := p.Types()
	p.mu.RLock()
	defer p.mu.RUnlock()
	var h uint64
	for _, pt := range types {
		if t, ok := p.trees[pt]; ok {
			h = h*31 + t.Fingerprint()
		}
	}
	return h
}
