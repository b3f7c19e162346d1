package vm

// NameDictionary is the side table of a dictionary-mode object. Entries keep
// insertion order; deletions leave tombstones that are compacted once they
// outnumber live entries.
type NameDictionary struct {
	index   map[PropertyKey]int
	entries []dictEntry
	live    int
}

type dictEntry struct {
	key     PropertyKey
	value   any
	attr    PropertyAttributes
	deleted bool
}

func NewNameDictionary(capacity int) *NameDictionary {
	return &NameDictionary{
		index:   make(map[PropertyKey]int, capacity),
		entries: make([]dictEntry, 0, capacity),
	}
}

func (d *NameDictionary) Len() int { return d.live }

// Get returns the value and attributes stored for key.
func (d *NameDictionary) Get(key PropertyKey) (any, PropertyAttributes, bool) {
	i, ok := d.index[key]
	if !ok {
		return nil, 0, false
	}
	e := &d.entries[i]
	return e.value, e.attr, true
}

// Set inserts or overwrites key. Overwriting keeps the original position.
func (d *NameDictionary) Set(key PropertyKey, value any, attr PropertyAttributes) {
	if i, ok := d.index[key]; ok {
		d.entries[i].value = value
		d.entries[i].attr = attr
		return
	}
	d.index[key] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value, attr: attr})
	d.live++
}

// SetValue overwrites the value of an existing key, keeping its attributes.
func (d *NameDictionary) SetValue(key PropertyKey, value any) bool {
	i, ok := d.index[key]
	if !ok {
		return false
	}
	d.entries[i].value = value
	return true
}

func (d *NameDictionary) Delete(key PropertyKey) bool {
	i, ok := d.index[key]
	if !ok {
		return false
	}
	delete(d.index, key)
	d.entries[i] = dictEntry{deleted: true}
	d.live--
	if dead := len(d.entries) - d.live; dead > 8 && dead > d.live {
		d.compact()
	}
	return true
}

// Range visits live entries in insertion order until fn returns false.
func (d *NameDictionary) Range(fn func(key PropertyKey, value any, attr PropertyAttributes) bool) {
	for i := range d.entries {
		e := &d.entries[i]
		if e.deleted {
			continue
		}
		if !fn(e.key, e.value, e.attr) {
			return
		}
	}
}

func (d *NameDictionary) compact() {
	entries := make([]dictEntry, 0, d.live)
	for _, e := range d.entries {
		if e.deleted {
			continue
		}
		d.index[e.key] = len(entries)
		entries = append(entries, e)
	}
	d.entries = entries
}
