package ignore

// orderedSet is a string set that remembers insertion order.
type orderedSet struct {
	idx   map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{idx: map[string]struct{}{}}
}

func (o *orderedSet) has(s string) bool {
	_, ok := o.idx[s]
	return ok
}

func (o *orderedSet) add(s string) {
	if o.has(s) {
		return
	}
	o.idx[s] = struct{}{}
	o.order = append(o.order, s)
}

func (o *orderedSet) remove(s string) {
	if !o.has(s) {
		return
	}
	delete(o.idx, s)
	for i, v := range o.order {
		if v == s {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

func (o *orderedSet) popOldest() string {
	if len(o.order) == 0 {
		return ""
	}
	s := o.order[0]
	o.order = o.order[1:]
	delete(o.idx, s)
	return s
}

func (o *orderedSet) len() int { return len(o.order) }

func (o *orderedSet) list() []string { return append([]string(nil), o.order...) }

func (o *orderedSet) equal(other *orderedSet) bool {
	if o.len() != other.len() {
		return false
	}
	for s := range o.idx {
		if !other.has(s) {
			return false
		}
	}
	return true
}
