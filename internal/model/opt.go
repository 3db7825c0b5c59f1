package model

import "time"

// Opt is one field of a partial record. Set reports whether the field was
// present in the source payload; an unset field never overwrites stored data.
type Opt[T any] struct {
	Set   bool
	Value T
}

// Some returns a set field holding v
func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Value: v}
}

// Get returns the value and whether it was set
func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// assign copies a set field into dst and reports whether dst changed
func assign[T comparable](dst *T, o Opt[T]) bool {
	if !o.Set || *dst == o.Value {
		return false
	}
	*dst = o.Value
	return true
}

func assignTime(dst *time.Time, o Opt[time.Time]) bool {
	if !o.Set || dst.Equal(o.Value) {
		return false
	}
	*dst = o.Value
	return true
}

// overlay replaces dst with o when o is set
func overlay[T any](dst *Opt[T], o Opt[T]) {
	if o.Set {
		*dst = o
	}
}

// unset clears dst when o is set
func unset[T any](dst *Opt[T], o Opt[T]) {
	if o.Set {
		*dst = Opt[T]{}
	}
}
