// Package pool lays out the per-category identifier ranges, builds the
// shuffled index table and allocates from it.
package pool

import "fmt"

// Layout places categories back to back over identifiers 1..Total. Category k
// owns [Start(k), Start(k)+Capacity(k)-1], and the same range of pool indexes.
type Layout struct {
	capacities []int64
	starts     []int64
}

func NewLayout(capacities []int) (Layout, error) {
	if len(capacities) == 0 {
		return Layout{}, fmt.Errorf("at least one category capacity is required")
	}
	l := Layout{
		capacities: make([]int64, len(capacities)),
		starts:     make([]int64, len(capacities)),
	}
	next := int64(1)
	for k, c := range capacities {
		if c <= 0 {
			return Layout{}, fmt.Errorf("category %d capacity must be positive, got %d", k, c)
		}
		l.capacities[k] = int64(c)
		l.starts[k] = next
		next += int64(c)
	}
	return l, nil
}

// Categories is the number of categories.
func (l Layout) Categories() int {
	return len(l.capacities)
}

func (l Layout) Valid(category int) bool {
	return category >= 0 && category < len(l.capacities)
}

// Start is the first identifier and first pool index of category.
func (l Layout) Start(category int) int64 {
	return l.starts[category]
}

func (l Layout) Capacity(category int) int64 {
	return l.capacities[category]
}

// Total is the number of identifiers across all categories.
func (l Layout) Total() int64 {
	last := len(l.capacities) - 1
	return l.starts[last] + l.capacities[last] - 1
}

// CategoryOf finds the category whose range contains id.
func (l Layout) CategoryOf(id int64) (int, bool) {
	for k := range l.capacities {
		if id >= l.starts[k] && id < l.starts[k]+l.capacities[k] {
			return k, true
		}
	}
	return 0, false
}
