package ecs

import (
	"fmt"
	"iter"
	"math/bits"
)

// ComponentMask records which component tags an entity carries, one bit per tag.
type ComponentMask uint64

func checkBit(index int) {
	if index < 0 || index >= MaxComponentTypes {
		panic(fmt.Sprintf("component mask index %d out of range [0, %d)", index, MaxComponentTypes))
	}
}

// Set marks index.
func (m *ComponentMask) Set(index int) {
	checkBit(index)
	*m |= 1 << index
}

// Unset clears index.
func (m *ComponentMask) Unset(index int) {
	checkBit(index)
	*m &^= 1 << index
}

// Has reports whether index is marked.
func (m ComponentMask) Has(index int) bool {
	checkBit(index)
	return m&(1<<index) != 0
}

// Contains reports whether every bit of other is also set in m.
func (m ComponentMask) Contains(other ComponentMask) bool {
	return m&other == other
}

// Len returns the number of marked bits.
func (m ComponentMask) Len() int {
	return bits.OnesCount64(uint64(m))
}

// Bits iterates the marked indices in ascending order.
func (m ComponentMask) Bits() iter.Seq[int] {
	return func(yield func(int) bool) {
		for rest := uint64(m); rest != 0; rest &= rest - 1 {
			if !yield(bits.TrailingZeros64(rest)) {
				return
			}
		}
	}
}
