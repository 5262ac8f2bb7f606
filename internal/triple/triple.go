// Package triple implements a single-producer single-consumer triple buffer.
//
// The producer always owns one slot, the consumer owns another and the third
// is shared. Publishing swaps the producer slot with the shared one, reading
// swaps the shared slot with the consumer slot when it holds newer data. Both
// sides are wait free, and the consumer always sees the most recent complete
// value.
package triple

import "sync/atomic"

const (
	indexMask = 0b011
	freshBit  = 0b100
)

// Buffer is a triple buffer of T values.
type Buffer[T any] struct {
	slots  [3]T
	shared atomic.Uint32

	write int // producer only
	read  int // consumer only
}

// New creates a buffer whose three slots are produced by init. For slice
// types init should allocate the full capacity so neither side allocates
// later.
func New[T any](init func() T) *Buffer[T] {
	b := &Buffer[T]{write: 0, read: 1}
	for i := range b.slots {
		if init != nil {
			b.slots[i] = init()
		}
	}
	b.shared.Store(2)
	return b
}

// WriteSlot returns the producer's private slot. It stays valid until the
// next Publish.
func (b *Buffer[T]) WriteSlot() *T {
	return &b.slots[b.write]
}

// Publish hands the producer slot to the consumer.
func (b *Buffer[T]) Publish() {
	prev := b.shared.Swap(uint32(b.write) | freshBit)
	b.write = int(prev & indexMask)
}

// Write stores v and publishes it.
func (b *Buffer[T]) Write(v T) {
	b.slots[b.write] = v
	b.Publish()
}

// Updated reports whether a value was published since the last Read.
func (b *Buffer[T]) Updated() bool {
	return b.shared.Load()&freshBit != 0
}

// Read returns the most recent published value and whether it is new since
// the previous Read. The pointer stays valid until the next Read.
func (b *Buffer[T]) Read() (*T, bool) {
	if b.shared.Load()&freshBit == 0 {
		return &b.slots[b.read], false
	}
	prev := b.shared.Swap(uint32(b.read))
	b.read = int(prev & indexMask)
	return &b.slots[b.read], true
}
