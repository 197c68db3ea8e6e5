// Package memory provides the fixed-capacity slab that backs the order
// book's resting orders. Slots are addressed by stable uint32 indices and
// chained intrusively, so the book's FIFO queues survive growth of the
// surrounding price-level maps without pointer invalidation.
package memory
