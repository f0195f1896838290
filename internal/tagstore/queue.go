package tagstore

import "github.com/opendax/daxd/internal/wire"

// Queue is the descriptor backing a queue tag (type with the queue bit
// set): a ring of fixed-size elements, a read cursor and a live count.
// Writes append a whole element at a time and double the ring on demand;
// reads consume from the head and fail with EMPTY when exhausted.
type Queue struct {
	elemSize uint32
	buf      []byte // ring storage, elemSize * capacity
	capacity uint32
	head     uint32 // index of oldest element
	count    uint32 // number of live elements
}

func NewQueue(elemSize uint32) *Queue {
	const initialCapacity = 16
	return &Queue{
		elemSize: elemSize,
		buf:      make([]byte, elemSize*initialCapacity),
		capacity: initialCapacity,
	}
}

// Push appends one element. elem must be exactly one element's worth of
// bytes (partial writes to a queue tag return ILLEGAL at the caller).
func (q *Queue) Push(elem []byte) error {
	if uint32(len(elem)) != q.elemSize {
		return wire.New(wire.ErrIllegal, "queue writes must supply a whole element")
	}
	if q.count == q.capacity {
		q.grow()
	}
	tail := (q.head + q.count) % q.capacity
	copy(q.buf[tail*q.elemSize:(tail+1)*q.elemSize], elem)
	q.count++
	return nil
}

// Pop consumes and returns the oldest element, or EMPTY if none remain.
func (q *Queue) Pop() ([]byte, error) {
	if q.count == 0 {
		return nil, wire.New(wire.ErrEmpty, "queue is empty")
	}
	out := make([]byte, q.elemSize)
	copy(out, q.buf[q.head*q.elemSize:(q.head+1)*q.elemSize])
	q.head = (q.head + 1) % q.capacity
	q.count--
	return out, nil
}

func (q *Queue) Len() uint32 { return q.count }

func (q *Queue) grow() {
	newCap := q.capacity * 2
	newBuf := make([]byte, newCap*q.elemSize)
	for i := uint32(0); i < q.count; i++ {
		src := (q.head + i) % q.capacity
		copy(newBuf[i*q.elemSize:(i+1)*q.elemSize], q.buf[src*q.elemSize:(src+1)*q.elemSize])
	}
	q.buf = newBuf
	q.capacity = newCap
	q.head = 0
}
