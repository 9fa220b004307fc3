package containers

import "errors"

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// RingQueue is a fixed capacity FIFO. It is not safe for concurrent use.
type RingQueue[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

// Create a new RingQueue
func NewRingQueue[T any](size int) *RingQueue[T] {
	if size < 1 {
		size = 1
	}
	return &RingQueue[T]{
		data: make([]T, size),
		size: size,
	}
}

// Enqueue adds an element to the queue
func (rq *RingQueue[T]) Enqueue(value T) error {
	if rq.IsFull() {
		return ErrQueueFull
	}

	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % rq.size
	rq.count++
	return nil
}

// Dequeue removes and returns the front element in the queue
func (rq *RingQueue[T]) Dequeue() (T, error) {
	var zero T
	if rq.IsEmpty() {
		return zero, ErrQueueEmpty
	}

	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % rq.size
	rq.count--
	return value, nil
}

// Peek returns the front element without removing it
func (rq *RingQueue[T]) Peek() (T, error) {
	if rq.IsEmpty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return rq.data[rq.readIndex], nil
}

// RemoveFirst removes the oldest element matching fn, keeping the order
// of the rest.
func (rq *RingQueue[T]) RemoveFirst(fn func(T) bool) (T, bool) {
	var zero T
	for i := 0; i < rq.count; i++ {
		idx := (rq.readIndex + i) % rq.size
		if !fn(rq.data[idx]) {
			continue
		}
		value := rq.data[idx]
		// shift the tail one step towards the head
		for j := i; j < rq.count-1; j++ {
			cur := (rq.readIndex + j) % rq.size
			next := (rq.readIndex + j + 1) % rq.size
			rq.data[cur] = rq.data[next]
		}
		rq.writeIndex = (rq.writeIndex - 1 + rq.size) % rq.size
		rq.data[rq.writeIndex] = zero
		rq.count--
		return value, true
	}
	return zero, false
}

// RemoveAll drops every element matching fn and returns how many went.
func (rq *RingQueue[T]) RemoveAll(fn func(T) bool) int {
	removed := 0
	for {
		if _, ok := rq.RemoveFirst(fn); !ok {
			return removed
		}
		removed++
	}
}

// Items copies the queue contents from oldest to newest.
func (rq *RingQueue[T]) Items() []T {
	out := make([]T, 0, rq.count)
	for i := 0; i < rq.count; i++ {
		out = append(out, rq.data[(rq.readIndex+i)%rq.size])
	}
	return out
}

// Clear empties the queue.
func (rq *RingQueue[T]) Clear() {
	var zero T
	for i := range rq.data {
		rq.data[i] = zero
	}
	rq.readIndex, rq.writeIndex, rq.count = 0, 0, 0
}

func (rq *RingQueue[T]) Len() int {
	return rq.count
}

func (rq *RingQueue[T]) Cap() int {
	return rq.size
}

// IsEmpty checks if the queue is empty
func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.count == 0
}

// IsFull checks if the queue is full
func (rq *RingQueue[T]) IsFull() bool {
	return rq.count == rq.size
}
