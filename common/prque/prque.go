// CookieJar - A contestant's algorithm toolbox
// Copyright (c) 2013 Peter Szilagyi. All rights reserved.
//
// CookieJar is dual licensed: use of this source code is governed by a BSD
// license that can be found in the LICENSE file. Alternatively, the CookieJar
// toolbox may be used in accordance with the terms and conditions contained
// in a signed written agreement between you and the author(s).

// Package prque implements a priority queue data structure supporting arbitrary
// value types and int64 priorities.
//
// If you would like to use a min-priority queue, simply negate the priorities.
package prque

import "container/heap"

// item pairs a value with its assigned priority.
type item struct {
	value    interface{}
	priority int64
}

// itemHeap implements heap.Interface, ordering items by descending priority.
type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].priority > h[j].priority }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(*item)) }

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Prque is a priority queue data structure.
type Prque struct {
	cont itemHeap
}

// New creates a new priority queue.
func New() *Prque {
	return &Prque{}
}

// Push a value with a given priority into the queue, expanding if necessary.
func (p *Prque) Push(data interface{}, priority int64) {
	heap.Push(&p.cont, &item{data, priority})
}

// Pop the value with the greatest priority off the stack and return it.
func (p *Prque) Pop() (interface{}, int64) {
	it := heap.Pop(&p.cont).(*item)
	return it.value, it.priority
}

// PopItem pops only the item from the queue, dropping the associated priority.
func (p *Prque) PopItem() interface{} {
	return heap.Pop(&p.cont).(*item).value
}

// Empty checks whether the priority queue is empty.
func (p *Prque) Empty() bool {
	return len(p.cont) == 0
}

// Size returns the number of elements in the priority queue.
func (p *Prque) Size() int {
	return len(p.cont)
}
