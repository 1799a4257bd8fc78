// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import "slices"

// buffer is the storage shared by the logs of kernels derived from one another.
type buffer[T any] struct {
	items []T
	// first maps a key to the position of the first item with that key.
	first map[string]int
}

// log is an append-only list of items.
//
// Appending to a log returns a new log and leaves the receiver unchanged.
// A log appended to for the first time shares its buffer with the result:
// the buffer grows in place and the receiver keeps seeing its own prefix.
// Appending again to the same receiver copies the prefix into a new buffer.
// Logs shared between goroutines must not be appended to concurrently.
type log[T any] struct {
	buf *buffer[T]
	n   int
	key func(T) string
}

func newLog[T any](key func(T) string) log[T] {
	return log[T]{key: key}
}

func (l log[T]) items() []T {
	if l.buf == nil {
		return nil
	}
	return l.buf.items[:l.n:l.n]
}

func (l log[T]) index(buf *buffer[T], from int) {
	if l.key == nil {
		return
	}
	if buf.first == nil {
		buf.first = make(map[string]int)
	}
	for i := from; i < len(buf.items); i++ {
		k := l.key(buf.items[i])
		if _, exists := buf.first[k]; !exists {
			buf.first[k] = i
		}
	}
}

func (l log[T]) append(xs ...T) log[T] {
	if len(xs) == 0 {
		return l
	}
	buf := l.buf
	if buf == nil || len(buf.items) != l.n {
		// The receiver is not the tip of its buffer: start a new one.
		buf = &buffer[T]{items: slices.Clone(l.items())}
		l.index(buf, 0)
	}
	from := len(buf.items)
	buf.items = append(buf.items, xs...)
	l.index(buf, from)
	return log[T]{buf: buf, n: len(buf.items), key: l.key}
}

// find returns the first item with a given key.
func (l log[T]) find(k string) (T, bool) {
	var zero T
	if l.buf == nil {
		return zero, false
	}
	i, ok := l.buf.first[k]
	if !ok || i >= l.n {
		return zero, false
	}
	return l.buf.items[i], true
}
