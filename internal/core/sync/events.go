package sync

import (
	gosync "sync"
)

// Event is published on the Events stream.
type Event interface {
	isEvent()
}

// ErrorEvent reports a terminal failure of an operation.
type ErrorEvent struct {
	Operation string
	Err       error
}

// InitialDownloadStarted is sent before the first page of a full saves sync.
type InitialDownloadStarted struct{}

// InitialDownloadPaginating carries the total reported by the first page.
type InitialDownloadPaginating struct {
	TotalCount int
}

type InitialDownloadCompleted struct{}

func (ErrorEvent) isEvent()                {}
func (InitialDownloadStarted) isEvent()    {}
func (InitialDownloadPaginating) isEvent() {}
func (InitialDownloadCompleted) isEvent()  {}

// Events fans sync events out to subscribers. Sends never block: a
// subscriber whose buffer is full misses the event.
type Events struct {
	mu   gosync.Mutex
	subs map[int]chan Event
	next int
}

func NewEvents() *Events {
	return &Events{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel with the given buffer and a function that
// unsubscribes and closes it.
func (e *Events) Subscribe(buffer int) (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, buffer)
	id := e.next
	e.next++
	e.subs[id] = ch

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

func (e *Events) Send(ev Event) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
