package queue

import (
	"sync"
	"time"
)

const laneBuffer = 8

// lanes runs items sharing a key one at a time, in submission order. Items
// with different keys run concurrently, at most limit at once.
type lanes[T any] struct {
	run func(T)
	sem chan struct{}

	mu     sync.Mutex
	queues map[string]chan T
	wg     sync.WaitGroup
}

func newLanes[T any](limit int, run func(T)) *lanes[T] {
	if limit <= 0 {
		limit = 1
	}
	return &lanes[T]{run: run, sem: make(chan struct{}, limit), queues: make(map[string]chan T)}
}

// submit queues item on the lane for key, starting the lane on first use.
// It blocks while the lane is full.
func (l *lanes[T]) submit(key string, item T) {
	l.mu.Lock()
	q, ok := l.queues[key]
	if !ok {
		q = make(chan T, laneBuffer)
		l.queues[key] = q
		l.wg.Add(1)
		go l.drain(q)
	}
	l.mu.Unlock()
	q <- item
}

func (l *lanes[T]) drain(q <-chan T) {
	defer l.wg.Done()
	for item := range q {
		l.sem <- struct{}{}
		l.run(item)
		<-l.sem
	}
}

// close waits for every queued item to finish. submit must not be called
// concurrently with close.
func (l *lanes[T]) close() {
	l.mu.Lock()
	for key, q := range l.queues {
		close(q)
		delete(l.queues, key)
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// frameOrder remembers the newest frame timestamp seen per camera.
type frameOrder struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newFrameOrder() *frameOrder {
	return &frameOrder{last: make(map[string]time.Time)}
}

// admit reports whether a frame taken at ts may be processed, and records it.
// Frames older than the camera's newest admitted frame are refused. A zero
// timestamp carries no ordering and is always admitted.
func (o *frameOrder) admit(camera string, ts time.Time) bool {
	if ts.IsZero() {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if last, ok := o.last[camera]; ok && ts.Before(last) {
		return false
	}
	o.last[camera] = ts
	return true
}
