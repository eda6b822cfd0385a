// Copyright 2026 Blink Labs Software
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

package event

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const EventQueueSize = 100

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// EventBus fans events out to in-process subscribers.
//
// Publish never blocks: when a subscriber's queue is full the event is dropped
// for that subscriber and counted. Publishers include the admission path,
// which must not wait on slow consumers.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]*subscriber
	metrics     *eventMetrics
	logger      *slog.Logger
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
}

func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]*subscriber),
		logger:      logger.With("component", "event"),
	}
	if promRegistry != nil {
		e.metrics = newEventMetrics(promRegistry)
	}
	return e
}

// Subscribe allows a consumer to receive events of a particular type via a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub := &subscriber{
		ch: make(chan Event, EventQueueSize),
	}
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]*subscriber)
	}
	e.subscribers[eventType][subId] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, sub.ch
}

// SubscribeFunc allows a consumer to receive events of a particular type via a callback function.
// The returned channel is closed once the handler goroutine exits.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) (EventSubscriberId, <-chan struct{}) {
	subId, evtCh := e.Subscribe(eventType)
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		for evt := range evtCh {
			e.handle(eventType, handlerFunc, evt)
		}
	}()
	return subId, doneCh
}

// handle runs a handler, keeping the subscription alive if it panics
func (e *EventBus) handle(
	eventType EventType,
	handlerFunc EventHandlerFunc,
	evt Event,
) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				"event handler panic",
				"type", eventType,
				"panic", r,
			)
		}
	}()
	handlerFunc(evt)
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	evtTypeSubs, ok := e.subscribers[eventType]
	if !ok {
		return
	}
	sub, ok := evtTypeSubs[subId]
	if !ok {
		return
	}
	delete(evtTypeSubs, subId)
	if len(evtTypeSubs) == 0 {
		delete(e.subscribers, eventType)
	}
	e.closeSubscriber(sub)
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
	}
}

// Publish sends an event of a particular type to all subscribers
func (e *EventBus) Publish(eventType EventType, evt Event) {
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send
	e.mu.RLock()
	defer e.mu.RUnlock()
	for subId, sub := range e.subscribers[eventType] {
		select {
		case sub.ch <- evt:
		default:
			e.logger.Warn(
				"subscriber queue full, dropping event",
				"type", eventType,
				"subscriber", subId,
			)
			if e.metrics != nil {
				e.metrics.dropped.WithLabelValues(string(eventType)).Inc()
			}
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// Stop closes all subscriber channels so SubscribeFunc goroutines exit.
// The EventBus can still be used after Stop.
func (e *EventBus) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, evtTypeSubs := range e.subscribers {
		for _, sub := range evtTypeSubs {
			e.closeSubscriber(sub)
		}
	}
	e.subscribers = make(map[EventType]map[EventSubscriberId]*subscriber)
	if e.metrics != nil {
		e.metrics.subscribers.Reset()
	}
}

func (e *EventBus) closeSubscriber(sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}
