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

package event_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/event"
)

func TestEventBusSingleSubscriber(t *testing.T) {
	var testEvtData int = 999
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, testEvtData))
	select {
	case evt, ok := <-subCh:
		if !ok {
			t.Fatalf("event channel closed unexpectedly")
		}
		switch v := evt.Data.(type) {
		case int:
			if v != testEvtData {
				t.Fatalf("did not get expected event")
			}
		default:
			t.Fatalf("event data was not of expected type, expected int, got %T", evt.Data)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for event")
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "hello"))
	for _, ch := range []<-chan event.Event{sub1Ch, sub2Ch} {
		select {
		case evt, ok := <-ch:
			require.True(t, ok, "event channel closed unexpectedly")
			assert.Equal(t, "hello", evt.Data)
		case <-time.After(1 * time.Second):
			t.Fatalf("timeout waiting for event")
		}
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	subId, subCh := eb.Subscribe(testEvtType)
	eb.Unsubscribe(testEvtType, subId)
	// Unsubscribing twice is harmless
	eb.Unsubscribe(testEvtType, subId)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	select {
	case _, ok := <-subCh:
		if ok {
			t.Fatalf("received unexpected event")
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("subscriber channel was not closed after Unsubscribe")
	}
}

func TestEventBusPublishDoesNotBlockWhenFull(t *testing.T) {
	var testEvtType event.EventType = "test.full"
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range event.EventQueueSize + 5 {
			eb.Publish(testEvtType, event.NewEvent(testEvtType, i))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}
	assert.Len(t, subCh, event.EventQueueSize)
	count, err := testutil.GatherAndCount(reg, "tally_events_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventBusStop(t *testing.T) {
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(testEvtType)
	var received atomic.Int32
	_, doneCh := eb.SubscribeFunc(testEvtType, func(evt event.Event) {
		received.Add(1)
	})
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "before"))
	require.Eventually(t, func() bool {
		return received.Load() == 1
	}, time.Second, 10*time.Millisecond)

	eb.Stop()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("SubscribeFunc goroutine did not exit after Stop")
	}
	// Drain buffered event, then the channel must be closed
	<-subCh
	_, ok := <-subCh
	assert.False(t, ok)

	// The bus is still usable after Stop
	_, subCh2 := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "after"))
	evt := <-subCh2
	assert.Equal(t, "after", evt.Data)
	eb.Stop()
}

func TestSubscribeFuncPanicRecovery(t *testing.T) {
	var testEvtType event.EventType = "test.panic"
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	var received atomic.Int32
	eb.SubscribeFunc(testEvtType, func(evt event.Event) {
		if received.Add(1) == 1 {
			panic("intentional test panic")
		}
	})
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "panic"))
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "after-panic"))
	require.Eventually(t, func() bool {
		return received.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond,
		"handler should continue processing events after a panic",
	)
}
