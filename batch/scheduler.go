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

package batch

import (
	"sync"
	"time"
)

type ScheduledTask struct {
	task              func()
	interval          int
	ticksSinceLastRun int
	running           bool
}

// Scheduler runs registered tasks every N ticks. A task that is still running
// when it comes due again is skipped for that tick.
type Scheduler struct {
	ticker    *time.Ticker
	quit      chan struct{}
	tasks     []*ScheduledTask
	wg        sync.WaitGroup
	interval  time.Duration
	mutex     sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{
		interval: interval,
		quit:     make(chan struct{}),
		tasks:    []*ScheduledTask{},
	}
}

// Start the timer (run goroutine once)
func (st *Scheduler) Start() {
	st.startOnce.Do(func() {
		st.mutex.Lock()
		st.ticker = time.NewTicker(st.interval)
		st.mutex.Unlock()
		st.wg.Add(1)
		go st.run()
	})
}

func (st *Scheduler) run() {
	defer st.wg.Done()
	for {
		select {
		case <-st.ticker.C:
			st.tick()
		case <-st.quit:
			st.ticker.Stop()
			return
		}
	}
}

func (st *Scheduler) tick() {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	for _, task := range st.tasks {
		task.ticksSinceLastRun++
		if task.ticksSinceLastRun < task.interval || task.running {
			continue
		}
		task.ticksSinceLastRun = 0
		task.running = true
		st.wg.Add(1)
		go func(task *ScheduledTask) {
			defer st.wg.Done()
			defer func() {
				st.mutex.Lock()
				task.running = false
				st.mutex.Unlock()
			}()
			task.task()
		}(task)
	}
}

// Register adds a task to run every interval ticks
func (st *Scheduler) Register(interval int, task func()) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.tasks = append(st.tasks, &ScheduledTask{
		interval: max(interval, 1),
		task:     task,
	})
}

// Stop halts the ticker and waits for running tasks to return
func (st *Scheduler) Stop() {
	st.stopOnce.Do(func() {
		close(st.quit)
	})
	st.wg.Wait()
}
