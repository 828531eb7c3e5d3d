/*
 * Copyright 2023 The AspectGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pool provides the goroutine pool used for asynchronous dispatches.
// Install it on a configuration with types.WithPool to cap the number of
// goroutines the runtime spawns for async method calls.
//
// Package pool 提供异步分发使用的协程池。通过 types.WithPool 安装到配置上，
// 以限制运行时为异步方法调用创建的协程数量。
//
// Note: the worker management scheme is adapted from
// https://github.com/valyala/fasthttp/blob/master/workerpool.go
package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// WorkerPool runs submitted functions on a bounded set of reusable workers.
// Idle workers are kept in FILO order so the most recently parked worker
// serves the next task, keeping CPU caches warm. Workers idle longer than
// MaxIdleWorkerDuration are reclaimed by a background sweep.
type WorkerPool struct {
	// MaxWorkersCount caps the number of concurrent workers. Zero means no
	// cap.
	MaxWorkersCount int

	// MaxIdleWorkerDuration is how long a parked worker survives before the
	// sweep reclaims it. Defaults to ten seconds.
	MaxIdleWorkerDuration time.Duration

	lock         sync.Mutex
	workersCount int
	mustStop     bool
	ready        []*workerChan

	stopCh chan struct{}

	workerChanPool sync.Pool
	startOnce      sync.Once
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

// Start launches the idle-worker sweep. Safe to call more than once.
func (wp *WorkerPool) Start() {
	if wp.stopCh != nil {
		return
	}
	wp.startOnce.Do(func() {
		wp.stopCh = make(chan struct{})
		stopCh := wp.stopCh
		wp.workerChanPool.New = func() interface{} {
			return &workerChan{
				ch: make(chan func(), workerChanCap),
			}
		}
		go func() {
			var scratch []*workerChan
			for {
				wp.clean(&scratch)
				select {
				case <-stopCh:
					return
				default:
					time.Sleep(wp.getMaxIdleWorkerDuration())
				}
			}
		}()
	})
}

// Stop shuts the pool down: new submissions are refused and idle workers are
// told to exit. Busy workers finish their current task first; Stop does not
// wait for them.
func (wp *WorkerPool) Stop() {
	if wp.stopCh == nil {
		return
	}
	close(wp.stopCh)
	wp.stopCh = nil

	wp.lock.Lock()
	ready := wp.ready
	for i := range ready {
		ready[i].ch <- nil
		ready[i] = nil
	}
	wp.ready = ready[:0]
	wp.mustStop = true
	wp.lock.Unlock()
}

// Release is an alias for Stop.
func (wp *WorkerPool) Release() {
	wp.Stop()
}

func (wp *WorkerPool) getMaxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

// clean reclaims workers idle past the deadline. The ready list is ordered by
// park time, so a binary search finds the reclaim boundary.
func (wp *WorkerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.getMaxIdleWorkerDuration())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)

	l, r, mid := 0, n-1, 0
	for l <= r {
		mid = (l + r) / 2
		if criticalTime.After(wp.ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	i := r
	if i == -1 {
		wp.lock.Unlock()
		return
	}

	*scratch = append((*scratch)[:0], ready[:i+1]...)
	m := copy(ready, ready[i+1:])
	for i = m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	// The termination sends happen outside the lock; a worker channel can
	// block when the worker runs on a distant CPU.
	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

// Submit hands a function to a worker. It fails when every worker is busy and
// the pool is at its cap, which makes it a valid types.Pool: the caller falls
// back to a plain goroutine.
func (wp *WorkerPool) Submit(fn func()) error {
	ch := wp.getCh()
	if ch == nil {
		return errors.New("no idle workers")
	}
	ch.ch <- fn
	return nil
}

// workerChanCap is 0 under GOMAXPROCS=1 so the submitter hands off
// immediately, and 1 otherwise so a CPU-bound task does not stall the
// submitter.
var workerChanCap = func() int {
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	return 1
}()

func (wp *WorkerPool) getCh() *workerChan {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.MaxWorkersCount <= 0 || wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil
		}
		vch := wp.workerChanPool.Get()
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch
}

func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()

	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return false
	}
	wp.ready = append(wp.ready, ch)
	wp.lock.Unlock()
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	var fn func()
	for fn = range ch.ch {
		if fn == nil {
			break
		}
		fn()
		fn = nil

		if !wp.release(ch) {
			break
		}
	}

	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}
