/*
 * Copyright 2024 The AspectGo Authors.
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

package types

import (
	"context"
	"sync"
)

// Awaitable is anything the runtime can suspend on: the built-in Future and
// any user future type registered with the engine's future factories.
// Awaitable 是运行时可以挂起等待的对象：内建 Future 以及
// 通过引擎的 future 工厂注册的用户自定义 future 类型。
type Awaitable interface {
	// Await blocks until the task completes or the context is cancelled.
	Await(ctx context.Context) (interface{}, error)
	// Done returns a channel closed on completion.
	Done() <-chan struct{}
}

// Future is the asynchronous task type of the runtime. A method whose declared
// return type is *Future is asynchronous: its trampoline returns immediately
// and the advice chain advances off the caller's goroutine. A future completes
// exactly once; later completions are ignored.
//
// Future 是运行时的异步任务类型。声明返回 *Future 的方法是异步方法：
// 其蹦床会立即返回，增强链在调用者 goroutine 之外推进。
// Future 只会完成一次，后续的完成调用会被忽略。
type Future struct {
	done  chan struct{}
	once  sync.Once
	value interface{}
	err   error
}

// NewFuture creates an incomplete future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// CompletedFuture creates a future already completed with the given result.
func CompletedFuture(value interface{}, err error) *Future {
	f := NewFuture()
	f.Complete(value, err)
	return f
}

// RunFuture runs fn on its own goroutine and returns a future completed with
// fn's result.
func RunFuture(fn func() (interface{}, error)) *Future {
	f := NewFuture()
	go func() {
		f.Complete(fn())
	}()
	return f
}

// Complete resolves the future. It reports whether this call was the one that
// completed it.
func (f *Future) Complete(value interface{}, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Done returns a channel closed when the future completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future completes or the context is cancelled.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MustResult returns the completed value and error. It panics when the future
// is still pending; callers must have observed Done first.
func (f *Future) MustResult() (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		panic("aspectgo: Future.MustResult called before completion")
	}
}
