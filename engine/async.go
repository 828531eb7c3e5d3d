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

package engine

import (
	"context"
	"reflect"
	"time"

	"github.com/aspectgo/aspectgo/api/types"
)

// CompletableFuture is the producer side of an awaitable: what the runtime
// needs to manufacture and settle the outer task an asynchronous trampoline
// hands back to its caller.
type CompletableFuture interface {
	types.Awaitable
	Complete(value interface{}, err error) bool
}

// FutureFactory builds one incomplete future of a registered result type.
type FutureFactory func() CompletableFuture

// RegisterFutureFactory teaches the engine to manufacture outer futures for a
// user awaitable type. The prototype is a typed nil, e.g. (*MyFuture)(nil);
// the factory's product must be assignable to the prototype's type. The
// built-in *Future needs no registration.
func (e *Engine) RegisterFutureFactory(prototype interface{}, factory FutureFactory) error {
	t := reflect.TypeOf(prototype)
	if t == nil || !t.Implements(awaitableType) {
		return types.NewConfigurationError("future factory prototype %T is not awaitable", prototype)
	}
	if factory == nil {
		return types.NewConfigurationError("future factory for %s is nil", t)
	}
	e.futuresMu.Lock()
	e.futures[t] = factory
	e.futuresMu.Unlock()
	return nil
}

// futureFor manufactures the outer future for an asynchronous method's
// declared result type.
func (e *Engine) futureFor(resultType reflect.Type) (CompletableFuture, error) {
	if resultType == futurePtrType || futurePtrType.AssignableTo(resultType) {
		return types.NewFuture(), nil
	}
	e.futuresMu.RLock()
	factory := e.futures[resultType]
	e.futuresMu.RUnlock()
	if factory == nil {
		return nil, types.NewConfigurationError("no future factory registered for result type %s", resultType)
	}
	f := factory()
	if f == nil || !reflect.TypeOf(f).AssignableTo(resultType) {
		return nil, types.NewConfigurationError("future factory for %s produced %T", resultType, f)
	}
	return f, nil
}

var futurePtrType = reflect.TypeOf((*types.Future)(nil))

// AwaitReturn suspends on the invocation's return slot when it holds an
// awaitable, then replaces the slot with the settled value. After the first
// advice awaits, later frames observe the plain value; the underlying task is
// settled once and every observer sees the same outcome. A settlement failure
// is recorded on the invocation's error slot and returned.
func AwaitReturn(ctx context.Context, inv *types.Invocation) error {
	aw, ok := inv.ReturnValue().(types.Awaitable)
	if !ok {
		return nil
	}
	inv.InitializeAwait()
	v, err := aw.Await(ctx)
	if err != nil {
		inv.SetError(err)
		return err
	}
	inv.SetReturnValue(v)
	return nil
}

// ProceedAndAwait runs the invocation's continuation and suspends on its
// result. It is the usual body of an around-style asynchronous advice.
func ProceedAndAwait(ctx context.Context, inv *types.Invocation) error {
	if err := inv.Proceed(); err != nil {
		return err
	}
	return AwaitReturn(ctx, inv)
}

// AsyncAdvice adapts an awaiting body into the synchronous chain discipline:
// the body runs inline on the dispatch goroutine and blocks where it awaits,
// so the invocation is only ever advanced by one activation. The one-shot
// before-await listener fires before the body runs.
//
// AsyncAdvice 把会挂起等待的增强体适配进同步的链式约束：
// 增强体在分发 goroutine 上就地运行，在等待处阻塞，
// 因此调用记录始终只被一个激活推进。一次性 before-await 监听器在增强体运行前触发。
type AsyncAdvice struct {
	Ordering int
	Timeout  time.Duration
	Swallow  bool
	Body     func(ctx context.Context, inv *types.Invocation) error
}

// NewAsyncAdvice wraps an awaiting body as a chain member with the given order.
func NewAsyncAdvice(order int, body func(ctx context.Context, inv *types.Invocation) error) *AsyncAdvice {
	return &AsyncAdvice{Ordering: order, Body: body}
}

// Order implements types.Advice.
func (a *AsyncAdvice) Order() int { return a.Ordering }

// SwallowErrors implements types.ErrorSwallower.
func (a *AsyncAdvice) SwallowErrors() bool { return a.Swallow }

// Apply implements types.Advice.
func (a *AsyncAdvice) Apply(inv *types.Invocation) error {
	if a.Body == nil {
		return types.NewConfigurationError("%s: async advice has no body", inv.Method())
	}
	ctx := context.Background()
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	inv.InitializeAwait()
	return a.Body(ctx, inv)
}
