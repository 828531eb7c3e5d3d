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

package advice

import (
	"sync/atomic"

	"github.com/aspectgo/aspectgo/api/types"
)

// ConcurrencyLimiter bounds the number of invocations of one pointcut that may
// be in flight at once. Excess invocations fail fast with
// ErrConcurrencyLimitReached instead of queueing.
//
// ConcurrencyLimiter 限制一个切入点同时在途的调用数量。
// 超出的调用以 ErrConcurrencyLimitReached 快速失败，而不是排队等待。
//
// The check-and-increment is a CAS loop, so the count never exceeds Max even
// under concurrent dispatch.
type ConcurrencyLimiter struct {
	Max          int64
	currentCount int64
}

var _ types.Advice = (*ConcurrencyLimiter)(nil)

// NewConcurrencyLimiter creates a limiter allowing at most max concurrent
// invocations.
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{Max: int64(max)}
}

// Order returns 10; the limiter runs before any expensive advice.
func (a *ConcurrencyLimiter) Order() int {
	return 10
}

// Apply admits the invocation when capacity remains, releasing the slot when
// the continuation returns.
func (a *ConcurrencyLimiter) Apply(inv *types.Invocation) error {
	for {
		current := atomic.LoadInt64(&a.currentCount)
		if current >= a.Max {
			inv.SetError(types.ErrConcurrencyLimitReached)
			return types.ErrConcurrencyLimitReached
		}
		if atomic.CompareAndSwapInt64(&a.currentCount, current, current+1) {
			break
		}
	}
	defer atomic.AddInt64(&a.currentCount, -1)
	return inv.Proceed()
}

// Current returns the number of in-flight invocations.
func (a *ConcurrencyLimiter) Current() int64 {
	return atomic.LoadInt64(&a.currentCount)
}
