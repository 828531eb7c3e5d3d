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

package metrics

import (
	"sync"
	"sync/atomic"
)

// DispatchMetrics holds various metrics for intercepted method dispatches.
type DispatchMetrics struct {
	Current int64 // Number of currently executing dispatches
	Total   int64 // Total number of dispatches
	Failed  int64 // Number of dispatches that ended with an error
	Success int64 // Number of dispatches that completed without error

	mu       sync.RWMutex
	byMethod map[string]int64
}

// NewDispatchMetrics creates a new instance of DispatchMetrics.
func NewDispatchMetrics() *DispatchMetrics {
	return &DispatchMetrics{byMethod: make(map[string]int64)}
}

// IncrementCurrent increases the count of current dispatches.
func (m *DispatchMetrics) IncrementCurrent() {
	atomic.AddInt64(&m.Current, 1)
}

// DecrementCurrent decreases the count of current dispatches.
func (m *DispatchMetrics) DecrementCurrent() {
	atomic.AddInt64(&m.Current, -1)
}

// IncrementTotal increases the total count of dispatches.
func (m *DispatchMetrics) IncrementTotal() {
	atomic.AddInt64(&m.Total, 1)
}

// IncrementFailed increases the count of failed dispatches.
func (m *DispatchMetrics) IncrementFailed() {
	atomic.AddInt64(&m.Failed, 1)
}

// IncrementSuccess increases the count of successful dispatches.
func (m *DispatchMetrics) IncrementSuccess() {
	atomic.AddInt64(&m.Success, 1)
}

// IncrementMethod increases the dispatch count of one method.
func (m *DispatchMetrics) IncrementMethod(method string) {
	m.mu.Lock()
	if m.byMethod == nil {
		m.byMethod = make(map[string]int64)
	}
	m.byMethod[method]++
	m.mu.Unlock()
}

// MethodTotals returns a copy of the per-method dispatch counts.
func (m *DispatchMetrics) MethodTotals() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.byMethod))
	for k, v := range m.byMethod {
		out[k] = v
	}
	return out
}

// Get returns a copy of the current counters.
func (m *DispatchMetrics) Get() DispatchMetrics {
	return DispatchMetrics{
		Current: atomic.LoadInt64(&m.Current),
		Total:   atomic.LoadInt64(&m.Total),
		Failed:  atomic.LoadInt64(&m.Failed),
		Success: atomic.LoadInt64(&m.Success),
	}
}

// Reset resets all counters to zero.
func (m *DispatchMetrics) Reset() {
	atomic.StoreInt64(&m.Current, 0)
	atomic.StoreInt64(&m.Total, 0)
	atomic.StoreInt64(&m.Failed, 0)
	atomic.StoreInt64(&m.Success, 0)
	m.mu.Lock()
	m.byMethod = make(map[string]int64)
	m.mu.Unlock()
}
