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
	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/api/types/metrics"
)

// Metrics counts dispatches flowing through its pointcuts: total, in-flight,
// succeeded, failed, and per-method totals. One instance may be shared across
// several pointcuts to aggregate them.
//
// Metrics 统计流经其切入点的分发：总数、在途数、成功数、失败数以及按方法的总数。
// 一个实例可以被多个切入点共享以进行聚合。
type Metrics struct {
	metrics *metrics.DispatchMetrics
}

var _ types.Advice = (*Metrics)(nil)

// NewMetrics creates a metrics advice over the given collector, allocating a
// fresh one when nil.
func NewMetrics(m *metrics.DispatchMetrics) *Metrics {
	if m == nil {
		m = metrics.NewDispatchMetrics()
	}
	return &Metrics{metrics: m}
}

// Order returns 20; counting happens after admission control, before the rest.
func (a *Metrics) Order() int {
	return 20
}

// Apply counts the invocation around its continuation.
func (a *Metrics) Apply(inv *types.Invocation) error {
	a.metrics.IncrementCurrent()
	a.metrics.IncrementTotal()
	a.metrics.IncrementMethod(inv.Method().String())
	defer a.metrics.DecrementCurrent()
	err := inv.Proceed()
	if err != nil {
		a.metrics.IncrementFailed()
	} else {
		a.metrics.IncrementSuccess()
	}
	return err
}

// Metrics returns the underlying collector.
func (a *Metrics) Metrics() *metrics.DispatchMetrics {
	return a.metrics
}
