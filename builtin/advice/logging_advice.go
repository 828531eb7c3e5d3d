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
	"time"

	"github.com/aspectgo/aspectgo/api/types"
)

// KeyElapsed is the invocation data key under which the logging advice stores
// the continuation's wall time.
const KeyElapsed = "elapsed"

// Logging logs entry and exit of each invocation with the continuation's wall
// time. It sits at the tail of the chain so the timing covers only the
// advices and the body below it.
//
// Logging 记录每次调用的进入与退出以及续延的耗时。
// 它位于链尾，因此计时只覆盖其下方的增强与方法体。
type Logging struct {
	// Logger receives the log lines, defaulting to the standard logger.
	Logger types.Logger
}

var _ types.Advice = (*Logging)(nil)

// NewLogging creates a logging advice over the given logger.
func NewLogging(logger types.Logger) *Logging {
	if logger == nil {
		logger = types.DefaultLogger()
	}
	return &Logging{Logger: logger}
}

// Order returns 900; logging is one of the last advices before the body.
func (a *Logging) Order() int {
	return 900
}

// Apply logs around the continuation and stamps the elapsed time into the
// invocation data.
func (a *Logging) Apply(inv *types.Invocation) error {
	logger := a.Logger
	if logger == nil {
		logger = types.DefaultLogger()
	}
	logger.Printf("IN  %s args=%v", inv.Method(), inv.Arguments())
	start := time.Now()
	err := inv.Proceed()
	elapsed := time.Since(start)
	inv.PutValue(KeyElapsed, elapsed)
	if err != nil {
		logger.Printf("OUT %s elapsed=%s error=%s", inv.Method(), elapsed, err)
	} else {
		logger.Printf("OUT %s elapsed=%s", inv.Method(), elapsed)
	}
	return err
}
