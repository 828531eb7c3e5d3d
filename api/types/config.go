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

package types

import (
	"time"
)

// DispatchPhase labels the position of an OnDispatch callback relative to the
// advice chain of one invocation.
type DispatchPhase string

const (
	// PhaseIn is reported when an invocation enters the dispatcher.
	PhaseIn DispatchPhase = "IN"
	// PhaseOut is reported when an invocation leaves the dispatcher.
	PhaseOut DispatchPhase = "OUT"
)

// Config defines the configuration for the interception runtime.
// Config 定义拦截运行时的配置。
type Config struct {
	// OnDispatch is a callback invoked when an invocation enters and leaves the
	// dispatcher. It is meant for debugging and operational surfaces; heavy work
	// belongs in an advice.
	// - phase: IN when entering the dispatcher, OUT when leaving.
	// - inv: the current invocation.
	// - err: error information on OUT, if any.
	OnDispatch func(phase DispatchPhase, inv *Invocation, err error)
	// InstanceProvider resolves advice types declared in type-list pointcuts.
	// It must be installed before the first dispatch of any such method.
	InstanceProvider InstanceProvider
	// Logger is the logging interface, defaulting to DefaultLogger().
	Logger Logger
	// Properties are global properties in key-value format, readable by advices
	// through their configuration.
	Properties Metadata
	// Pool is an optional goroutine pool used for asynchronous dispatches. If
	// not configured, plain go statements are used.
	Pool Pool
	// Cache is a shared cache instance available to caching advices.
	Cache Cache
	// ScriptMaxExecutionTime is the maximum execution time for script advices,
	// defaulting to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
	// Udf is a map of user-defined functions available inside script advices.
	// Values are either JavaScript source strings or Go functions.
	Udf map[string]interface{}
}

// RegisterUdf registers a user-defined function for script advices.
func (c *Config) RegisterUdf(name string, value interface{}) {
	if c.Udf == nil {
		c.Udf = make(map[string]interface{})
	}
	c.Udf[name] = value
}

// Pool is the interface for a goroutine pool. It is compatible with the ants
// pool and similar implementations.
type Pool interface {
	// Submit schedules a task, returning an error when the pool rejects it.
	Submit(task func()) error
}

// Go runs the task on the configured pool, falling back to a plain goroutine
// when no pool is configured or submission fails.
func (c Config) Go(task func()) {
	if c.Pool != nil {
		if err := c.Pool.Submit(task); err == nil {
			return
		}
	}
	go task()
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		Logger:                 DefaultLogger(),
		Properties:             NewMetadata(),
	}
	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
