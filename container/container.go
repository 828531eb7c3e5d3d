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

// Package container glues the interception runtime to a dependency-injection
// container. It installs a dig-backed instance provider on the engine, so
// advice types declared in type-list pointcuts resolve through the same graph
// as the rest of the application, and wraps registered targets on request.
package container

import (
	"reflect"
	"sync"

	"go.uber.org/dig"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/engine"
)

// Container wraps a dig container and an engine. Constructors registered
// through Provide feed both advice resolution and target wrapping.
//
// Container 将 dig 容器与引擎结合。通过 Provide 注册的构造函数
// 同时服务于增强解析与目标对象包装。
type Container struct {
	engine *engine.Engine
	dig    *dig.Container

	mu       sync.Mutex
	provided map[reflect.Type]int
}

// New creates a container bound to the engine and installs its instance
// provider. Advice types resolve lazily, on the first dispatch that needs
// them; providers registered after New but before that dispatch are seen.
func New(e *engine.Engine) *Container {
	c := &Container{
		engine:   e,
		dig:      dig.New(),
		provided: make(map[reflect.Type]int),
	}
	e.SetInstanceProvider(c.Resolve)
	return c
}

// Provide registers a constructor with the container. A second constructor
// producing an already-provided type is rejected; advice resolution must be
// unambiguous.
func (c *Container) Provide(constructor interface{}) error {
	fnType := reflect.TypeOf(constructor)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return types.NewConfigurationError("constructor %T is not a function", constructor)
	}
	c.mu.Lock()
	for i := 0; i < fnType.NumOut(); i++ {
		out := fnType.Out(i)
		if out == errType {
			continue
		}
		if c.provided[out] > 0 {
			c.mu.Unlock()
			return types.NewConfigurationError("type %s has more than one constructor", out)
		}
		c.provided[out]++
	}
	c.mu.Unlock()
	if err := c.dig.Provide(constructor); err != nil {
		return types.NewConfigurationError("providing %T: %v", constructor, err)
	}
	return nil
}

// Invoke runs fn with arguments resolved from the container.
func (c *Container) Invoke(fn interface{}) error {
	return c.dig.Invoke(fn)
}

// Resolve produces the instance of one type from the container. It is the
// engine's instance provider: the requested type is usually an advice type
// from a type-list pointcut.
func (c *Container) Resolve(t reflect.Type) (interface{}, error) {
	if t == nil {
		return nil, types.NewConfigurationError("cannot resolve a nil type")
	}
	var result interface{}
	receiver := reflect.MakeFunc(
		reflect.FuncOf([]reflect.Type{t}, nil, false),
		func(args []reflect.Value) []reflect.Value {
			result = args[0].Interface()
			return nil
		},
	)
	if err := c.dig.Invoke(receiver.Interface()); err != nil {
		return nil, types.NewConfigurationError("resolving %s: %v", t, err)
	}
	return result, nil
}

// Wrap resolves the target type from the container and wraps it when it
// declares pointcuts. Targets without pointcuts come back unwrapped, as a nil
// proxy alongside the instance.
func (c *Container) Wrap(prototype interface{}) (interface{}, *engine.Proxy, error) {
	t := reflect.TypeOf(prototype)
	instance, err := c.Resolve(t)
	if err != nil {
		return nil, nil, err
	}
	if !c.engine.IsAspectTarget(instance) {
		return instance, nil, nil
	}
	proxy, err := c.engine.Wrap(instance)
	if err != nil {
		return nil, nil, err
	}
	return instance, proxy, nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
