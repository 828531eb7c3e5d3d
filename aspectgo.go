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

// Package aspectgo provides transparent method interception for plain Go
// structs: targets declare pointcuts, advices run in an ordered chain around
// the original method body, and callers go through a synthesized proxy.
//
// # Usage
//
// Declare the advices of a target by implementing AdvisedTarget:
//
//	type UserService struct {
//	    Store *UserStore
//	}
//
//	func (s *UserService) Pointcuts() []types.Pointcut {
//	    return []types.Pointcut{
//	        {Method: "GetUser", Sources: []types.AdviceSource{
//	            types.Use(advice.NewLogging(nil)),
//	        }},
//	    }
//	}
//
//	func (s *UserService) GetUser(id string) (User, error) { ... }
//
// Wrap the target and call through the proxy:
//
//	proxy, err := aspectgo.Wrap(&UserService{Store: store})
//	result, err := proxy.Call("GetUser", "u42")
//
// Or fill a typed facade so call sites keep static signatures:
//
//	var facade struct {
//	    GetUser func(id string) (User, error)
//	}
//	err = proxy.Fill(&facade)
//	user, err := facade.GetUser("u42")
//
// Pointcuts can also be declared externally, without touching the target type:
//
//	err := aspectgo.OnMethod(&UserService{}, "GetUser", types.Use(advice.NewMetrics(nil)))
//
// Methods returning an Awaitable first result dispatch asynchronously: the
// proxy returns its own future immediately and settles it with the inner
// result once the chain completes.
package aspectgo

import (
	"sync"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/container"
	"github.com/aspectgo/aspectgo/engine"
)

var (
	defaultOnce   sync.Once
	defaultEngine *engine.Engine
)

// Default returns the shared process-wide engine, creating it on first use
// with the default configuration.
//
// Default 返回进程级共享引擎，首次使用时以默认配置创建。
func Default() *engine.Engine {
	defaultOnce.Do(func() {
		defaultEngine = engine.New(types.NewConfig())
	})
	return defaultEngine
}

// New creates an independent engine with the given configuration. Use it when
// one process hosts interception domains with different configurations.
func New(config types.Config) *engine.Engine {
	return engine.New(config)
}

// OnMethod declares advice sources for a method on the target type in the
// default engine.
func OnMethod(target interface{}, method string, sources ...types.AdviceSource) error {
	return Default().OnMethod(target, method, sources...)
}

// ProxyType returns the default engine's synthesized proxy type for the
// target's class, synthesizing it on first use.
func ProxyType(target interface{}) (*engine.ProxyType, error) {
	return Default().ProxyType(target)
}

// Wrap wraps the target in a proxy of the default engine.
func Wrap(target interface{}) (*engine.Proxy, error) {
	return Default().Wrap(target)
}

// IsAspectTarget reports whether the value's type declares at least one
// pointcut in the default engine.
func IsAspectTarget(target interface{}) bool {
	return Default().IsAspectTarget(target)
}

// SetInstanceProvider installs the advice instance provider on the default
// engine. NewContainer installs one automatically.
func SetInstanceProvider(provider types.InstanceProvider) {
	Default().SetInstanceProvider(provider)
}

// RegisterFutureFactory teaches the default engine to manufacture outer
// futures for a user awaitable type.
func RegisterFutureFactory(prototype interface{}, factory engine.FutureFactory) error {
	return Default().RegisterFutureFactory(prototype, factory)
}

// NewContainer creates a dependency-injection container bound to the default
// engine and installs its instance provider.
func NewContainer() *container.Container {
	return container.New(Default())
}
