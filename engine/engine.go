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

// Package engine implements the interception runtime: the pointcut
// registration table, the advice chain builder, the invocation dispatcher and
// the proxy generator.
//
// The runtime synthesizes no subclasses; Go has none. Instead a proxy type is
// a per-class plan of reflect-built trampolines keyed by method, and the
// executor that re-enters the original implementation is a bound method
// value, the direct, non-virtual entry the dispatcher calls through the
// invocation record.
package engine

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/aspectgo/aspectgo/api/types"
)

// Engine owns one interception universe: a config, a pointcut table, a
// dispatcher with its chain cache, and the proxy-type registry.
// Engine 拥有一个拦截运行时实例：配置、切入点注册表、带链缓存的分发器以及代理类型注册表。
type Engine struct {
	config     *types.Config
	pointcuts  *PointcutRegistry
	dispatcher *Dispatcher

	// The registry lock serializes proxy-type synthesis; reads after
	// publication go through the same map under the lock, synthesis is rare.
	mu         sync.Mutex
	proxyTypes map[reflect.Type]*ProxyType
	byName     map[string]*ProxyType
	nameSeq    map[string]int

	futuresMu sync.RWMutex
	futures   map[reflect.Type]FutureFactory
}

// New creates an engine with the given configuration.
func New(config types.Config) *Engine {
	cfg := config
	if cfg.Logger == nil {
		cfg.Logger = types.DefaultLogger()
	}
	pointcuts := NewPointcutRegistry()
	return &Engine{
		config:     &cfg,
		pointcuts:  pointcuts,
		dispatcher: NewDispatcher(&cfg, pointcuts),
		proxyTypes: make(map[reflect.Type]*ProxyType),
		byName:     make(map[string]*ProxyType),
		nameSeq:    make(map[string]int),
		futures:    make(map[reflect.Type]FutureFactory),
	}
}

// Config returns the engine's configuration. The pointer is shared with the
// dispatcher so provider installs are visible to in-flight lookups.
func (e *Engine) Config() *types.Config {
	return e.config
}

// Dispatcher returns the engine's invocation dispatcher.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// Pointcuts returns the engine's pointcut registration table.
func (e *Engine) Pointcuts() *PointcutRegistry {
	return e.pointcuts
}

// SetInstanceProvider installs the advice instance provider used to resolve
// type-list pointcuts. It must run before the first dispatch of any method
// declared in that form.
func (e *Engine) SetInstanceProvider(provider types.InstanceProvider) {
	e.config.InstanceProvider = provider
}

// OnMethod declares advice sources for a method on the target type; see
// PointcutRegistry.OnMethod.
func (e *Engine) OnMethod(target interface{}, method string, sources ...types.AdviceSource) error {
	return e.pointcuts.OnMethod(target, method, sources...)
}

// IsAspectTarget reports whether the value's type declares at least one
// pointcut. Container glue uses it to decide whether registration should
// substitute the proxy.
func (e *Engine) IsAspectTarget(target interface{}) bool {
	return e.pointcuts.IsAspectTarget(reflect.TypeOf(target))
}

// ProxyType returns the synthesized proxy type for the target's class,
// building it on first use. Synthesis is at-most-once per class; concurrent
// callers observe the identical result, and a failed synthesis publishes
// nothing.
func (e *Engine) ProxyType(target interface{}) (*ProxyType, error) {
	targetType := reflect.TypeOf(target)
	if err := validateTargetType(targetType); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if pt, ok := e.proxyTypes[targetType]; ok {
		return pt, nil
	}
	if err := e.pointcuts.CollectDeclared(targetType); err != nil {
		return nil, err
	}
	pt, err := e.synthesize(targetType)
	if err != nil {
		return nil, err
	}
	e.proxyTypes[targetType] = pt
	e.byName[pt.name] = pt
	return pt, nil
}

// Wrap builds the proxy type for the target's class and wraps the instance.
func (e *Engine) Wrap(target interface{}) (*Proxy, error) {
	pt, err := e.ProxyType(target)
	if err != nil {
		return nil, err
	}
	return pt.Wrap(target)
}

// ProxyTypes returns the published proxy types sorted by name.
func (e *Engine) ProxyTypes() []*ProxyType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ProxyType, 0, len(e.proxyTypes))
	for _, pt := range e.proxyTypes {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// synthesize builds the interception plan for one class: one trampoline
// descriptor and one executor binding per pointcut method. Runs under the
// registry lock.
func (e *Engine) synthesize(targetType reflect.Type) (*ProxyType, error) {
	names := e.pointcuts.PointcutNames(targetType)
	methods := make(map[string]*proxyMethod, len(names))
	for _, name := range names {
		m, ok := targetType.MethodByName(name)
		if !ok {
			return nil, types.NewConfigurationError("%s.%s: method not overridable: no such exported method", targetType, name)
		}
		bound := boundMethodType(m.Type)
		methods[name] = &proxyMethod{
			method: types.NewMethod(targetType, name, bound, m.Index),
			index:  m.Index,
			async:  isAwaitableReturn(bound),
		}
	}
	return &ProxyType{
		name:       e.uniqueName(targetType.Elem().Name()),
		targetType: targetType,
		methods:    methods,
		engine:     e,
	}, nil
}

// uniqueName disambiguates classes sharing a simple name with a monotonically
// incremented suffix. Runs under the registry lock.
func (e *Engine) uniqueName(simple string) string {
	if simple == "" {
		simple = "anonymous"
	}
	seq := e.nameSeq[simple]
	e.nameSeq[simple] = seq + 1
	if seq == 0 {
		return simple
	}
	return fmt.Sprintf("%s$%d", simple, seq)
}

// boundMethodType strips the receiver from a method's declared func type,
// yielding the signature shared by the trampoline and the executor.
func boundMethodType(methodType reflect.Type) reflect.Type {
	in := make([]reflect.Type, 0, methodType.NumIn()-1)
	for i := 1; i < methodType.NumIn(); i++ {
		in = append(in, methodType.In(i))
	}
	out := make([]reflect.Type, 0, methodType.NumOut())
	for i := 0; i < methodType.NumOut(); i++ {
		out = append(out, methodType.Out(i))
	}
	return reflect.FuncOf(in, out, methodType.IsVariadic())
}
