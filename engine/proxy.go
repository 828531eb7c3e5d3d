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
	"fmt"
	"reflect"
	"sort"

	"github.com/aspectgo/aspectgo/api/types"
)

var (
	errType       = reflect.TypeOf((*error)(nil)).Elem()
	awaitableType = reflect.TypeOf((*types.Awaitable)(nil)).Elem()
)

// ProxyType is the synthesized interception plan for one target class: one
// trampoline descriptor per pointcut method, bound to the class, not to an
// instance. Wrapping an instance stamps the plan into callable trampolines.
//
// ProxyType 是为一个目标类合成的拦截方案：每个切入点方法一条蹦床描述符，
// 绑定到类而非实例。包装实例时，方案被压制成可调用的蹦床。
type ProxyType struct {
	name       string
	targetType reflect.Type
	methods    map[string]*proxyMethod
	engine     *Engine
}

// proxyMethod is one method's entry in the plan.
type proxyMethod struct {
	method types.Method
	index  int
	async  bool
}

// Name returns the synthetic class name, unique within the engine.
func (pt *ProxyType) Name() string { return pt.name }

// TargetType returns the wrapped class, a pointer to the user struct.
func (pt *ProxyType) TargetType() reflect.Type { return pt.targetType }

// MethodNames returns the intercepted method names in sorted order.
func (pt *ProxyType) MethodNames() []string {
	names := make([]string, 0, len(pt.methods))
	for name := range pt.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method returns the descriptor of an intercepted method.
func (pt *ProxyType) Method(name string) (types.Method, bool) {
	pm, ok := pt.methods[name]
	if !ok {
		return types.Method{}, false
	}
	return pm.method, true
}

// Wrap binds the plan to one target instance, building a trampoline per
// intercepted method.
func (pt *ProxyType) Wrap(target interface{}) (*Proxy, error) {
	targetValue := reflect.ValueOf(target)
	if targetValue.Type() != pt.targetType {
		return nil, types.NewConfigurationError("cannot wrap %s with proxy type for %s", targetValue.Type(), pt.targetType)
	}
	if targetValue.IsNil() {
		return nil, types.NewConfigurationError("cannot wrap a nil %s", pt.targetType)
	}
	p := &Proxy{
		proxyType:   pt,
		target:      target,
		trampolines: make(map[string]reflect.Value, len(pt.methods)),
	}
	for name, pm := range pt.methods {
		p.trampolines[name] = pt.makeTrampoline(target, p, pm)
	}
	return p, nil
}

// Proxy is a wrapped instance: the target plus one trampoline per intercepted
// method. A trampoline shares the original method's bound signature, routes
// the call through the dispatcher, and re-enters the original body through the
// invocation's executor.
//
// Proxy 是被包装的实例：目标对象加上每个被拦截方法的一条蹦床。
// 蹦床与原方法共享去掉接收者的签名，经由分发器路由调用，
// 并通过调用记录的执行器重新进入原始方法体。
type Proxy struct {
	proxyType   *ProxyType
	target      interface{}
	trampolines map[string]reflect.Value
}

// Target returns the wrapped instance.
func (p *Proxy) Target() interface{} { return p.target }

// Type returns the proxy's synthesized type.
func (p *Proxy) Type() *ProxyType { return p.proxyType }

// makeTrampoline builds the reflect-made func standing in for one method. The
// executor is captured once per wrap: a bound method value entering the
// original implementation directly, past any interception.
func (pt *ProxyType) makeTrampoline(target interface{}, proxy *Proxy, pm *proxyMethod) reflect.Value {
	fnType := pm.method.Type()
	executor := reflect.ValueOf(target).Method(pm.index)
	return reflect.MakeFunc(fnType, func(in []reflect.Value) []reflect.Value {
		args := make([]interface{}, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}
		inv := types.NewInvocation(target, pm.method, executor, args)
		if pm.async {
			return pt.asyncResults(inv, proxy, fnType)
		}
		err := pt.engine.dispatcher.DispatchWithProxy(inv, proxy)
		return syncResults(pm.method, inv, err, fnType)
	})
}

// syncResults maps the dispatch outcome back onto the method's declared result
// list. The trailing error result carries the dispatch error; a failure on a
// method without one escapes as a panic, there is nowhere else for it to go.
func syncResults(method types.Method, inv *types.Invocation, err error, fnType reflect.Type) []reflect.Value {
	numOut := fnType.NumOut()
	out := make([]reflect.Value, numOut)
	n := numOut
	if method.ReturnsError() {
		n--
		if err != nil {
			ev := reflect.New(errType).Elem()
			ev.Set(reflect.ValueOf(err))
			out[n] = ev
		} else {
			out[n] = reflect.Zero(errType)
		}
	} else if err != nil {
		panic(err)
	}
	switch n {
	case 0:
	case 1:
		out[0] = outValue(inv.ReturnValue(), fnType.Out(0))
	default:
		boxed, _ := inv.ReturnValue().([]interface{})
		for i := 0; i < n; i++ {
			var v interface{}
			if i < len(boxed) {
				v = boxed[i]
			}
			out[i] = outValue(v, fnType.Out(i))
		}
	}
	return out
}

// asyncResults launches the dispatch off the caller's goroutine and returns an
// outer future immediately. The chain runs to completion on the launched
// goroutine; when the original body itself returned an awaitable, the outer
// future settles with that task's result, so every observer sees one outcome.
func (pt *ProxyType) asyncResults(inv *types.Invocation, proxy *Proxy, fnType reflect.Type) []reflect.Value {
	resultType := fnType.Out(0)
	outer, err := pt.engine.futureFor(resultType)
	if err != nil {
		if fnType.NumOut() == 2 {
			ev := reflect.New(errType).Elem()
			ev.Set(reflect.ValueOf(err))
			return []reflect.Value{reflect.Zero(resultType), ev}
		}
		panic(err)
	}
	pt.engine.config.Go(func() {
		derr := pt.engine.dispatcher.DispatchWithProxy(inv, proxy)
		if derr != nil {
			outer.Complete(nil, derr)
			return
		}
		if aw, ok := inv.ReturnValue().(types.Awaitable); ok {
			outer.Complete(aw.Await(context.Background()))
			return
		}
		outer.Complete(inv.ReturnValue(), nil)
	})
	out := make([]reflect.Value, fnType.NumOut())
	out[0] = outValue(outer, resultType)
	if fnType.NumOut() == 2 {
		out[1] = reflect.Zero(errType)
	}
	return out
}

// Call invokes a method by name with boxed arguments. Intercepted methods go
// through their trampoline; other exported methods are entered directly, with
// no dispatch. For variadic methods the tail may be passed flat or as one
// pre-built slice in final position.
func (p *Proxy) Call(name string, args ...interface{}) (interface{}, error) {
	fn, ok := p.trampolines[name]
	if !ok {
		m, found := p.proxyType.targetType.MethodByName(name)
		if !found {
			return nil, types.NewConfigurationError("%s has no exported method %s", p.proxyType.targetType, name)
		}
		fn = reflect.ValueOf(p.target).Method(m.Index)
	}
	fnType := fn.Type()
	numIn := fnType.NumIn()
	var out []reflect.Value
	if fnType.IsVariadic() {
		fixed := numIn - 1
		if len(args) < fixed {
			return nil, types.NewConfigurationError("%s.%s: argument count mismatch, want at least %d got %d", p.proxyType.targetType, name, fixed, len(args))
		}
		in := make([]reflect.Value, numIn)
		for i := 0; i < fixed; i++ {
			in[i] = outValue(args[i], fnType.In(i))
		}
		sliceType := fnType.In(fixed)
		if len(args) == numIn && args[fixed] != nil && reflect.TypeOf(args[fixed]).AssignableTo(sliceType) {
			in[fixed] = reflect.ValueOf(args[fixed])
		} else {
			tail := reflect.MakeSlice(sliceType, len(args)-fixed, len(args)-fixed)
			for i := fixed; i < len(args); i++ {
				tail.Index(i - fixed).Set(outValue(args[i], sliceType.Elem()))
			}
			in[fixed] = tail
		}
		out = fn.CallSlice(in)
	} else {
		if len(args) != numIn {
			return nil, types.NewConfigurationError("%s.%s: argument count mismatch, want %d got %d", p.proxyType.targetType, name, numIn, len(args))
		}
		in := make([]reflect.Value, numIn)
		for i := range in {
			in[i] = outValue(args[i], fnType.In(i))
		}
		out = fn.Call(in)
	}
	return unpackResults(fnType, out)
}

// MethodFunc returns the trampoline as a plain func value of the method's
// bound signature, for callers that want a typed entry point:
//
//	fn := mf.(func(string) (string, error))
func (p *Proxy) MethodFunc(name string) (interface{}, error) {
	if fn, ok := p.trampolines[name]; ok {
		return fn.Interface(), nil
	}
	m, found := p.proxyType.targetType.MethodByName(name)
	if !found {
		return nil, types.NewConfigurationError("%s has no exported method %s", p.proxyType.targetType, name)
	}
	return reflect.ValueOf(p.target).Method(m.Index).Interface(), nil
}

// Fill populates a facade struct: the embedded (or exact-typed) target field
// gets the target, func fields named after intercepted methods get their
// trampolines, and func fields named after other exported methods get bound
// method values. A func field whose signature disagrees with the method is a
// configuration error.
//
// Fill 填充门面结构体：内嵌（或同类型）的目标字段得到目标对象，
// 与被拦截方法同名的函数字段得到其蹦床，与其余导出方法同名的函数字段得到绑定方法值。
// 函数字段签名与方法不一致时报配置错误。
func (p *Proxy) Fill(facade interface{}) error {
	fv := reflect.ValueOf(facade)
	if fv.Kind() != reflect.Ptr || fv.IsNil() || fv.Elem().Kind() != reflect.Struct {
		return types.NewConfigurationError("facade %T is not a pointer to struct", facade)
	}
	sv := fv.Elem()
	st := sv.Type()
	targetValue := reflect.ValueOf(p.target)
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		slot := sv.Field(i)
		if !slot.CanSet() {
			continue
		}
		if field.Type == p.proxyType.targetType {
			slot.Set(targetValue)
			continue
		}
		if field.Type.Kind() != reflect.Func {
			continue
		}
		if fn, ok := p.trampolines[field.Name]; ok {
			if fn.Type() != field.Type {
				return types.NewConfigurationError("%s.%s: facade field type %s does not match method signature %s", st, field.Name, field.Type, fn.Type())
			}
			slot.Set(fn)
			continue
		}
		if m, found := p.proxyType.targetType.MethodByName(field.Name); found {
			bound := targetValue.Method(m.Index)
			if bound.Type() != field.Type {
				return types.NewConfigurationError("%s.%s: facade field type %s does not match method signature %s", st, field.Name, field.Type, bound.Type())
			}
			slot.Set(bound)
		}
	}
	return nil
}

// unpackResults boxes a reflect call's results back into the single-value,
// multi-value-slice and trailing-error convention of the invocation record.
func unpackResults(fnType reflect.Type, out []reflect.Value) (interface{}, error) {
	values := out
	var err error
	if n := fnType.NumOut(); n > 0 && fnType.Out(n-1) == errType {
		last := out[n-1]
		values = out[:n-1]
		if !last.IsNil() {
			err = last.Interface().(error)
		}
	}
	switch len(values) {
	case 0:
		return nil, err
	case 1:
		return values[0].Interface(), err
	default:
		boxed := make([]interface{}, len(values))
		for i, v := range values {
			boxed[i] = v.Interface()
		}
		return boxed, err
	}
}

// outValue turns a boxed result back into a reflect value of the declared
// result type. A nil box becomes the type's zero value.
func outValue(v interface{}, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return rv
	}
	if rv.Type().AssignableTo(t) {
		slot := reflect.New(t).Elem()
		slot.Set(rv)
		return slot
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t)
	}
	panic(fmt.Sprintf("aspectgo: value of type %s is not assignable to result type %s", rv.Type(), t))
}

// isAwaitableReturn reports whether a bound signature marks its method
// asynchronous: a first result implementing Awaitable, alone or with a
// trailing error.
func isAwaitableReturn(fnType reflect.Type) bool {
	switch fnType.NumOut() {
	case 1:
	case 2:
		if fnType.Out(1) != errType {
			return false
		}
	default:
		return false
	}
	return fnType.Out(0).Implements(awaitableType)
}
