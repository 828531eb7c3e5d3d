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
	"fmt"
	"reflect"
	"sync/atomic"
)

// MethodKey identifies a logical method: the method as declared on the user type.
// It is the lookup key for advice chains and pointcut registrations.
// MethodKey 标识一个逻辑方法：即声明在用户类型上的方法，
// 是增强链与切入点注册的查找键。
type MethodKey struct {
	// Owner is the target's pointer type, e.g. *UserService.
	Owner reflect.Type
	// Name is the exported method name.
	Name string
}

func (k MethodKey) String() string {
	if k.Owner == nil {
		return k.Name
	}
	return k.Owner.String() + "." + k.Name
}

// Method is the reflected descriptor of an intercepted method. It is used for
// identification and chain lookup only; the original implementation is entered
// through the invocation's executor, never through this descriptor.
// Method 是被拦截方法的反射描述符，仅用于标识和链查找；
// 原始实现通过调用记录的执行器进入，绝不会通过该描述符调用。
type Method struct {
	owner  reflect.Type
	name   string
	fnType reflect.Type
	index  int
}

// NewMethod builds a descriptor from the method as declared on the owner type.
// The fnType is the bound signature, without the receiver.
func NewMethod(owner reflect.Type, name string, fnType reflect.Type, index int) Method {
	return Method{owner: owner, name: name, fnType: fnType, index: index}
}

// Owner returns the declaring target type.
func (m Method) Owner() reflect.Type { return m.owner }

// Name returns the method name.
func (m Method) Name() string { return m.name }

// Type returns the method's func type without the receiver.
func (m Method) Type() reflect.Type { return m.fnType }

// Index returns the method's index in the owner's method set, which is its
// declaration order and the tiebreaker for synthetic naming.
func (m Method) Index() int { return m.index }

// Key returns the comparable chain-cache key for this method.
func (m Method) Key() MethodKey { return MethodKey{Owner: m.owner, Name: m.name} }

func (m Method) String() string { return m.Key().String() }

// NumResults returns the number of non-error results.
func (m Method) NumResults() int {
	n := m.fnType.NumOut()
	if m.ReturnsError() {
		n--
	}
	return n
}

// ReturnsError reports whether the method's last result is an error. The error
// result is the invocation's error slot and never part of the return value.
func (m Method) ReturnsError() bool {
	n := m.fnType.NumOut()
	return n > 0 && m.fnType.Out(n-1) == errorType
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// KeyInvocationID is the invocation data key under which the dispatcher
// stamps a correlation identifier for the current call.
const KeyInvocationID = "invocationId"

// Invocation is the mutable per-call state threaded through an advice chain.
// It bundles the receiver, the logical method descriptor, the boxed arguments,
// the return and error slots, a user data map and the proceed continuation.
// An invocation belongs to a single logical activation: it may migrate between
// goroutines across suspension points, but only one activation advances it at a time.
//
// Invocation 是贯穿增强链的每次调用的可变状态。它打包了接收者、逻辑方法描述符、
// 装箱后的参数、返回值槽与错误槽、用户数据映射以及 proceed 续延。
// 一个 Invocation 只属于一次逻辑激活：它可以跨挂起点在 goroutine 间迁移，
// 但同一时间只有一个激活在推进它。
type Invocation struct {
	target   interface{}
	method   Method
	executor reflect.Value
	args     []interface{}

	returnValue interface{}
	err         error
	data        map[string]interface{}

	proceed     func() error
	beforeAwait func(*Invocation)
	awaitFired  int32
}

// NewInvocation builds an invocation record. The executor is a bound method
// value that enters the original implementation directly.
func NewInvocation(target interface{}, method Method, executor reflect.Value, args []interface{}) *Invocation {
	inv := &Invocation{
		target:   target,
		method:   method,
		executor: executor,
		args:     args,
	}
	inv.proceed = inv.InvokeOriginal
	return inv
}

// Target returns the receiver of the intercepted call.
func (inv *Invocation) Target() interface{} { return inv.target }

// Method returns the logical method descriptor.
func (inv *Invocation) Method() Method { return inv.method }

// Arguments returns the boxed argument list in declared parameter order.
// Advices may mutate entries before calling Proceed. For variadic methods the
// final entry is the packed variadic slice.
func (inv *Invocation) Arguments() []interface{} { return inv.args }

// Argument returns the i-th boxed argument, or nil when out of range.
func (inv *Invocation) Argument(i int) interface{} {
	if i < 0 || i >= len(inv.args) {
		return nil
	}
	return inv.args[i]
}

// SetArgument replaces the i-th boxed argument.
func (inv *Invocation) SetArgument(i int, v interface{}) {
	if i >= 0 && i < len(inv.args) {
		inv.args[i] = v
	}
}

// ReturnValue returns the current content of the return slot. Methods with a
// single non-error result store it directly; methods with several store a
// []interface{} in declared order.
func (inv *Invocation) ReturnValue() interface{} { return inv.returnValue }

// SetReturnValue overwrites the return slot. An advice may short-circuit by
// setting the return value and returning without calling Proceed.
func (inv *Invocation) SetReturnValue(v interface{}) { inv.returnValue = v }

// Error returns the most recent failure recorded on this invocation.
func (inv *Invocation) Error() error { return inv.err }

// SetError records a failure on the invocation.
func (inv *Invocation) SetError(err error) { inv.err = err }

// PutValue stores cross-cutting state under the given key, e.g. timings or
// correlation identifiers.
func (inv *Invocation) PutValue(key string, value interface{}) {
	if inv.data == nil {
		inv.data = make(map[string]interface{})
	}
	inv.data[key] = value
}

// GetValue reads cross-cutting state stored by an earlier advice.
func (inv *Invocation) GetValue(key string) (interface{}, bool) {
	v, ok := inv.data[key]
	return v, ok
}

// Values returns the user data map. The map is lazily allocated and shared
// with the invocation, not copied.
func (inv *Invocation) Values() map[string]interface{} {
	if inv.data == nil {
		inv.data = make(map[string]interface{})
	}
	return inv.data
}

// Proceed runs the continuation installed by the advice chain: the tail of the
// chain from the current advice, or the original implementation when this
// invocation is past the last advice or carries no chain at all. Each call
// re-enters the continuation and overwrites the return slot.
func (inv *Invocation) Proceed() error {
	return inv.proceed()
}

// ProceedFunc captures the current continuation so an asynchronous advice body
// can call it after the chain frame that installed it has returned.
func (inv *Invocation) ProceedFunc() func() error {
	return inv.proceed
}

// SetProceedFunc installs a continuation. It is called by the chain runner
// around each advice application; advices themselves should not need it.
func (inv *Invocation) SetProceedFunc(p func() error) {
	if p == nil {
		inv.proceed = inv.InvokeOriginal
	} else {
		inv.proceed = p
	}
}

// InvokeOriginal enters the original method body through the executor with the
// invocation's current arguments. On success the return slot is overwritten;
// on failure the error slot is set and the return slot is left untouched.
func (inv *Invocation) InvokeOriginal() error {
	fnType := inv.executor.Type()
	numIn := fnType.NumIn()
	if len(inv.args) != numIn {
		return NewConfigurationError("%s: argument count mismatch, want %d got %d", inv.method, numIn, len(inv.args))
	}
	in := make([]reflect.Value, numIn)
	for i := 0; i < numIn; i++ {
		in[i] = boxedValue(inv.args[i], fnType.In(i))
	}
	var out []reflect.Value
	if fnType.IsVariadic() {
		out = inv.executor.CallSlice(in)
	} else {
		out = inv.executor.Call(in)
	}
	values := out
	if inv.method.ReturnsError() {
		last := out[len(out)-1]
		values = out[:len(out)-1]
		if !last.IsNil() {
			err := last.Interface().(error)
			inv.err = err
			return err
		}
	}
	switch len(values) {
	case 0:
		inv.returnValue = nil
	case 1:
		inv.returnValue = values[0].Interface()
	default:
		boxed := make([]interface{}, len(values))
		for i, v := range values {
			boxed[i] = v.Interface()
		}
		inv.returnValue = boxed
	}
	return nil
}

// OnBeforeAwait installs the one-shot listener fired the first time an advice
// announces it is about to suspend for an asynchronous continuation.
func (inv *Invocation) OnBeforeAwait(fn func(*Invocation)) {
	inv.beforeAwait = fn
}

// InitializeAwait fires the before-await listener. It fires at most once per
// invocation regardless of how many async advices the chain carries.
func (inv *Invocation) InitializeAwait() {
	if atomic.CompareAndSwapInt32(&inv.awaitFired, 0, 1) {
		if inv.beforeAwait != nil {
			inv.beforeAwait(inv)
		}
	}
}

// boxedValue turns a boxed argument back into a reflect value of the declared
// parameter type. A nil box becomes the parameter type's zero value.
func boxedValue(arg interface{}, paramType reflect.Type) reflect.Value {
	if arg == nil {
		return reflect.Zero(paramType)
	}
	v := reflect.ValueOf(arg)
	if v.Type() == paramType {
		return v
	}
	if v.Type().AssignableTo(paramType) {
		return v
	}
	if v.Type().ConvertibleTo(paramType) {
		return v.Convert(paramType)
	}
	panic(fmt.Sprintf("aspectgo: argument of type %s is not assignable to parameter type %s", v.Type(), paramType))
}
