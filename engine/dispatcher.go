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
	"reflect"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/aspectgo/aspectgo/api/types"
)

// KeyInvocationID is the invocation data key under which the dispatcher stamps
// a correlation identifier for the current call.
const KeyInvocationID = types.KeyInvocationID

// ProxySlotTag is the struct tag marking the back-reference slot on a target:
//
//	type UserService struct {
//	    Self *engine.Proxy `aspect:"proxy"`
//	}
//
// On first dispatch through a proxy the dispatcher publishes the proxy into an
// unset slot, so the target can call its own pointcuts with interception
// re-applied instead of bypassing it via a direct call.
const (
	ProxySlotTag   = "aspect"
	ProxySlotValue = "proxy"
)

// Dispatcher executes the advice chain for an invocation, or the original
// method body when the method carries no advice. Chain lookups are memoized
// per method with lock-free reads and at-most-once publication; the mapping is
// monotonic over the process lifetime, so there is no eviction.
//
// Dispatcher 为一次调用执行增强链；方法未携带增强时直接执行原始方法体。
// 链查找按方法做缓存：读取无锁，发布至多一次；映射在进程生命周期内单调增长，无需淘汰。
type Dispatcher struct {
	config    *types.Config
	pointcuts *PointcutRegistry
	chains    sync.Map // types.MethodKey -> *adviceChain (nil chain means "no advice")
	slots     sync.Map // reflect.Type -> int, back-reference field index or -1
}

// NewDispatcher creates a dispatcher over a pointcut table. The config is
// shared with the owning engine so a later InstanceProvider install is seen.
func NewDispatcher(config *types.Config, pointcuts *PointcutRegistry) *Dispatcher {
	return &Dispatcher{config: config, pointcuts: pointcuts}
}

// Dispatch runs the advice chain for the invocation's method, or the original
// body when no chain exists.
func (d *Dispatcher) Dispatch(inv *types.Invocation) error {
	return d.DispatchWithProxy(inv, nil)
}

// DispatchWithProxy is the trampoline entry point: it additionally publishes
// the proxy back-reference into the target's designated slot, if any.
func (d *Dispatcher) DispatchWithProxy(inv *types.Invocation, proxy interface{}) error {
	d.stampCorrelationID(inv)
	if proxy != nil {
		d.injectProxyRef(inv.Target(), proxy)
	}
	if cb := d.config.OnDispatch; cb != nil {
		cb(types.PhaseIn, inv, nil)
	}
	chain, err := d.chainFor(inv.Method())
	if err == nil {
		if chain == nil {
			err = inv.Proceed()
		} else {
			err = chain.Apply(inv)
		}
	}
	if cb := d.config.OnDispatch; cb != nil {
		cb(types.PhaseOut, inv, err)
	}
	return err
}

// ChainAdvices returns the memoized chain members for a method in pre-call
// order, building the chain if needed. Operational surfaces use it; dispatch
// itself goes through chainFor.
func (d *Dispatcher) ChainAdvices(key types.MethodKey) ([]types.Advice, error) {
	method := types.NewMethod(key.Owner, key.Name, nil, -1)
	chain, err := d.chainFor(method)
	if err != nil {
		return nil, err
	}
	return chain.Advices(), nil
}

// chainFor looks up the memoized chain for the method, constructing it on
// first use. Concurrent first dispatches may race on construction; LoadOrStore
// guarantees every caller observes the same published chain. Construction
// failures are not cached: a missing instance provider is reported on every
// dispatch until one is installed.
func (d *Dispatcher) chainFor(method types.Method) (*adviceChain, error) {
	key := method.Key()
	if v, ok := d.chains.Load(key); ok {
		return v.(*adviceChain), nil
	}
	sources := d.pointcuts.Sources(key)
	var chain *adviceChain
	if len(sources) > 0 {
		var err error
		chain, err = buildChain(key, sources, d.config.InstanceProvider)
		if err != nil {
			return nil, err
		}
	}
	actual, _ := d.chains.LoadOrStore(key, chain)
	return actual.(*adviceChain), nil
}

func (d *Dispatcher) stampCorrelationID(inv *types.Invocation) {
	if _, ok := inv.GetValue(KeyInvocationID); ok {
		return
	}
	if id, err := uuid.NewV4(); err == nil {
		inv.PutValue(KeyInvocationID, id.String())
	}
}

// injectProxyRef writes the proxy into the target's tagged slot when the slot
// is still unset. The slot is write-once; later proxies for the same target
// are no-ops. Readers may observe either nil or the published proxy.
func (d *Dispatcher) injectProxyRef(target, proxy interface{}) {
	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return
	}
	structValue := targetValue.Elem()
	if structValue.Kind() != reflect.Struct {
		return
	}
	idx := d.proxySlotIndex(structValue.Type())
	if idx < 0 {
		return
	}
	slot := structValue.Field(idx)
	if !slot.CanSet() || !slot.IsNil() {
		return
	}
	proxyValue := reflect.ValueOf(proxy)
	if proxyValue.Type().AssignableTo(slot.Type()) {
		slot.Set(proxyValue)
	}
}

func (d *Dispatcher) proxySlotIndex(structType reflect.Type) int {
	if v, ok := d.slots.Load(structType); ok {
		return v.(int)
	}
	idx := -1
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if field.Tag.Get(ProxySlotTag) != ProxySlotValue {
			continue
		}
		switch field.Type.Kind() {
		case reflect.Ptr, reflect.Interface:
			idx = i
		}
		break
	}
	d.slots.Store(structType, idx)
	return idx
}
