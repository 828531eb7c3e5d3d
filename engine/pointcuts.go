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
	"sort"
	"sync"

	"github.com/aspectgo/aspectgo/api/types"
)

// PointcutRegistry is the declarative registration table that stands in for
// method annotations: given a method key it produces the (possibly empty)
// ordered list of advice sources declared for it.
//
// PointcutRegistry 是替代方法注解的声明式注册表：
// 给定方法键，它产出为其声明的（可能为空的）有序增强来源列表。
type PointcutRegistry struct {
	mu        sync.RWMutex
	methods   map[types.MethodKey][]types.AdviceSource
	collected map[reflect.Type]bool
}

// NewPointcutRegistry creates an empty registration table.
func NewPointcutRegistry() *PointcutRegistry {
	return &PointcutRegistry{
		methods:   make(map[types.MethodKey][]types.AdviceSource),
		collected: make(map[reflect.Type]bool),
	}
}

// OnMethod declares advice sources for a method on the target type. The target
// is a pointer to the user struct, e.g. (*UserService)(nil) or an instance.
// Sources accumulate: declaring the same method twice appends, which is how the
// repeated single-advice annotation form is expressed. Mixing the direct form
// and the type-list form on one method is rejected.
func (r *PointcutRegistry) OnMethod(target interface{}, method string, sources ...types.AdviceSource) error {
	targetType := reflect.TypeOf(target)
	if err := validateTargetType(targetType); err != nil {
		return err
	}
	if len(sources) == 0 {
		return types.NewConfigurationError("%s.%s: empty advice source list", targetType, method)
	}
	if _, ok := targetType.MethodByName(method); !ok {
		return types.NewConfigurationError("%s.%s: method not overridable: no such exported method", targetType, method)
	}
	key := types.MethodKey{Owner: targetType, Name: method}

	r.mu.Lock()
	defer r.mu.Unlock()
	merged := append(append([]types.AdviceSource{}, r.methods[key]...), sources...)
	if err := validateSourceForms(key, merged); err != nil {
		return err
	}
	r.methods[key] = merged
	return nil
}

// CollectDeclared reads the self-declared pointcuts of a target implementing
// AdvisedTarget and merges them into the table. It runs at most once per type.
func (r *PointcutRegistry) CollectDeclared(targetType reflect.Type) error {
	r.mu.Lock()
	if r.collected[targetType] {
		r.mu.Unlock()
		return nil
	}
	r.collected[targetType] = true
	r.mu.Unlock()

	if !targetType.Implements(advisedTargetType) {
		return nil
	}
	// A zero instance is enough: Pointcuts must be a pure declaration.
	instance := reflect.New(targetType.Elem()).Interface()
	declared := instance.(types.AdvisedTarget).Pointcuts()
	for _, pc := range declared {
		if err := r.OnMethod(instance, pc.Method, pc.Sources...); err != nil {
			return err
		}
	}
	return nil
}

// Sources returns the declared advice sources for a method, nil when the
// method is not a pointcut.
func (r *PointcutRegistry) Sources(key types.MethodKey) []types.AdviceSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.methods[key]
}

// PointcutNames returns the pointcut method names declared for the target
// type, sorted for stable iteration.
func (r *PointcutRegistry) PointcutNames(targetType reflect.Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for key := range r.methods {
		if key.Owner == targetType {
			names = append(names, key.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Keys returns every registered method key, for operational surfaces.
func (r *PointcutRegistry) Keys() []types.MethodKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]types.MethodKey, 0, len(r.methods))
	for key := range r.methods {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// IsAspectTarget reports whether the type declares at least one pointcut,
// either through the table or through the AdvisedTarget interface.
func (r *PointcutRegistry) IsAspectTarget(targetType reflect.Type) bool {
	if targetType == nil {
		return false
	}
	if targetType.Implements(advisedTargetType) {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.methods {
		if key.Owner == targetType {
			return true
		}
	}
	return false
}

var advisedTargetType = reflect.TypeOf((*types.AdvisedTarget)(nil)).Elem()

// validateTargetType enforces the target shape: a pointer to a concrete
// struct. Anything else cannot host an interceptable method set.
func validateTargetType(targetType reflect.Type) error {
	if targetType == nil {
		return types.NewConfigurationError("target type is nil")
	}
	if targetType.Kind() != reflect.Ptr || targetType.Elem().Kind() != reflect.Struct {
		return types.NewConfigurationError("target type %s is not a pointer to struct", targetType)
	}
	return nil
}

// validateSourceForms rejects mixing the direct advice form with the deferred
// type-list form on a single method; the two are mutually exclusive.
func validateSourceForms(key types.MethodKey, sources []types.AdviceSource) error {
	var hasDirect, hasTypes bool
	for _, s := range sources {
		switch {
		case s.Type != nil:
			hasTypes = true
		case s.Instance != nil || s.Bundle != nil:
			hasDirect = true
		default:
			return types.NewConfigurationError("%s: empty advice source", key)
		}
	}
	if hasDirect && hasTypes {
		return types.NewConfigurationError("%s: direct advices and advice type lists are mutually exclusive", key)
	}
	return nil
}
