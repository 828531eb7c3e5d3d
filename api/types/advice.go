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

import "reflect"

// The interfaces in this file form the advice model of the AOP runtime. An advice is a unit
// of cross-cutting behavior that runs around an intercepted method call and decides whether
// to proceed to the original implementation, short-circuit it, or wrap it.
//
// 本文件中的接口构成 AOP 运行时的增强（advice）模型。增强是一段横切行为，
// 围绕被拦截的方法调用执行，并决定是继续执行原始实现、短路它还是包装它。

// Advice is the base interface for all advices.
// Advice 是所有增强的基础接口。
type Advice interface {
	// Order returns the execution order, the smaller the value, the higher the priority.
	// Advices without an explicit order should return 0; ties are broken by declaration order.
	// Order 返回执行顺序，值越小，优先级越高。未显式指定顺序的增强返回 0，相同顺序按声明顺序执行。
	Order() int
	// Apply runs the advice body against the invocation. The advice may call inv.Proceed
	// zero, one, or multiple times; each call re-runs the tail of the chain from this advice.
	// Apply 针对一次调用执行增强逻辑。增强可以调用 inv.Proceed 零次、一次或多次；
	// 每次调用都会重新执行链上从当前增强开始的后续部分。
	Apply(inv *Invocation) error
}

// ErrorSwallower is an optional capability interface. When an advice implements it and
// SwallowErrors returns true, errors crossing this advice's Proceed call are recorded on
// the invocation and suppressed instead of propagated.
// ErrorSwallower 是可选的能力接口。当增强实现它且 SwallowErrors 返回 true 时，
// 穿过该增强 Proceed 调用的错误会被记录到调用记录上并被吞掉，而不是继续向上传播。
type ErrorSwallower interface {
	SwallowErrors() bool
}

// AdviceBundle is a composite advice that is always flattened into its children at
// chain-build time. Calling Apply on a bundle directly returns ErrUnsupportedOperation.
// AdviceBundle 是组合增强，在链构建阶段总是被展开为其子增强。
// 直接对 bundle 调用 Apply 会返回 ErrUnsupportedOperation。
type AdviceBundle interface {
	Advice
	// Advices returns the bundled advice sources, in declaration order.
	Advices() []AdviceSource
}

// TypeBundle is an opaque grouping that resolves, through the instance provider, into a
// list of advice types. It is used inside type-list pointcut declarations.
// TypeBundle 是一个不透明的分组，通过实例提供者解析为一组增强类型，用于类型列表形式的切入点声明。
type TypeBundle interface {
	AdviceTypes() []reflect.Type
}

// AdviceSource is one entry of a pointcut declaration: either a ready advice instance,
// a bundle of sources, or a deferred advice type resolved through the instance provider.
// AdviceSource 是切入点声明中的一个条目：要么是现成的增强实例，要么是一组来源的捆绑，
// 要么是延迟到首次分发时通过实例提供者解析的增强类型。
type AdviceSource struct {
	// Instance is the advice instance for the direct annotation form.
	Instance Advice
	// Bundle holds child sources flattened depth-first at this position.
	Bundle []AdviceSource
	// Type is the advice type for the deferred type-list form.
	Type reflect.Type
}

// Use declares a direct advice instance source.
// Use 声明一个直接的增强实例来源。
func Use(advice Advice) AdviceSource {
	return AdviceSource{Instance: advice}
}

// UseBundle declares a composite source whose children are inlined at this position;
// the bundle sorts as order 0 among the other sources.
// UseBundle 声明一个组合来源，其子增强在该位置被内联展开；该组合按 order 0 参与排序。
func UseBundle(sources ...AdviceSource) AdviceSource {
	return AdviceSource{Bundle: sources}
}

// UseType declares a deferred advice type source. The prototype is a nil pointer of the
// advice type, e.g. UseType((*LoggingAdvice)(nil)).
// UseType 声明一个延迟解析的增强类型来源。prototype 为增强类型的 nil 指针，
// 例如 UseType((*LoggingAdvice)(nil))。
func UseType(prototype interface{}) AdviceSource {
	return AdviceSource{Type: reflect.TypeOf(prototype)}
}

// UseTypes declares the type-list form of a pointcut: every prototype becomes a deferred
// type source. A method declared this way may not mix in instance sources.
// UseTypes 声明类型列表形式的切入点：每个 prototype 都成为一个延迟解析的类型来源。
// 以这种形式声明的方法不能再混用实例来源。
func UseTypes(prototypes ...interface{}) []AdviceSource {
	sources := make([]AdviceSource, 0, len(prototypes))
	for _, p := range prototypes {
		sources = append(sources, UseType(p))
	}
	return sources
}

// Pointcut binds a method name on a target type to its advice sources. A method carrying
// at least one source is a pointcut; either all sources are of the type-list form or none is.
// Pointcut 将目标类型上的方法名与其增强来源绑定。携带至少一个来源的方法即为切入点；
// 来源要么全部为类型列表形式，要么全部不是，两种形式互斥。
type Pointcut struct {
	// Method is the exported method name on the target type.
	Method string
	// Sources are the advice sources in declaration order.
	Sources []AdviceSource
}

// AdvisedTarget is implemented by target types that declare their own pointcuts,
// the self-describing alternative to registry-level registration.
// AdvisedTarget 由自行声明切入点的目标类型实现，是注册表级注册方式的自描述替代。
type AdvisedTarget interface {
	Pointcuts() []Pointcut
}

// InstanceProvider resolves an advice type descriptor to an advice instance. It is
// typically backed by a dependency-injection container. It must be installed before the
// first dispatch of any method using the type-list pointcut form.
// InstanceProvider 将增强类型描述符解析为增强实例，通常由依赖注入容器提供。
// 必须在任何使用类型列表形式切入点的方法首次分发之前安装。
type InstanceProvider func(adviceType reflect.Type) (interface{}, error)

// OrderedAdvice attaches an explicit order and swallow flag to an existing advice,
// the programmatic equivalent of annotation parameters.
// OrderedAdvice 为既有增强附加显式顺序和吞错标志，等价于注解参数的编程形式。
type OrderedAdvice struct {
	Advice  Advice
	Ordered int
	Swallow bool
}

func (a *OrderedAdvice) Order() int {
	return a.Ordered
}

func (a *OrderedAdvice) SwallowErrors() bool {
	return a.Swallow
}

func (a *OrderedAdvice) Apply(inv *Invocation) error {
	return a.Advice.Apply(inv)
}

// WithOrder wraps an advice with an explicit order.
func WithOrder(advice Advice, order int) *OrderedAdvice {
	return &OrderedAdvice{Advice: advice, Ordered: order}
}

// WithSwallow wraps an advice so that errors crossing its Proceed are swallowed.
func WithSwallow(advice Advice, order int) *OrderedAdvice {
	return &OrderedAdvice{Advice: advice, Ordered: order, Swallow: true}
}
