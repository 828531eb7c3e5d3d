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

	"github.com/aspectgo/aspectgo/api/types"
)

// adviceChain is the flattened, order-stable, singly-linked list of advices
// applied to one intercepted method. Chain links are set at build time and
// never mutated, which keeps traversal lock-free under concurrent dispatch.
//
// adviceChain 是应用于一个被拦截方法的、展平后顺序稳定的增强单链表。
// 链接在构建时写定且此后不再变化，因此并发分发下的遍历无需加锁。
type adviceChain struct {
	head    *chainNode
	advices []types.Advice
}

type chainNode struct {
	advice  types.Advice
	swallow bool
	next    *chainNode
}

// Apply runs the chain head against the invocation. A nil or empty chain is
// observationally indistinguishable from inv.Proceed().
func (c *adviceChain) Apply(inv *types.Invocation) error {
	if c == nil || c.head == nil {
		return inv.Proceed()
	}
	return c.head.apply(inv)
}

// Advices returns the chain members in pre-call order.
func (c *adviceChain) Advices() []types.Advice {
	if c == nil {
		return nil
	}
	return c.advices
}

// apply installs this node's tail continuation on the invocation and runs the
// advice body. The previous continuation is restored afterwards so an upstream
// advice calling Proceed again re-runs its own tail, never this one's.
func (n *chainNode) apply(inv *types.Invocation) error {
	saved := inv.ProceedFunc()
	inv.SetProceedFunc(func() error {
		return n.proceedTail(inv)
	})
	defer inv.SetProceedFunc(saved)
	return n.advice.Apply(inv)
}

// proceedTail continues with the next advice, or with the original method body
// past the last one. Failures are recorded on the invocation's error slot and
// propagated, unless this node's advice swallows errors.
func (n *chainNode) proceedTail(inv *types.Invocation) error {
	var err error
	if n.next != nil {
		err = n.next.apply(inv)
	} else {
		err = inv.InvokeOriginal()
	}
	if err != nil {
		inv.SetError(err)
		if n.swallow {
			return nil
		}
		return err
	}
	return nil
}

// buildChain flattens the declared sources into a linked chain. The top-level
// sources are stable-sorted by order; bundles are expanded depth-first at
// their position; type-list sources are resolved through the instance
// provider. The same advice instance may not appear twice in one chain.
func buildChain(key types.MethodKey, sources []types.AdviceSource, provider types.InstanceProvider) (*adviceChain, error) {
	if err := validateSourceForms(key, sources); err != nil {
		return nil, err
	}
	resolved, err := resolveSources(key, sources, provider)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].order < resolved[j].order
	})
	var advices []types.Advice
	for _, entry := range resolved {
		expanded, err := expandAdvice(key, entry.advice)
		if err != nil {
			return nil, err
		}
		advices = append(advices, expanded...)
	}
	if len(advices) == 0 {
		return nil, types.NewConfigurationError("%s: advice list flattened to nothing", key)
	}
	if err := rejectDuplicates(key, advices); err != nil {
		return nil, err
	}

	nodes := make([]*chainNode, len(advices))
	for i, advice := range advices {
		nodes[i] = &chainNode{advice: advice, swallow: swallowsErrors(advice)}
	}
	for i := 0; i < len(nodes)-1; i++ {
		nodes[i].next = nodes[i+1]
	}
	return &adviceChain{head: nodes[0], advices: advices}, nil
}

type sourceEntry struct {
	advice types.Advice
	order  int
}

// resolveSources turns every source into an advice instance. Direct sources
// are taken as-is; type-list sources go through the instance provider, with
// type bundles expanded into their member types.
func resolveSources(key types.MethodKey, sources []types.AdviceSource, provider types.InstanceProvider) ([]sourceEntry, error) {
	var entries []sourceEntry
	for _, s := range sources {
		switch {
		case s.Instance != nil:
			entries = append(entries, sourceEntry{advice: s.Instance, order: s.Instance.Order()})
		case s.Bundle != nil:
			if len(s.Bundle) == 0 {
				return nil, types.NewConfigurationError("%s: empty advice bundle", key)
			}
			// A raw bundle sorts as order 0; its members stay together in
			// declaration order at that position.
			bundled, err := resolveSources(key, s.Bundle, provider)
			if err != nil {
				return nil, err
			}
			for _, b := range bundled {
				entries = append(entries, sourceEntry{advice: b.advice, order: 0})
			}
		case s.Type != nil:
			resolved, err := resolveAdviceType(key, s.Type, provider)
			if err != nil {
				return nil, err
			}
			entries = append(entries, resolved...)
		default:
			return nil, types.NewConfigurationError("%s: empty advice source", key)
		}
	}
	return entries, nil
}

// resolveAdviceType asks the instance provider for an instance of the advice
// type. The result must be a single advice or a type bundle; a bundle expands
// recursively into its member types.
func resolveAdviceType(key types.MethodKey, adviceType reflect.Type, provider types.InstanceProvider) ([]sourceEntry, error) {
	if provider == nil {
		return nil, types.NewConfigurationError("%s: advice type %s requires an instance provider, none installed", key, adviceType)
	}
	instance, err := provider(adviceType)
	if err != nil {
		return nil, types.NewConfigurationError("%s: resolving advice type %s: %v", key, adviceType, err)
	}
	switch v := instance.(type) {
	case types.TypeBundle:
		memberTypes := v.AdviceTypes()
		if len(memberTypes) == 0 {
			return nil, types.NewConfigurationError("%s: type bundle %s resolved to an empty type list", key, adviceType)
		}
		var entries []sourceEntry
		for _, mt := range memberTypes {
			resolved, err := resolveAdviceType(key, mt, provider)
			if err != nil {
				return nil, err
			}
			entries = append(entries, resolved...)
		}
		return entries, nil
	case types.Advice:
		return []sourceEntry{{advice: v, order: v.Order()}}, nil
	default:
		return nil, types.NewConfigurationError("%s: type %s is neither an advice nor a type bundle", key, adviceType)
	}
}

// expandAdvice inlines an advice-bundle instance into its children,
// depth-first, at the bundle's position.
func expandAdvice(key types.MethodKey, advice types.Advice) ([]types.Advice, error) {
	bundle, ok := advice.(types.AdviceBundle)
	if !ok {
		return []types.Advice{advice}, nil
	}
	children := bundle.Advices()
	if len(children) == 0 {
		return nil, types.NewConfigurationError("%s: empty advice bundle %T", key, advice)
	}
	var out []types.Advice
	for _, child := range children {
		switch {
		case child.Instance != nil:
			expanded, err := expandAdvice(key, child.Instance)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		case child.Bundle != nil:
			inner, err := expandAdvice(key, asBundleAdvice(child.Bundle))
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		default:
			return nil, types.NewConfigurationError("%s: bundle %T carries a non-instance source", key, advice)
		}
	}
	return out, nil
}

// asBundleAdvice lifts a raw source list into an anonymous bundle so nested
// raw bundles expand through the same path.
func asBundleAdvice(sources []types.AdviceSource) types.Advice {
	return &rawBundle{sources: sources}
}

type rawBundle struct {
	sources []types.AdviceSource
}

func (b *rawBundle) Order() int { return 0 }

func (b *rawBundle) Apply(inv *types.Invocation) error {
	return types.NewUnsupportedOperationError("advice bundles cannot be applied directly")
}

func (b *rawBundle) Advices() []types.AdviceSource { return b.sources }

// rejectDuplicates enforces that a single advice instance appears at most once
// in one chain. Non-comparable advice values are exempt; they cannot alias.
func rejectDuplicates(key types.MethodKey, advices []types.Advice) error {
	seen := make(map[interface{}]bool, len(advices))
	for _, advice := range advices {
		if t := reflect.TypeOf(advice); t != nil && !t.Comparable() {
			continue
		}
		if seen[advice] {
			return types.NewConfigurationError("%s: advice instance %T appears twice in one chain", key, advice)
		}
		seen[advice] = true
	}
	return nil
}

func swallowsErrors(advice types.Advice) bool {
	if s, ok := advice.(types.ErrorSwallower); ok {
		return s.SwallowErrors()
	}
	return false
}
