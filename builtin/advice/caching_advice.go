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

package advice

import (
	"time"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/utils/cache"
	"github.com/aspectgo/aspectgo/utils/el"
	"github.com/aspectgo/aspectgo/utils/maps"
	"github.com/aspectgo/aspectgo/utils/str"
)

// Caching memoizes return values in a shared store. On a hit the return slot
// is filled from the store and the continuation never runs; on a miss the
// continuation's result is stored under the rendered key. Keys come from a
// template over the invocation environment, e.g. "user/${args[0]}".
//
// Caching 在共享存储中记忆返回值。命中时从存储填充返回槽，续延不再运行；
// 未命中时续延的结果按渲染后的键存入。键由调用环境上的模板生成。
type Caching struct {
	// Key is the cache key template.
	Key string
	// Ttl is the entry lifetime expression, e.g. "10m"; empty means no expiry.
	Ttl string
	// Namespace isolates this advice's keys inside the shared store.
	Namespace string

	store    types.Cache
	template el.Template
}

var _ types.Advice = (*Caching)(nil)

// NewCaching builds a caching advice over the given store. A nil store uses
// the process-wide default.
func NewCaching(store types.Cache, key, ttl string) (*Caching, error) {
	a := &Caching{Key: key, Ttl: ttl}
	if err := a.bind(store); err != nil {
		return nil, err
	}
	return a, nil
}

// Init configures the advice from a key-value map with keys "key", "ttl" and
// "namespace", binding it to the default store.
func (a *Caching) Init(configuration map[string]interface{}) error {
	if err := maps.Map2Struct(configuration, a); err != nil {
		return err
	}
	return a.bind(nil)
}

func (a *Caching) bind(store types.Cache) error {
	if a.Key == "" {
		return types.NewConfigurationError("caching key template is empty")
	}
	template, err := el.NewTemplate(a.Key)
	if err != nil {
		return err
	}
	a.template = template
	if a.Ttl != "" {
		if _, err := time.ParseDuration(a.Ttl); err != nil {
			return types.NewConfigurationError("caching ttl %q: %v", a.Ttl, err)
		}
	}
	if store == nil {
		store = cache.DefaultCache
	}
	if a.Namespace != "" {
		store = cache.NewNamespaceCache(store, a.Namespace+":")
	}
	a.store = store
	return nil
}

// Order returns 50; caching runs after admission and counting, short-circuits
// everything downstream.
func (a *Caching) Order() int {
	return 50
}

// Apply serves the return slot from the store on a hit, otherwise proceeds
// and stores the result. Failed continuations are not cached.
func (a *Caching) Apply(inv *types.Invocation) error {
	if a.template == nil || a.store == nil {
		return types.NewConfigurationError("caching advice for %s is not bound", inv.Method())
	}
	rendered, err := a.template.Execute(InvocationVars(inv))
	if err != nil {
		inv.SetError(err)
		return err
	}
	key := str.ToString(rendered)
	if a.store.Has(key) {
		inv.SetReturnValue(a.store.Get(key))
		return nil
	}
	if err = inv.Proceed(); err != nil {
		return err
	}
	if err = a.store.Set(key, inv.ReturnValue(), a.Ttl); err != nil {
		inv.SetError(err)
		return err
	}
	return nil
}
