/*
 * Copyright 2025 The AspectGo Authors.
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

// Package cache provides the in-memory store backing caching advices, plus a
// namespacing wrapper isolating advice instances sharing one store.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aspectgo/aspectgo/api/types"
)

var DefaultCache = NewMemoryCache("@every 5m")

// MemoryCache is an in-memory key-value store with per-entry TTL. Expired
// entries are invisible to readers immediately and reclaimed by a scheduled
// sweep. The sweep starts lazily with the first expirable entry and stops
// itself when none remain.
//
// MemoryCache 是带单条 TTL 的内存键值存储。过期条目对读取方立即不可见，
// 由计划清扫任务回收。清扫随首个可过期条目惰性启动，无可过期条目时自行停止。
type MemoryCache struct {
	mu       sync.RWMutex
	items    map[string]entry
	sweeper  *cron.Cron
	schedule string
}

// entry holds a stored value and its expiration as a Unix nano timestamp.
// Zero expiration means the entry never expires.
type entry struct {
	value      interface{}
	expiration int64
}

// NewMemoryCache creates an empty cache whose sweep runs on the given cron
// schedule, e.g. "@every 5m". An empty schedule uses the five-minute default.
func NewMemoryCache(schedule string) *MemoryCache {
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &MemoryCache{
		items:    make(map[string]entry),
		schedule: schedule,
	}
}

// Set stores a value under the key. ttl is a duration expression such as
// "10m" or "1h"; empty means no expiration. Storing the first expirable entry
// starts the sweep.
func (c *MemoryCache) Set(key string, value interface{}, ttl string) error {
	var expiration int64
	if ttl != "" {
		dur, err := time.ParseDuration(ttl)
		if err != nil {
			return err
		}
		if dur > 0 {
			expiration = time.Now().Add(dur).UnixNano()
		}
	}
	c.mu.Lock()
	c.items[key] = entry{value: value, expiration: expiration}
	startSweep := expiration > 0 && c.sweeper == nil
	c.mu.Unlock()

	if startSweep {
		c.StartSweep()
	}
	return nil
}

// Get returns the stored value, or nil when the key is absent or expired.
func (c *MemoryCache) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.items[key]
	if !found {
		return nil
	}
	if e.expiration > 0 && time.Now().UnixNano() > e.expiration {
		return nil
	}
	return e.value
}

// Has reports whether the key exists and has not expired.
func (c *MemoryCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.items[key]
	if !found {
		return false
	}
	return e.expiration == 0 || time.Now().UnixNano() <= e.expiration
}

// Delete removes a key.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// DeleteByPrefix removes every key with the given prefix.
func (c *MemoryCache) DeleteByPrefix(prefix string) error {
	c.mu.Lock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// GetByPrefix returns the live entries whose keys carry the given prefix.
func (c *MemoryCache) GetByPrefix(prefix string) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now().UnixNano()
	result := make(map[string]interface{})
	for k, e := range c.items {
		if strings.HasPrefix(k, prefix) && (e.expiration == 0 || now <= e.expiration) {
			result[k] = e.value
		}
	}
	return result
}

// StartSweep schedules the expiration sweep if it is not already running and
// at least one expirable entry exists.
func (c *MemoryCache) StartSweep() {
	c.mu.Lock()
	if c.sweeper != nil {
		c.mu.Unlock()
		return
	}
	expirable := false
	for _, e := range c.items {
		if e.expiration > 0 {
			expirable = true
			break
		}
	}
	if !expirable {
		c.mu.Unlock()
		return
	}
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(c.schedule, c.deleteExpired); err != nil {
		c.mu.Unlock()
		return
	}
	c.sweeper = sweeper
	c.mu.Unlock()
	sweeper.Start()
}

// StopSweep stops the scheduled sweep. Safe to call repeatedly.
func (c *MemoryCache) StopSweep() {
	c.mu.Lock()
	sweeper := c.sweeper
	c.sweeper = nil
	c.mu.Unlock()
	if sweeper != nil {
		sweeper.Stop()
	}
}

// deleteExpired reclaims expired entries. Keys are collected under the read
// lock and removed in batches under the write lock, re-checking expiration
// against the same timestamp; an entry refreshed in between survives. When no
// expirable entries remain the sweep stops itself.
func (c *MemoryCache) deleteExpired() {
	now := time.Now().UnixNano()

	c.mu.RLock()
	var expired []string
	for k, e := range c.items {
		if e.expiration > 0 && now > e.expiration {
			expired = append(expired, k)
		}
	}
	c.mu.RUnlock()

	if len(expired) > 0 {
		const batchSize = 300
		for i := 0; i < len(expired); i += batchSize {
			end := i + batchSize
			if end > len(expired) {
				end = len(expired)
			}
			c.mu.Lock()
			for _, k := range expired[i:end] {
				if e, found := c.items[k]; found && e.expiration > 0 && now > e.expiration {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		}
	}

	c.mu.RLock()
	remaining := false
	for _, e := range c.items {
		if e.expiration > 0 {
			remaining = true
			break
		}
	}
	c.mu.RUnlock()
	if !remaining {
		c.StopSweep()
	}
}

// NamespaceCache prefixes every key with a namespace so several advice
// instances can share one underlying store without key collisions.
//
// NamespaceCache 给每个键加上命名空间前缀，使多个增强实例共享同一底层存储而互不冲突。
type NamespaceCache struct {
	Cache     types.Cache
	Namespace string
}

// NewNamespaceCache wraps a store with a namespace. A nil store yields nil.
func NewNamespaceCache(cache types.Cache, namespace string) *NamespaceCache {
	if cache == nil {
		return nil
	}
	return &NamespaceCache{Cache: cache, Namespace: namespace}
}

func (c *NamespaceCache) Set(key string, value interface{}, ttl string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.Set(c.Namespace+key, value, ttl)
}

func (c *NamespaceCache) Get(key string) interface{} {
	if c == nil || c.Cache == nil {
		return nil
	}
	return c.Cache.Get(c.Namespace + key)
}

func (c *NamespaceCache) Has(key string) bool {
	if c == nil || c.Cache == nil {
		return false
	}
	return c.Cache.Has(c.Namespace + key)
}

func (c *NamespaceCache) Delete(key string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.Delete(c.Namespace + key)
}

func (c *NamespaceCache) DeleteByPrefix(prefix string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.DeleteByPrefix(c.Namespace + prefix)
}

func (c *NamespaceCache) GetByPrefix(prefix string) map[string]interface{} {
	if c == nil || c.Cache == nil {
		return map[string]interface{}{}
	}
	result := c.Cache.GetByPrefix(c.Namespace + prefix)
	out := make(map[string]interface{}, len(result))
	for k, v := range result {
		if len(k) > len(c.Namespace) {
			out[k[len(c.Namespace):]] = v
		}
	}
	return out
}

var _ types.Cache = (*MemoryCache)(nil)
var _ types.Cache = (*NamespaceCache)(nil)
