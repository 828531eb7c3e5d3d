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

package types

// Cache is the interface for runtime shared caches, used by caching advices to
// memoize return values across invocations.
type Cache interface {
	// Set stores a value with an optional TTL expression such as "10m" or "1h".
	// An empty ttl stores the value without expiration.
	Set(key string, value interface{}, ttl string) error
	// Get retrieves a stored value, nil if not exists or expired.
	Get(key string) interface{}
	// Has checks if a key exists and has not expired.
	Has(key string) bool
	// Delete removes a cache item by key.
	Delete(key string) error
	// DeleteByPrefix removes all cache items with the specified prefix.
	DeleteByPrefix(prefix string) error
	// GetByPrefix retrieves all values with keys matching the specified prefix.
	GetByPrefix(prefix string) map[string]interface{}
}
