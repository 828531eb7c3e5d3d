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

import "time"

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithOnDispatch is an option that sets the dispatch callback of the Config.
func WithOnDispatch(onDispatch func(phase DispatchPhase, inv *Invocation, err error)) Option {
	return func(c *Config) error {
		c.OnDispatch = onDispatch
		return nil
	}
}

// WithInstanceProvider is an option that sets the advice instance provider of the Config.
func WithInstanceProvider(provider InstanceProvider) Option {
	return func(c *Config) error {
		c.InstanceProvider = provider
		return nil
	}
}

// WithPool is an option that sets the goroutine pool of the Config.
func WithPool(pool Pool) Option {
	return func(c *Config) error {
		c.Pool = pool
		return nil
	}
}

// WithCache is an option that sets the shared cache of the Config.
func WithCache(cache Cache) Option {
	return func(c *Config) error {
		c.Cache = cache
		return nil
	}
}

// WithScriptMaxExecutionTime is an option that sets the script max execution time of the Config.
func WithScriptMaxExecutionTime(scriptMaxExecutionTime time.Duration) Option {
	return func(c *Config) error {
		c.ScriptMaxExecutionTime = scriptMaxExecutionTime
		return nil
	}
}

// WithProperties is an option that sets the global properties of the Config.
func WithProperties(properties Metadata) Option {
	return func(c *Config) error {
		c.Properties = properties
		return nil
	}
}
