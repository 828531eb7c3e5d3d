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

// Package js executes JavaScript advice bodies on pooled goja virtual
// machines. Scripts are compiled once; each execution borrows a VM carrying
// the global properties and user-defined functions from the configuration.
package js

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/builtin/funcs"
)

const (
	// GlobalKey exposes the configuration properties inside scripts as global.xx.
	GlobalKey = "global"
)

// GojaJsEngine goja js engine
type GojaJsEngine struct {
	vmPool          sync.Pool
	config          types.Config
	program         *goja.Program
	udfProgramCache map[string]*goja.Program
}

// NewGojaJsEngine compiles the script and prepares the VM pool. The vars map
// is installed into every VM as top-level bindings.
func NewGojaJsEngine(config types.Config, script string, vars map[string]interface{}) (*GojaJsEngine, error) {
	program, err := goja.Compile("", script, true)
	if err != nil {
		return nil, err
	}
	engine := &GojaJsEngine{
		config:  config,
		program: program,
	}
	if err = engine.preCompileUdf(config); err != nil {
		return nil, err
	}
	engine.vmPool = sync.Pool{
		New: func() interface{} {
			return engine.newVm(config, vars)
		},
	}
	return engine, nil
}

// preCompileUdf compiles every string-valued user-defined function once.
func (g *GojaJsEngine) preCompileUdf(config types.Config) error {
	cache := make(map[string]*goja.Program)
	for k, v := range config.Udf {
		if src, ok := v.(string); ok {
			p, err := goja.Compile(k, src, true)
			if err != nil {
				return err
			}
			cache[k] = p
		}
	}
	g.udfProgramCache = cache
	return nil
}

// newVm builds one VM: top-level vars, built-in script functions, global
// properties, user-defined functions, then the main script. Built-ins are
// installed first so a configuration Udf with the same name shadows them.
func (g *GojaJsEngine) newVm(config types.Config, vars map[string]interface{}) *goja.Runtime {
	vm := goja.New()

	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			config.Logger.Printf("set var %s error: %s", k, err.Error())
		}
	}

	for k, v := range funcs.ScriptFuncMap.GetAll() {
		if err := vm.Set(k, v); err != nil {
			config.Logger.Printf("set builtin func %s error: %s", k, err.Error())
		}
	}

	if len(config.Properties.Values()) != 0 {
		if err := vm.Set(GlobalKey, config.Properties.Values()); err != nil {
			config.Logger.Printf("set global properties error: %s", err.Error())
		}
	}

	for k, v := range config.Udf {
		var err error
		if _, ok := v.(string); ok {
			if p, exists := g.udfProgramCache[k]; exists {
				_, err = vm.RunProgram(p)
			}
		} else {
			err = vm.Set(k, v)
		}
		if err != nil {
			config.Logger.Printf("register udf %s error: %s", k, err.Error())
		}
	}

	timer := g.startTimeout(vm)
	_, err := vm.RunProgram(g.program)
	g.stopTimeout(timer)
	if err != nil {
		config.Logger.Printf("js vm error: %s", err.Error())
	}
	return vm
}

// Execute runs a named function from the script with the given arguments. The
// extra bindings, if any, are set on the borrowed VM for the duration of this
// call. Panics inside the VM surface as errors.
func (g *GojaJsEngine) Execute(bindings map[string]interface{}, functionName string, args ...interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()

	vm := g.vmPool.Get().(*goja.Runtime)
	defer g.vmPool.Put(vm)

	for k, v := range bindings {
		previous := vm.Get(k)
		vm.Set(k, v)
		defer func(k string, previous goja.Value) {
			if previous == nil {
				_ = vm.GlobalObject().Delete(k)
			} else {
				_ = vm.Set(k, previous)
			}
		}(k, previous)
	}

	var timer *time.Timer
	if g.config.ScriptMaxExecutionTime > 0 {
		timer = g.startTimeout(vm)
		defer g.stopTimeout(timer)
	}

	f, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return nil, errors.New(functionName + " is not a function")
	}

	var params []goja.Value
	if len(args) > 0 {
		params = make([]goja.Value, len(args))
		for i, v := range args {
			params[i] = vm.ToValue(v)
		}
	}

	res, err := f(goja.Undefined(), params...)
	if err != nil {
		return nil, err
	}
	return res.Export(), nil
}

func (g *GojaJsEngine) Stop() {
}

// startTimeout interrupts the VM when the configured execution budget runs
// out. Returns nil when no budget is configured.
func (g *GojaJsEngine) startTimeout(vm *goja.Runtime) *time.Timer {
	if g.config.ScriptMaxExecutionTime <= 0 {
		return nil
	}
	return time.AfterFunc(g.config.ScriptMaxExecutionTime, func() {
		vm.Interrupt("execution timeout")
	})
}

func (g *GojaJsEngine) stopTimeout(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
