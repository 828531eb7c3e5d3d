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
	"fmt"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/utils/js"
)

// DefaultScriptFunction is the function name a script advice calls when none
// is configured.
const DefaultScriptFunction = "Advice"

// Script runs a JavaScript function before the continuation. The function
// receives the invocation environment and steers the call by its result:
//
//	function Advice(inv) {
//	    if (inv.args[0] === "") return false;      // reject
//	    return [inv.args[0].toLowerCase()];        // replace arguments
//	}
//
// A false result rejects the invocation, an array result replaces the
// arguments, anything else proceeds unchanged. User-defined functions and
// global properties from the configuration are visible inside the script.
//
// Script 在续延之前运行一个 JavaScript 函数。函数接收调用环境并以结果控制调用：
// 返回 false 拒绝调用，返回数组替换参数，其余情况按原样继续。
type Script struct {
	// Ordering is the chain position, defaulting to 0.
	Ordering int

	functionName string
	engine       *js.GojaJsEngine
}

var _ types.Advice = (*Script)(nil)

// NewScript compiles a script advice. The script must define the named
// function; an empty functionName uses DefaultScriptFunction.
func NewScript(config types.Config, script, functionName string) (*Script, error) {
	if functionName == "" {
		functionName = DefaultScriptFunction
	}
	engine, err := js.NewGojaJsEngine(config, script, nil)
	if err != nil {
		return nil, err
	}
	return &Script{functionName: functionName, engine: engine}, nil
}

// Order implements types.Advice.
func (a *Script) Order() int {
	return a.Ordering
}

// Apply runs the script function and proceeds unless it rejected.
func (a *Script) Apply(inv *types.Invocation) error {
	if a.engine == nil {
		return types.NewConfigurationError("script advice for %s is not compiled", inv.Method())
	}
	out, err := a.engine.Execute(nil, a.functionName, InvocationVars(inv))
	if err != nil {
		inv.SetError(err)
		return err
	}
	switch v := out.(type) {
	case bool:
		if !v {
			err = fmt.Errorf("%s: rejected by script advice", inv.Method())
			inv.SetError(err)
			return err
		}
	case []interface{}:
		for i, arg := range v {
			inv.SetArgument(i, arg)
		}
	}
	return inv.Proceed()
}
