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
	"github.com/aspectgo/aspectgo/utils/el"
	"github.com/aspectgo/aspectgo/utils/maps"
)

// Validator rejects invocations whose arguments fail an expression predicate,
// before the original body runs. The predicate sees the invocation
// environment, e.g.:
//
//	${len(args) > 0 && args[0] != ""}
//
// Validator 在原始方法体运行前，拒绝参数未通过表达式断言的调用。
// 断言可以读取调用环境。
type Validator struct {
	// Check is the ${} predicate expression; a non-true result rejects.
	Check string
	// Message is the rejection reason, defaulting to the predicate text.
	Message string

	template el.Template
}

var _ types.Advice = (*Validator)(nil)

// NewValidator compiles a validator with the given predicate.
func NewValidator(check, message string) (*Validator, error) {
	v := &Validator{Check: check, Message: message}
	if err := v.compile(); err != nil {
		return nil, err
	}
	return v, nil
}

// Init configures the validator from a key-value map with keys "check" and
// "message", then compiles the predicate.
func (a *Validator) Init(configuration map[string]interface{}) error {
	if err := maps.Map2Struct(configuration, a); err != nil {
		return err
	}
	return a.compile()
}

func (a *Validator) compile() error {
	if a.Check == "" {
		return types.NewConfigurationError("validator predicate is empty")
	}
	template, err := el.NewTemplate(a.Check)
	if err != nil {
		return err
	}
	if !template.HasVar() {
		return types.NewConfigurationError("validator predicate %q is not an expression", a.Check)
	}
	a.template = template
	return nil
}

// Order returns 10; validation runs before any expensive advice.
func (a *Validator) Order() int {
	return 10
}

// Apply evaluates the predicate and proceeds only on a true result. The
// rejection is recorded on the invocation's error slot.
func (a *Validator) Apply(inv *types.Invocation) error {
	if a.template == nil {
		return types.NewConfigurationError("validator for %s is not compiled", inv.Method())
	}
	result, err := a.template.Execute(InvocationVars(inv))
	if err != nil {
		inv.SetError(err)
		return err
	}
	if ok, _ := result.(bool); !ok {
		message := a.Message
		if message == "" {
			message = a.Check
		}
		err = fmt.Errorf("%s: validation failed: %s", inv.Method(), message)
		inv.SetError(err)
		return err
	}
	return inv.Proceed()
}
