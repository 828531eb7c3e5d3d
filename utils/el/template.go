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

// Package el evaluates ${} expression templates over invocation data. Advices
// use it for validation predicates and cache keys.
package el

import (
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aspectgo/aspectgo/utils/str"
)

// Template is a parsed expression template evaluated against a data map.
type Template interface {
	Parse() error
	Execute(data map[string]interface{}) (interface{}, error)
	// HasVar 是否有变量
	HasVar() bool
}

// NewTemplate builds the template matching the input's shape: a pure ${expr}
// becomes an expression, a string mixing literals and ${} becomes a mixed
// template, anything else is returned as-is on execution.
func NewTemplate(tmpl interface{}) (Template, error) {
	if v, ok := tmpl.(string); ok {
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, str.VarPrefix) && strings.HasSuffix(trimmed, str.VarSuffix) {
			return NewExprTemplate(v)
		}
		if str.CheckHasVar(v) {
			return NewMixedTemplate(v)
		}
		return &LiteralTemplate{Tmpl: v}, nil
	}
	return &AnyTemplate{Tmpl: tmpl}, nil
}

// ExprTemplate 模板变量支持 ${xx} 形式，使用 expr 表达式计算
type ExprTemplate struct {
	Tmpl    string
	Program *vm.Program
	vm      vm.VM
}

var varPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// NewExprTemplate strips the ${} wrappers outside quoted regions and compiles
// the remaining expression.
func NewExprTemplate(tmpl string) (*ExprTemplate, error) {
	var sb strings.Builder
	inQuotes := false
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '"':
			inQuotes = !inQuotes
			sb.WriteByte(tmpl[i])
		case '\\':
			if i+1 < len(tmpl) {
				sb.WriteByte(tmpl[i])
				i++
				sb.WriteByte(tmpl[i])
			}
		default:
			if !inQuotes && i+1 < len(tmpl) && tmpl[i] == '$' && tmpl[i+1] == '{' {
				if loc := varPattern.FindStringIndex(tmpl[i:]); loc != nil {
					start, end := loc[0], loc[1]
					sb.WriteString(tmpl[i : i+start])
					sb.WriteString(tmpl[i+start+2 : i+end-1])
					i += end - 1
					continue
				}
			}
			sb.WriteByte(tmpl[i])
		}
	}
	t := &ExprTemplate{Tmpl: sb.String()}
	if err := t.Parse(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ExprTemplate) Parse() error {
	program, err := expr.Compile(t.Tmpl, expr.AllowUndefinedVariables())
	if err != nil {
		return err
	}
	t.Program = program
	return nil
}

func (t *ExprTemplate) Execute(data map[string]interface{}) (interface{}, error) {
	if t.Program == nil {
		return nil, nil
	}
	return t.vm.Run(t.Program, data)
}

func (t *ExprTemplate) HasVar() bool {
	return true
}

// LiteralTemplate 原样输出
type LiteralTemplate struct {
	Tmpl string
}

func (t *LiteralTemplate) Parse() error {
	return nil
}

func (t *LiteralTemplate) Execute(data map[string]interface{}) (interface{}, error) {
	return t.Tmpl, nil
}

func (t *LiteralTemplate) HasVar() bool {
	return false
}

// AnyTemplate passes a non-string value through unchanged.
type AnyTemplate struct {
	Tmpl interface{}
}

func (t *AnyTemplate) Parse() error {
	return nil
}

func (t *AnyTemplate) Execute(data map[string]interface{}) (interface{}, error) {
	return t.Tmpl, nil
}

func (t *AnyTemplate) HasVar() bool {
	return false
}

// MixedTemplate 支持字符串与变量混合的模板，例如 users/${args[0]}
type MixedTemplate struct {
	Tmpl     string
	segments []segment
	hasVars  bool
}

type segment struct {
	start   int
	end     int
	program *vm.Program
}

func NewMixedTemplate(tmpl string) (*MixedTemplate, error) {
	t := &MixedTemplate{Tmpl: tmpl}
	if err := t.Parse(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *MixedTemplate) Parse() error {
	t.segments = nil
	t.hasVars = false
	locs := varPattern.FindAllStringSubmatchIndex(t.Tmpl, -1)
	if len(locs) == 0 {
		return nil
	}
	t.hasVars = true
	for _, loc := range locs {
		program, err := expr.Compile(t.Tmpl[loc[2]:loc[3]], expr.AllowUndefinedVariables())
		if err != nil {
			return err
		}
		t.segments = append(t.segments, segment{start: loc[0], end: loc[1], program: program})
	}
	return nil
}

func (t *MixedTemplate) Execute(data map[string]interface{}) (interface{}, error) {
	if !t.hasVars {
		return t.Tmpl, nil
	}
	var sb strings.Builder
	lastPos := 0
	machine := vm.VM{}
	for _, seg := range t.segments {
		sb.WriteString(t.Tmpl[lastPos:seg.start])
		val, err := machine.Run(seg.program, data)
		if err != nil {
			return nil, err
		}
		sb.WriteString(str.ToString(val))
		lastPos = seg.end
	}
	sb.WriteString(t.Tmpl[lastPos:])
	return sb.String(), nil
}

func (t *MixedTemplate) HasVar() bool {
	return t.hasVars
}

// ExecuteAsString renders the template and coerces the result to a string.
func (t *MixedTemplate) ExecuteAsString(data map[string]interface{}) string {
	val, _ := t.Execute(data)
	return str.ToString(val)
}
