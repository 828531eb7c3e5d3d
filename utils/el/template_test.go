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

package el

import (
	"testing"

	"github.com/aspectgo/aspectgo/test/assert"
)

func invocationData(args ...interface{}) map[string]interface{} {
	return map[string]interface{}{
		"method": "Load",
		"owner":  "*service.Account",
		"args":   args,
	}
}

func TestNewTemplateShapes(t *testing.T) {
	tmpl, err := NewTemplate(`${args[0]}`)
	assert.Nil(t, err)
	_, ok := tmpl.(*ExprTemplate)
	assert.True(t, ok)
	assert.True(t, tmpl.HasVar())

	tmpl, err = NewTemplate(`acct/${args[0]}`)
	assert.Nil(t, err)
	_, ok = tmpl.(*MixedTemplate)
	assert.True(t, ok)
	assert.True(t, tmpl.HasVar())

	tmpl, err = NewTemplate("plain text")
	assert.Nil(t, err)
	_, ok = tmpl.(*LiteralTemplate)
	assert.True(t, ok)
	assert.False(t, tmpl.HasVar())

	tmpl, err = NewTemplate(42)
	assert.Nil(t, err)
	_, ok = tmpl.(*AnyTemplate)
	assert.True(t, ok)
	assert.False(t, tmpl.HasVar())
}

func TestExprTemplateEvaluates(t *testing.T) {
	tmpl, err := NewExprTemplate(`${args[0] != ""}`)
	assert.Nil(t, err)

	v, err := tmpl.Execute(invocationData("a1"))
	assert.Nil(t, err)
	assert.Equal(t, true, v)

	v, err = tmpl.Execute(invocationData(""))
	assert.Nil(t, err)
	assert.Equal(t, false, v)
}

func TestExprTemplateTypedResult(t *testing.T) {
	tmpl, err := NewExprTemplate(`${len(args)}`)
	assert.Nil(t, err)
	v, err := tmpl.Execute(invocationData("a", "b"))
	assert.Nil(t, err)
	assert.Equal(t, 2, v)
}

func TestExprTemplateUndefinedVariable(t *testing.T) {
	tmpl, err := NewExprTemplate(`${missing == nil}`)
	assert.Nil(t, err)
	v, err := tmpl.Execute(map[string]interface{}{})
	assert.Nil(t, err)
	assert.Equal(t, true, v)
}

func TestExprTemplateKeepsQuotedDollar(t *testing.T) {
	tmpl, err := NewExprTemplate(`${"$" + args[0]}`)
	assert.Nil(t, err)
	v, err := tmpl.Execute(invocationData("x"))
	assert.Nil(t, err)
	assert.Equal(t, "$x", v)
}

func TestExprTemplateCompileError(t *testing.T) {
	_, err := NewExprTemplate(`${args[}`)
	assert.NotNil(t, err)
}

func TestMixedTemplateRenders(t *testing.T) {
	tmpl, err := NewMixedTemplate(`acct/${args[0]}/v${args[1]}`)
	assert.Nil(t, err)
	assert.True(t, tmpl.HasVar())

	v, err := tmpl.Execute(invocationData("a1", 2))
	assert.Nil(t, err)
	assert.Equal(t, "acct/a1/v2", v)
}

func TestMixedTemplateWithoutVars(t *testing.T) {
	tmpl := &MixedTemplate{Tmpl: "static"}
	assert.Nil(t, tmpl.Parse())
	assert.False(t, tmpl.HasVar())
	v, err := tmpl.Execute(nil)
	assert.Nil(t, err)
	assert.Equal(t, "static", v)
}

func TestMixedTemplateExecuteAsString(t *testing.T) {
	tmpl, err := NewMixedTemplate(`n=${args[0]}`)
	assert.Nil(t, err)
	assert.Equal(t, "n=7", tmpl.ExecuteAsString(invocationData(7)))
}

func TestMixedTemplateRuntimeError(t *testing.T) {
	tmpl, err := NewMixedTemplate(`k/${args[5]}`)
	assert.Nil(t, err)
	_, err = tmpl.Execute(invocationData("only"))
	assert.NotNil(t, err)
}

func TestLiteralAndAnyTemplates(t *testing.T) {
	lit := &LiteralTemplate{Tmpl: "hello"}
	v, err := lit.Execute(invocationData())
	assert.Nil(t, err)
	assert.Equal(t, "hello", v)

	any := &AnyTemplate{Tmpl: []int{1, 2}}
	v, err = any.Execute(nil)
	assert.Nil(t, err)
	assert.Equal(t, []int{1, 2}, v)
}
