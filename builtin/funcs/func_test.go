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

package funcs

import (
	"testing"

	"github.com/aspectgo/aspectgo/test/assert"
)

func TestEscapeFunc(t *testing.T) {
	v, ok := ScriptFuncMap.Get("escape")
	assert.True(t, ok)
	fn, ok := v.(func(string) string)
	assert.True(t, ok)

	assert.Equal(t, "hello\\\\world", fn("hello\\world"))
	assert.Equal(t, "hello\\\"world\\\"", fn("hello\"world\""))
	assert.Equal(t, "hello\\nworld", fn("hello\nworld"))
	assert.Equal(t, "hello\\rworld", fn("hello\rworld"))
	assert.Equal(t, "hello\\tworld", fn("hello\tworld"))
	assert.Equal(t, "complex\\\\\\\"\\n\\r\\tstring", fn("complex\\\"\n\r\tstring"))
}

func TestCaseFuncs(t *testing.T) {
	v, ok := ScriptFuncMap.Get("upper")
	assert.True(t, ok)
	assert.Equal(t, "AUDIT", v.(func(string) string)("audit"))

	v, ok = ScriptFuncMap.Get("lower")
	assert.True(t, ok)
	assert.Equal(t, "audit", v.(func(string) string)("AUDIT"))

	v, ok = ScriptFuncMap.Get("trimSpace")
	assert.True(t, ok)
	assert.Equal(t, "id", v.(func(string) string)("  id \n"))
}

func TestRegisterAndUnRegister(t *testing.T) {
	ScriptFuncMap.RegisterAll(map[string]any{
		"addOne": func(a int) int { return a + 1 },
	})
	ScriptFuncMap.Register("addTwo", func(a int) int { return a + 2 })

	cp := ScriptFuncMap.GetAll()
	_, ok := cp["addOne"]
	assert.True(t, ok)
	_, ok = cp["addTwo"]
	assert.True(t, ok)

	names := ScriptFuncMap.Names()
	assert.Equal(t, len(cp), len(names))
	var seen bool
	for _, name := range names {
		if name == "addOne" {
			seen = true
		}
	}
	assert.True(t, seen)

	ScriptFuncMap.UnRegister("addOne")
	_, ok = ScriptFuncMap.Get("addOne")
	assert.False(t, ok)

	ScriptFuncMap.UnRegister("addTwo")
	_, ok = ScriptFuncMap.Get("addTwo")
	assert.False(t, ok)
}

func TestShadowBuiltin(t *testing.T) {
	orig, ok := ScriptFuncMap.Get("upper")
	assert.True(t, ok)
	defer ScriptFuncMap.Register("upper", orig)

	ScriptFuncMap.Register("upper", func(s string) string { return s })
	v, ok := ScriptFuncMap.Get("upper")
	assert.True(t, ok)
	assert.Equal(t, "same", v.(func(string) string)("same"))
}
