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

package str

import (
	"errors"
	"testing"
	"time"

	"github.com/aspectgo/aspectgo/test/assert"
)

func TestCheckHasVar(t *testing.T) {
	assert.True(t, CheckHasVar("${args[0]}"))
	assert.True(t, CheckHasVar("acct/${args[0]}/v1"))
	assert.False(t, CheckHasVar("plain"))
	assert.False(t, CheckHasVar("${unterminated"))
	assert.False(t, CheckHasVar("}no prefix"))
}

func TestRandomStr(t *testing.T) {
	s := RandomStr(16)
	assert.Equal(t, 16, len(s))
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		assert.True(t, ok)
	}
	assert.Equal(t, 0, len(RandomStr(0)))
}

func TestToStringScalars(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "hello", ToString("hello"))
	assert.Equal(t, "bytes", ToString([]byte("bytes")))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "42", ToString(42))
	assert.Equal(t, "-7", ToString(int64(-7)))
	assert.Equal(t, "9", ToString(uint8(9)))
	assert.Equal(t, "3.14", ToString(3.14))
	assert.Equal(t, "1.5", ToString(float32(1.5)))
}

func TestToStringStringerAndError(t *testing.T) {
	assert.Equal(t, "5s", ToString(5*time.Second))
	assert.Equal(t, "boom", ToString(errors.New("boom")))
}

func TestToStringComposite(t *testing.T) {
	assert.Equal(t, `{"k":"v"}`, ToString(map[string]string{"k": "v"}))
	assert.Equal(t, "[1,2,3]", ToString([]int{1, 2, 3}))

	type account struct {
		ID   string `json:"id"`
		Rank int    `json:"rank"`
	}
	assert.Equal(t, `{"id":"a1","rank":2}`, ToString(account{ID: "a1", Rank: 2}))
}

func TestSprintfDict(t *testing.T) {
	dict := map[string]string{
		"user": "alice",
		"op":   "Load",
	}
	out := SprintfDict("%s called %s", []string{"user", "op"}, dict)
	assert.Equal(t, "alice called Load", out)

	// Missing keys render as empty strings.
	out = SprintfDict("[%s]", []string{"absent"}, dict)
	assert.Equal(t, "[]", out)
}
