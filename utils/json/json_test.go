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

package json

import (
	"testing"

	"github.com/aspectgo/aspectgo/test/assert"
)

type auditRecord struct {
	InvocationID string `json:"invocationId"`
	Method       string `json:"method"`
	Result       string `json:"result,omitempty"`
}

func TestMarshalNoTrailingNewline(t *testing.T) {
	record := auditRecord{InvocationID: "inv-1", Method: "Load"}
	b, err := Marshal(record)
	assert.Nil(t, err)
	assert.Equal(t, `{"invocationId":"inv-1","method":"Load"}`, string(b))
}

func TestMarshalKeepsHTMLCharacters(t *testing.T) {
	b, err := Marshal(map[string]string{"q": "a<b&c>d"})
	assert.Nil(t, err)
	assert.Equal(t, `{"q":"a<b&c>d"}`, string(b))

	escaped, err := Marshal2(map[string]string{"q": "a<b"}, true)
	assert.Nil(t, err)
	assert.Equal(t, "{\"q\":\"a\\u003cb\"}", string(escaped))
}

func TestMarshalError(t *testing.T) {
	_, err := Marshal(make(chan int))
	assert.NotNil(t, err)
}

func TestUnmarshal(t *testing.T) {
	var record auditRecord
	err := Unmarshal([]byte(`{"invocationId":"inv-2","method":"Place","result":"ok"}`), &record)
	assert.Nil(t, err)
	assert.Equal(t, "inv-2", record.InvocationID)
	assert.Equal(t, "Place", record.Method)
	assert.Equal(t, "ok", record.Result)

	err = Unmarshal([]byte(`{`), &record)
	assert.NotNil(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	in := auditRecord{InvocationID: "inv-3", Method: "Cancel", Result: "done"}
	b, err := Marshal(in)
	assert.Nil(t, err)
	var out auditRecord
	assert.Nil(t, Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
