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

package maps

import (
	"testing"

	"github.com/aspectgo/aspectgo/test/assert"
)

type cachingSettings struct {
	Key       string
	TTL       string
	Namespace string
	MaxSize   int
}

func TestMap2Struct(t *testing.T) {
	m := map[string]interface{}{
		"key":       "acct/${args[0]}",
		"ttl":       "10m",
		"namespace": "tenant1",
		"maxSize":   float64(100),
	}
	var settings cachingSettings
	err := Map2Struct(m, &settings)
	assert.Nil(t, err)
	assert.Equal(t, "acct/${args[0]}", settings.Key)
	assert.Equal(t, "10m", settings.TTL)
	assert.Equal(t, "tenant1", settings.Namespace)
	assert.Equal(t, 100, settings.MaxSize)
}

func TestMap2StructKeysCaseInsensitive(t *testing.T) {
	m := map[string]interface{}{
		"Key": "k",
		"Ttl": "1h",
	}
	var settings cachingSettings
	assert.Nil(t, Map2Struct(m, &settings))
	assert.Equal(t, "k", settings.Key)
	assert.Equal(t, "1h", settings.TTL)
}

func TestMap2StructPartialInput(t *testing.T) {
	settings := cachingSettings{TTL: "5m"}
	err := Map2Struct(map[string]interface{}{"key": "k2"}, &settings)
	assert.Nil(t, err)
	assert.Equal(t, "k2", settings.Key)
	// Absent keys leave existing values untouched.
	assert.Equal(t, "5m", settings.TTL)
}

func TestMap2StructInvalidInput(t *testing.T) {
	var settings cachingSettings
	assert.NotNil(t, Map2Struct("not a map", &settings))
	assert.NotNil(t, Map2Struct(map[string]interface{}{}, settings))

	err := Map2Struct(nil, &settings)
	assert.Nil(t, err)
	assert.Equal(t, "", settings.Key)
}

func TestMap2StructNested(t *testing.T) {
	type sinkSettings struct {
		Server string
		QOS    int
	}
	type auditSettings struct {
		Topic string
		Sink  sinkSettings
	}
	m := map[string]interface{}{
		"topic": "audit/invocations",
		"sink": map[string]interface{}{
			"server": "tcp://127.0.0.1:1883",
			"qos":    1,
		},
	}
	var settings auditSettings
	assert.Nil(t, Map2Struct(m, &settings))
	assert.Equal(t, "audit/invocations", settings.Topic)
	assert.Equal(t, "tcp://127.0.0.1:1883", settings.Sink.Server)
	assert.Equal(t, 1, settings.Sink.QOS)
}
