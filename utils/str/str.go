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

// Package str provides string conversion and template-variable helpers shared
// by advices and expression templates.
package str

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/aspectgo/aspectgo/utils/json"
)

const (
	// VarPrefix marks the start of an expression variable, e.g. ${args}.
	VarPrefix = "${"
	// VarSuffix marks the end of an expression variable.
	VarSuffix = "}"
)

const randomStrLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CheckHasVar reports whether the string contains a ${} expression variable.
func CheckHasVar(s string) bool {
	return strings.Contains(s, VarPrefix) && strings.Contains(s, VarSuffix)
}

// RandomStr returns a random alphanumeric string of the given length.
func RandomStr(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randomStrLetters[rand.Intn(len(randomStrLetters))]
	}
	return string(b)
}

// ToString converts any value to its string form. Composite values are
// rendered as JSON; a nil input yields the empty string.
func ToString(input interface{}) string {
	if input == nil {
		return ""
	}
	switch v := input.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	default:
		if b, err := json.Marshal(input); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", input)
	}
}

// SprintfDict renders a %-style format where every verb is looked up in the
// dictionary by the key list, in order.
func SprintfDict(format string, keys []string, dict map[string]string) string {
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = dict[k]
	}
	return fmt.Sprintf(format, args...)
}
