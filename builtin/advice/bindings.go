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
	"github.com/aspectgo/aspectgo/api/types"
)

// InvocationVars builds the expression environment for one invocation. The
// same names are visible to validator predicates, cache key templates and
// script bodies.
//
//	method: the method name
//	owner:  the declaring type's string form
//	args:   the boxed argument list
//	result: the current return slot
//	error:  the recorded failure message, empty when none
//	values: the invocation's user data map
func InvocationVars(inv *types.Invocation) map[string]interface{} {
	errMsg := ""
	if err := inv.Error(); err != nil {
		errMsg = err.Error()
	}
	return map[string]interface{}{
		"method": inv.Method().Name(),
		"owner":  inv.Method().Owner().String(),
		"args":   inv.Arguments(),
		"result": inv.ReturnValue(),
		"error":  errMsg,
		"values": inv.Values(),
	}
}
