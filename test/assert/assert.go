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

// Package assert provides the minimal assertion helpers used by the tests.
package assert

import (
	"reflect"
	"strings"
	"testing"
)

// Equal asserts that two values are deeply equal.
func Equal(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if !objectsAreEqual(expected, actual) {
		t.Errorf("expected: %v, actual: %v %v", expected, actual, msgAndArgs)
	}
}

// NotEqual asserts that two values are not deeply equal.
func NotEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if objectsAreEqual(expected, actual) {
		t.Errorf("expected not equal: %v, actual: %v %v", expected, actual, msgAndArgs)
	}
}

// EqualCleanString asserts equality after stripping spaces, tabs and newlines.
func EqualCleanString(t *testing.T, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()
	cleaner := strings.NewReplacer(" ", "", "\t", "", "\n", "", "\r", "")
	if cleaner.Replace(expected) != cleaner.Replace(actual) {
		t.Errorf("expected: %s, actual: %s %v", expected, actual, msgAndArgs)
	}
}

// Nil asserts that the value is nil.
func Nil(t *testing.T, object interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if !isNil(object) {
		t.Errorf("expected nil, actual: %v %v", object, msgAndArgs)
	}
}

// NotNil asserts that the value is not nil.
func NotNil(t *testing.T, object interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if isNil(object) {
		t.Errorf("expected not nil %v", msgAndArgs)
	}
}

// True asserts that the value is true.
func True(t *testing.T, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	if !value {
		t.Errorf("expected true, actual false %v", msgAndArgs)
	}
}

// False asserts that the value is false.
func False(t *testing.T, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	if value {
		t.Errorf("expected false, actual true %v", msgAndArgs)
	}
}

// NoError asserts that err is nil.
func NoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %s %v", err.Error(), msgAndArgs)
	}
}

// EqualError asserts that err is non-nil and its message equals errString.
func EqualError(t *testing.T, err error, errString string, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %q, actual nil %v", errString, msgAndArgs)
		return
	}
	if err.Error() != errString {
		t.Errorf("expected error %q, actual %q %v", errString, err.Error(), msgAndArgs)
	}
}

// Fail fails the test with the given message.
func Fail(t *testing.T, failureMessage string, msgAndArgs ...interface{}) {
	t.Helper()
	t.Errorf("%s %v", failureMessage, msgAndArgs)
}

func objectsAreEqual(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}
	exp, ok := expected.([]byte)
	if !ok {
		return reflect.DeepEqual(expected, actual)
	}
	act, ok := actual.([]byte)
	if !ok {
		return false
	}
	return string(exp) == string(act)
}

func isNil(object interface{}) bool {
	if object == nil {
		return true
	}
	value := reflect.ValueOf(object)
	switch value.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return value.IsNil()
	}
	return false
}
