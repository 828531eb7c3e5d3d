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

package aspectgo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/builtin/advice"
	"github.com/aspectgo/aspectgo/test/assert"
	"github.com/aspectgo/aspectgo/utils/cache"
)

// userStore is a stand-in backend counting how often the body actually ran.
type userStore struct {
	mu    sync.Mutex
	loads int
}

func (s *userStore) bump() {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
}

func (s *userStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// userService declares its own pointcuts.
type userService struct {
	store *userStore
}

func (s *userService) GetUser(id string) (string, error) {
	s.store.bump()
	if id == "" {
		return "", errors.New("missing id")
	}
	return "user " + id, nil
}

func (s *userService) Pointcuts() []types.Pointcut {
	validator, _ := advice.NewValidator(`${args[0] != ""}`, "id required")
	caching, _ := advice.NewCaching(cache.NewMemoryCache(""), "user/${args[0]}", "10m")
	return []types.Pointcut{
		{Method: "GetUser", Sources: []types.AdviceSource{
			types.Use(validator),
			types.Use(caching),
		}},
	}
}

func TestDefaultEngineIsShared(t *testing.T) {
	assert.Equal(t, Default(), Default())
}

func TestDeclaredTargetEndToEnd(t *testing.T) {
	e := New(types.NewConfig())
	store := &userStore{}
	proxy, err := e.Wrap(&userService{store: store})
	assert.Nil(t, err)

	result, err := proxy.Call("GetUser", "u42")
	assert.Nil(t, err)
	assert.Equal(t, "user u42", result)
	assert.Equal(t, 1, store.count())

	// Cache hit, the body does not run again.
	result, err = proxy.Call("GetUser", "u42")
	assert.Nil(t, err)
	assert.Equal(t, "user u42", result)
	assert.Equal(t, 1, store.count())

	// Validator rejects before the body.
	_, err = proxy.Call("GetUser", "")
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "id required"))
	assert.Equal(t, 1, store.count())
}

func TestFacadeEndToEnd(t *testing.T) {
	e := New(types.NewConfig())
	proxy, err := e.Wrap(&userService{store: &userStore{}})
	assert.Nil(t, err)

	var facade struct {
		GetUser func(id string) (string, error)
	}
	assert.Nil(t, proxy.Fill(&facade))

	user, err := facade.GetUser("u7")
	assert.Nil(t, err)
	assert.Equal(t, "user u7", user)
}

// reportService exposes an async method.
type reportService struct{}

func (s *reportService) Build(n int) *types.Future {
	return types.RunFuture(func() (interface{}, error) {
		return n * 10, nil
	})
}

func TestExternalPointcutAndAsyncDispatch(t *testing.T) {
	e := New(types.NewConfig())
	m := advice.NewMetrics(nil)
	err := e.OnMethod(&reportService{}, "Build", types.Use(m))
	assert.Nil(t, err)

	proxy, err := e.Wrap(&reportService{})
	assert.Nil(t, err)

	result, err := proxy.Call("Build", 4)
	assert.Nil(t, err)
	outer, ok := result.(*types.Future)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := outer.Await(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 40, v)
}

func TestContainerBoundToDefaultEngine(t *testing.T) {
	c := NewContainer()
	assert.NotNil(t, c)
	assert.Nil(t, c.Provide(func() *userStore { return &userStore{} }))
	var store *userStore
	assert.Nil(t, c.Invoke(func(s *userStore) { store = s }))
	assert.NotNil(t, store)
}

func TestIsAspectTarget(t *testing.T) {
	e := New(types.NewConfig())
	assert.True(t, e.IsAspectTarget(&userService{store: &userStore{}}))
	assert.False(t, e.IsAspectTarget(&userStore{}))
}
