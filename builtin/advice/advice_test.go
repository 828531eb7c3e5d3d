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
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/api/types/metrics"
	"github.com/aspectgo/aspectgo/test/assert"
	"github.com/aspectgo/aspectgo/utils/cache"
)

type accountService struct {
	mu    sync.Mutex
	loads int
	gate  chan struct{}
}

func (s *accountService) Load(id string) (string, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	if id == "" {
		return "", errors.New("missing id")
	}
	return "account " + id, nil
}

func newLoadInvocation(target *accountService, args ...interface{}) *types.Invocation {
	targetType := reflect.TypeOf(target)
	m, _ := targetType.MethodByName("Load")
	executor := reflect.ValueOf(target).Method(m.Index)
	method := types.NewMethod(targetType, "Load", executor.Type(), m.Index)
	return types.NewInvocation(target, method, executor, args)
}

func TestConcurrencyLimiterAdmitsUpToMax(t *testing.T) {
	limiter := NewConcurrencyLimiter(2)
	target := &accountService{gate: make(chan struct{})}

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- limiter.Apply(newLoadInvocation(target, "a"))
		}()
	}

	// Wait until the two admitted invocations block inside the body; the
	// third must be rejected without queueing.
	deadline := time.Now().Add(5 * time.Second)
	for limiter.Current() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, int64(2), limiter.Current())

	var rejected error
	select {
	case rejected = <-results:
	case <-time.After(5 * time.Second):
		assert.Fail(t, "no rejection observed")
	}
	assert.True(t, errors.Is(rejected, types.ErrConcurrencyLimitReached))

	close(target.gate)
	wg.Wait()
	assert.Equal(t, int64(0), limiter.Current())
	assert.Equal(t, 2, target.loads)
}

func TestValidatorAcceptAndReject(t *testing.T) {
	v, err := NewValidator(`${args[0] != ""}`, "id required")
	assert.Nil(t, err)

	target := &accountService{}
	inv := newLoadInvocation(target, "a1")
	err = v.Apply(inv)
	assert.Nil(t, err)
	assert.Equal(t, "account a1", inv.ReturnValue())

	inv = newLoadInvocation(target, "")
	err = v.Apply(inv)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "id required"))
	// The rejection happens before the body.
	assert.Equal(t, 1, target.loads)
}

func TestValidatorRequiresExpression(t *testing.T) {
	_, err := NewValidator("", "")
	assert.NotNil(t, err)

	_, err = NewValidator("plain text", "")
	assert.NotNil(t, err)
}

func TestValidatorInitFromMap(t *testing.T) {
	v := &Validator{}
	err := v.Init(map[string]interface{}{
		"check":   `${len(args) > 0}`,
		"message": "need args",
	})
	assert.Nil(t, err)
	assert.Equal(t, "need args", v.Message)

	inv := newLoadInvocation(&accountService{}, "a1")
	assert.Nil(t, v.Apply(inv))
}

func TestCachingShortCircuitsOnHit(t *testing.T) {
	store := cache.NewMemoryCache("@every 10m")
	a, err := NewCaching(store, "acct/${args[0]}", "10m")
	assert.Nil(t, err)

	target := &accountService{}
	inv := newLoadInvocation(target, "a1")
	assert.Nil(t, a.Apply(inv))
	assert.Equal(t, "account a1", inv.ReturnValue())
	assert.Equal(t, 1, target.loads)

	inv = newLoadInvocation(target, "a1")
	assert.Nil(t, a.Apply(inv))
	assert.Equal(t, "account a1", inv.ReturnValue())
	// Served from the store, the body did not run again.
	assert.Equal(t, 1, target.loads)

	inv = newLoadInvocation(target, "a2")
	assert.Nil(t, a.Apply(inv))
	assert.Equal(t, "account a2", inv.ReturnValue())
	assert.Equal(t, 2, target.loads)
}

func TestCachingFailuresNotCached(t *testing.T) {
	store := cache.NewMemoryCache("@every 10m")
	a, err := NewCaching(store, "acct/${args[0]}", "")
	assert.Nil(t, err)

	target := &accountService{}
	inv := newLoadInvocation(target, "")
	err = a.Apply(inv)
	assert.NotNil(t, err)
	assert.False(t, store.Has("acct/"))
}

func TestCachingNamespaceIsolation(t *testing.T) {
	store := cache.NewMemoryCache("@every 10m")
	a := &Caching{}
	err := a.Init(map[string]interface{}{
		"key":       "acct/${args[0]}",
		"namespace": "tenant1",
	})
	assert.Nil(t, err)
	// Init binds to the default store; rebind onto the test's own.
	a.store = cache.NewNamespaceCache(store, "tenant1:")

	inv := newLoadInvocation(&accountService{}, "a1")
	assert.Nil(t, a.Apply(inv))
	assert.True(t, store.Has("tenant1:acct/a1"))
}

func TestMetricsCounts(t *testing.T) {
	m := metrics.NewDispatchMetrics()
	a := NewMetrics(m)

	target := &accountService{}
	assert.Nil(t, a.Apply(newLoadInvocation(target, "a1")))
	err := a.Apply(newLoadInvocation(target, ""))
	assert.NotNil(t, err)

	snapshot := m.Get()
	assert.Equal(t, int64(2), snapshot.Total)
	assert.Equal(t, int64(1), snapshot.Success)
	assert.Equal(t, int64(1), snapshot.Failed)
	assert.Equal(t, int64(0), snapshot.Current)
	totals := m.MethodTotals()
	assert.Equal(t, int64(2), totals["*advice.accountService.Load"])
}

func TestLoggingRecordsElapsed(t *testing.T) {
	logger := &memoryLogger{}
	a := NewLogging(logger)

	inv := newLoadInvocation(&accountService{}, "a1")
	assert.Nil(t, a.Apply(inv))
	_, ok := inv.GetValue(KeyElapsed)
	assert.True(t, ok)
	assert.Equal(t, 2, len(logger.lines))
	assert.True(t, strings.Contains(logger.lines[0], "Load"))
}

func TestScriptRejects(t *testing.T) {
	script := `
		function Advice(inv) {
			return inv.args[0] !== "";
		}
	`
	a, err := NewScript(types.NewConfig(), script, "")
	assert.Nil(t, err)

	target := &accountService{}
	inv := newLoadInvocation(target, "a1")
	assert.Nil(t, a.Apply(inv))
	assert.Equal(t, "account a1", inv.ReturnValue())

	inv = newLoadInvocation(target, "")
	err = a.Apply(inv)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "rejected"))
	assert.Equal(t, 1, target.loads)
}

func TestScriptReplacesArguments(t *testing.T) {
	script := `
		function Rewrite(inv) {
			return [inv.args[0].toUpperCase()];
		}
	`
	a, err := NewScript(types.NewConfig(), script, "Rewrite")
	assert.Nil(t, err)

	inv := newLoadInvocation(&accountService{}, "a1")
	assert.Nil(t, a.Apply(inv))
	assert.Equal(t, "account A1", inv.ReturnValue())
}

func TestAuditDeliversRecords(t *testing.T) {
	sink := &memorySink{records: make(chan AuditRecord, 1)}
	a := NewAudit(nil, sink)

	inv := newLoadInvocation(&accountService{}, "a1")
	inv.PutValue(types.KeyInvocationID, "inv-1")
	assert.Nil(t, a.Apply(inv))

	var record AuditRecord
	select {
	case record = <-sink.records:
	case <-time.After(5 * time.Second):
		assert.Fail(t, "no audit record delivered")
	}
	assert.Equal(t, "inv-1", record.InvocationID)
	assert.Equal(t, "Load", record.Method)
	assert.Equal(t, "", record.Error)
	assert.True(t, strings.Contains(record.Result, "account a1"))

	assert.Nil(t, a.Close())
	assert.True(t, sink.closed)
}

func TestAuditRecordsFailure(t *testing.T) {
	sink := &memorySink{records: make(chan AuditRecord, 1)}
	a := NewAudit(nil, sink)

	inv := newLoadInvocation(&accountService{}, "")
	err := a.Apply(inv)
	assert.NotNil(t, err)

	select {
	case record := <-sink.records:
		assert.Equal(t, "missing id", record.Error)
	case <-time.After(5 * time.Second):
		assert.Fail(t, "no audit record delivered")
	}
}

func TestAuditSinkFailureDoesNotSurface(t *testing.T) {
	logger := &memoryLogger{}
	sink := &memorySink{fail: true, records: make(chan AuditRecord, 1)}
	a := NewAudit(logger, sink)

	inv := newLoadInvocation(&accountService{}, "a1")
	assert.Nil(t, a.Apply(inv))

	deadline := time.Now().Add(5 * time.Second)
	for logger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, logger.count() > 0)
}

func TestOrderConvention(t *testing.T) {
	limiter := NewConcurrencyLimiter(1)
	validator, _ := NewValidator("${true}", "")
	m := NewMetrics(nil)
	caching, _ := NewCaching(cache.NewMemoryCache("@every 10m"), "k/${args[0]}", "")
	audit := NewAudit(nil)
	logging := NewLogging(nil)

	assert.Equal(t, 10, limiter.Order())
	assert.Equal(t, 10, validator.Order())
	assert.Equal(t, 20, m.Order())
	assert.Equal(t, 50, caching.Order())
	assert.Equal(t, 800, audit.Order())
	assert.Equal(t, 900, logging.Order())
}

// memorySink collects audit records in a channel.
type memorySink struct {
	records chan AuditRecord
	fail    bool
	closed  bool
}

func (s *memorySink) Send(record AuditRecord) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.records <- record
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

// memoryLogger collects log lines.
type memoryLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memoryLogger) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *memoryLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}
