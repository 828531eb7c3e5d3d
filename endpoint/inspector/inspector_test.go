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

package inspector

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/api/types/metrics"
	"github.com/aspectgo/aspectgo/engine"
	"github.com/aspectgo/aspectgo/test/assert"
	"github.com/aspectgo/aspectgo/utils/json"
)

type billingService struct {
	charges int
}

func (s *billingService) Charge(account string) (string, error) {
	s.charges++
	return "charged " + account, nil
}

// countingAdvice records how often it ran.
type countingAdvice struct {
	applied int
}

func (a *countingAdvice) Order() int { return 0 }

func (a *countingAdvice) Apply(inv *types.Invocation) error {
	a.applied++
	return inv.Proceed()
}

func newBillingInspector(t *testing.T) (*Inspector, *engine.Proxy) {
	t.Helper()
	e := engine.New(types.NewConfig())
	assert.Nil(t, e.OnMethod(&billingService{}, "Charge", types.Use(&countingAdvice{})))
	proxy, err := e.Wrap(&billingService{})
	assert.Nil(t, err)
	return New(e, Config{Addr: ":0"}, nil), proxy
}

func get(t *testing.T, server *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	assert.Nil(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	assert.Nil(t, err)
	return resp.StatusCode, string(body)
}

func TestProxiesRoute(t *testing.T) {
	inspector, _ := newBillingInspector(t)
	server := httptest.NewServer(inspector.Router())
	defer server.Close()

	status, body := get(t, server, "/api/v1/proxies")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, strings.Contains(body, "billingService"))
	assert.True(t, strings.Contains(body, "Charge"))
}

func TestPointcutsRoute(t *testing.T) {
	inspector, _ := newBillingInspector(t)
	server := httptest.NewServer(inspector.Router())
	defer server.Close()

	status, body := get(t, server, "/api/v1/pointcuts")
	assert.Equal(t, http.StatusOK, status)

	var infos []pointcutInfo
	assert.Nil(t, json.Unmarshal([]byte(body), &infos))
	assert.Equal(t, 1, len(infos))
	assert.Equal(t, "Charge", infos[0].Method)
	assert.True(t, strings.Contains(infos[0].Owner, "billingService"))
}

func TestChainRoute(t *testing.T) {
	inspector, _ := newBillingInspector(t)
	server := httptest.NewServer(inspector.Router())
	defer server.Close()

	status, body := get(t, server, "/api/v1/chains/inspector.billingService/Charge")
	assert.Equal(t, http.StatusOK, status)

	var info chainInfo
	assert.Nil(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "Charge", info.Method)
	assert.Equal(t, 1, len(info.Advices))
	assert.True(t, strings.Contains(info.Advices[0].Type, "countingAdvice"))

	status, _ = get(t, server, "/api/v1/chains/inspector.billingService/Refund")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMetricsRoute(t *testing.T) {
	inspector, _ := newBillingInspector(t)
	inspector.Metrics.IncrementTotal()
	inspector.Metrics.IncrementSuccess()
	inspector.Metrics.IncrementMethod("Charge")
	server := httptest.NewServer(inspector.Router())
	defer server.Close()

	status, body := get(t, server, "/api/v1/metrics")
	assert.Equal(t, http.StatusOK, status)

	var info metricsInfo
	assert.Nil(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, int64(1), info.Total)
	assert.Equal(t, int64(1), info.Success)
	assert.Equal(t, int64(1), info.ByMethod["Charge"])
}

func TestNilMetricsDefaults(t *testing.T) {
	e := engine.New(types.NewConfig())
	inspector := New(e, Config{}, nil)
	assert.NotNil(t, inspector.Metrics)

	m := metrics.NewDispatchMetrics()
	withMetrics := New(e, Config{}, m)
	assert.Equal(t, m, withMetrics.Metrics)
}

func TestDispatchStream(t *testing.T) {
	inspector, proxy := newBillingInspector(t)
	inspector.installTap()
	server := httptest.NewServer(inspector.Router())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/dispatches"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.Nil(t, err)
	defer conn.Close()

	// The subscriber registers asynchronously with the upgrade response.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		inspector.mu.Lock()
		n := len(inspector.conns)
		inspector.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, err = proxy.Call("Charge", "acct-1")
	assert.Nil(t, err)

	assert.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	assert.Nil(t, err)

	var event DispatchEvent
	assert.Nil(t, json.Unmarshal(data, &event))
	assert.Equal(t, "Charge", event.Method)
	assert.True(t, strings.Contains(event.Owner, "billingService"))
}
