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

// Package inspector exposes the engine's operational surfaces over HTTP:
// synthesized proxy types, registered pointcuts, resolved advice chains and
// dispatch metrics, plus a websocket stream of live dispatch events.
//
// inspector 包通过 HTTP 暴露引擎的运维界面：已合成的代理类型、已注册的切入点、
// 已解析的增强链与分发指标，以及实时分发事件的 websocket 流。
package inspector

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/api/types/metrics"
	"github.com/aspectgo/aspectgo/engine"
	"github.com/aspectgo/aspectgo/utils/json"
	"github.com/aspectgo/aspectgo/utils/runtime"
)

const (
	contentTypeKey  = "Content-Type"
	jsonContentType = "application/json"
)

// Config holds the inspector's listen settings.
type Config struct {
	Addr        string
	CertFile    string
	CertKeyFile string
}

// Inspector serves the read-only operational API for one engine. Start wires
// the dispatch stream into the engine's OnDispatch callback, composing with a
// callback that is already installed.
//
// Inspector 为一个引擎提供只读的运维 API。Start 会把分发事件流接入引擎的
// OnDispatch 回调，并与已安装的回调串联。
type Inspector struct {
	Config  Config
	Logger  types.Logger
	Metrics *metrics.DispatchMetrics

	engine   *engine.Engine
	router   *httprouter.Router
	server   *http.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
}

// New creates an inspector over the engine. The metrics argument may be nil
// when no metrics advice is installed; the /metrics route then reports zeros.
func New(e *engine.Engine, config Config, m *metrics.DispatchMetrics) *Inspector {
	if m == nil {
		m = metrics.NewDispatchMetrics()
	}
	return &Inspector{
		Config:  config,
		Logger:  types.DefaultLogger(),
		Metrics: m,
		engine:  e,
		conns:   make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Router builds and returns the route table. It is exposed so the inspector
// can be mounted into an existing server instead of owning one.
func (i *Inspector) Router() *httprouter.Router {
	if i.router != nil {
		return i.router
	}
	router := httprouter.New()
	router.GET("/api/v1/proxies", i.handleProxies)
	router.GET("/api/v1/pointcuts", i.handlePointcuts)
	router.GET("/api/v1/chains/:owner/:method", i.handleChain)
	router.GET("/api/v1/metrics", i.handleMetrics)
	router.GET("/ws/dispatches", i.handleDispatchStream)
	i.router = router
	return i.router
}

// Start installs the dispatch tap and serves the API until Stop.
func (i *Inspector) Start() error {
	i.installTap()
	i.server = &http.Server{Addr: i.Config.Addr, Handler: i.Router()}
	if i.Config.CertKeyFile != "" && i.Config.CertFile != "" {
		i.Logger.Printf("started inspector with TLS on %s", i.Config.Addr)
		return i.server.ListenAndServeTLS(i.Config.CertFile, i.Config.CertKeyFile)
	}
	i.Logger.Printf("started inspector on %s", i.Config.Addr)
	return i.server.ListenAndServe()
}

// Stop shuts the server down and closes every stream subscriber.
func (i *Inspector) Stop() error {
	i.mu.Lock()
	for conn := range i.conns {
		_ = conn.Close()
	}
	i.conns = make(map[*websocket.Conn]*sync.Mutex)
	i.mu.Unlock()
	if i.server != nil {
		return i.server.Shutdown(context.Background())
	}
	return nil
}

// installTap chains the event fan-out behind any OnDispatch callback the
// application installed before the inspector started.
func (i *Inspector) installTap() {
	config := i.engine.Config()
	prev := config.OnDispatch
	config.OnDispatch = func(phase types.DispatchPhase, inv *types.Invocation, err error) {
		if prev != nil {
			prev(phase, inv, err)
		}
		i.publish(phase, inv, err)
	}
}

// DispatchEvent is one dispatch boundary crossing as sent to stream
// subscribers.
type DispatchEvent struct {
	Phase        string `json:"phase"`
	InvocationID string `json:"invocationId,omitempty"`
	Owner        string `json:"owner"`
	Method       string `json:"method"`
	Error        string `json:"error,omitempty"`
	Timestamp    string `json:"timestamp"`
}

func (i *Inspector) publish(phase types.DispatchPhase, inv *types.Invocation, err error) {
	i.mu.Lock()
	if len(i.conns) == 0 {
		i.mu.Unlock()
		return
	}
	subscribers := make(map[*websocket.Conn]*sync.Mutex, len(i.conns))
	for conn, locker := range i.conns {
		subscribers[conn] = locker
	}
	i.mu.Unlock()

	event := DispatchEvent{
		Phase:     string(phase),
		Owner:     inv.Method().Owner().String(),
		Method:    inv.Method().Name(),
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}
	if v, ok := inv.GetValue(types.KeyInvocationID); ok {
		if id, ok := v.(string); ok {
			event.InvocationID = id
		}
	}
	if err != nil {
		event.Error = err.Error()
	}
	data, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		return
	}
	for conn, locker := range subscribers {
		locker.Lock()
		writeErr := conn.WriteMessage(websocket.TextMessage, data)
		locker.Unlock()
		if writeErr != nil {
			i.drop(conn)
		}
	}
}

func (i *Inspector) drop(conn *websocket.Conn) {
	i.mu.Lock()
	delete(i.conns, conn)
	i.mu.Unlock()
	_ = conn.Close()
}

// proxyInfo describes one synthesized proxy type.
type proxyInfo struct {
	Name    string   `json:"name"`
	Target  string   `json:"target"`
	Methods []string `json:"methods"`
}

func (i *Inspector) handleProxies(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	defer i.recoverHandler()
	proxyTypes := i.engine.ProxyTypes()
	infos := make([]proxyInfo, 0, len(proxyTypes))
	for _, pt := range proxyTypes {
		infos = append(infos, proxyInfo{
			Name:    pt.Name(),
			Target:  pt.TargetType().String(),
			Methods: pt.MethodNames(),
		})
	}
	i.writeJSON(w, http.StatusOK, infos)
}

// pointcutInfo describes one registered pointcut key.
type pointcutInfo struct {
	Owner  string `json:"owner"`
	Method string `json:"method"`
}

func (i *Inspector) handlePointcuts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	defer i.recoverHandler()
	keys := i.engine.Pointcuts().Keys()
	infos := make([]pointcutInfo, 0, len(keys))
	for _, key := range keys {
		owner := ""
		if key.Owner != nil {
			owner = key.Owner.String()
		}
		infos = append(infos, pointcutInfo{Owner: owner, Method: key.Name})
	}
	i.writeJSON(w, http.StatusOK, infos)
}

// chainInfo describes the resolved advice chain of one method.
type chainInfo struct {
	Owner   string       `json:"owner"`
	Method  string       `json:"method"`
	Advices []adviceInfo `json:"advices"`
}

type adviceInfo struct {
	Type  string `json:"type"`
	Order int    `json:"order"`
}

func (i *Inspector) handleChain(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	defer i.recoverHandler()
	owner := params.ByName("owner")
	method := params.ByName("method")
	key, ok := i.lookupKey(owner, method)
	if !ok {
		i.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pointcut for " + owner + "." + method})
		return
	}
	advices, err := i.engine.Dispatcher().ChainAdvices(key)
	if err != nil {
		i.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	info := chainInfo{Owner: owner, Method: method, Advices: make([]adviceInfo, 0, len(advices))}
	for _, advice := range advices {
		info.Advices = append(info.Advices, adviceInfo{
			Type:  typeName(advice),
			Order: advice.Order(),
		})
	}
	i.writeJSON(w, http.StatusOK, info)
}

// lookupKey maps the path form of an owner type back to its registered key.
// The owner segment matches the type's String() with the leading "*" optional,
// so /chains/main.UserService/Get and /chains/*main.UserService/Get both work.
func (i *Inspector) lookupKey(owner, method string) (types.MethodKey, bool) {
	for _, key := range i.engine.Pointcuts().Keys() {
		if key.Name != method || key.Owner == nil {
			continue
		}
		name := key.Owner.String()
		if name == owner || name == "*"+owner {
			return key, true
		}
	}
	return types.MethodKey{}, false
}

// metricsInfo is the /metrics response shape.
type metricsInfo struct {
	Current  int64            `json:"current"`
	Total    int64            `json:"total"`
	Failed   int64            `json:"failed"`
	Success  int64            `json:"success"`
	ByMethod map[string]int64 `json:"byMethod"`
}

func (i *Inspector) handleMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	defer i.recoverHandler()
	snapshot := i.Metrics.Get()
	i.writeJSON(w, http.StatusOK, metricsInfo{
		Current:  snapshot.Current,
		Total:    snapshot.Total,
		Failed:   snapshot.Failed,
		Success:  snapshot.Success,
		ByMethod: i.Metrics.MethodTotals(),
	})
}

func (i *Inspector) handleDispatchStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.Logger.Printf("inspector upgrade: %s", err.Error())
		return
	}
	i.mu.Lock()
	i.conns[conn] = &sync.Mutex{}
	i.mu.Unlock()
	go i.readLoop(conn)
}

// readLoop drains inbound frames so pings and close frames are processed; the
// stream itself is one-way.
func (i *Inspector) readLoop(conn *websocket.Conn) {
	defer i.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (i *Inspector) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set(contentTypeKey, jsonContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (i *Inspector) recoverHandler() {
	if e := recover(); e != nil {
		i.Logger.Printf("inspector handler err :%v \n%s", e, runtime.Stack())
	}
}

func typeName(v interface{}) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	return t.String()
}
