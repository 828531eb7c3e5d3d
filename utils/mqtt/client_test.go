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

package mqtt

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/aspectgo/aspectgo/test/assert"
)

func TestNewTLSConfig(t *testing.T) {
	// 无证书配置
	tlsConfig, err := newTLSConfig("", "", "")
	assert.Nil(t, err)
	assert.Nil(t, tlsConfig)

	// CA文件不存在
	_, err = newTLSConfig("non-existent-ca.pem", "", "")
	assert.NotNil(t, err)

	// 证书文件不存在
	_, err = newTLSConfig("", "non-existent-cert.pem", "non-existent-key.pem")
	assert.NotNil(t, err)
}

func TestNewClientCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(ctx, Config{
		Server:   "tcp://127.0.0.1:1",
		ClientID: "test-cancelled",
	})
	assert.NotNil(t, err)
}

func TestUnregisterHandlerUnknownTopic(t *testing.T) {
	client := &Client{msgHandlerMap: make(map[string]Handler)}
	assert.Nil(t, client.UnregisterHandler("audit/unknown"))
}

func TestHandlerMapConcurrentAccess(t *testing.T) {
	client := &Client{msgHandlerMap: make(map[string]Handler)}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			topic := fmt.Sprintf("audit/%d", id)
			_ = client.UnregisterHandler(topic)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, len(client.msgHandlerMap))
}

// 以下测试需要本地MQTT Broker

func TestRealPublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real MQTT test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	publisher, err := NewClient(ctx, Config{
		Server:   "tcp://127.0.0.1:1883",
		ClientID: "test-publisher",
	})
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
		return
	}
	defer publisher.Close()

	subscriber, err := NewClient(ctx, Config{
		Server:   "tcp://127.0.0.1:1883",
		ClientID: "test-subscriber",
	})
	assert.Nil(t, err)
	defer subscriber.Close()

	received := make(chan string, 1)
	subscriber.RegisterHandler(Handler{
		Topic: "audit/invocations",
		Qos:   1,
		Handle: func(c paho.Client, data paho.Message) {
			received <- string(data.Payload())
		},
	})
	time.Sleep(time.Second)

	assert.Nil(t, publisher.Publish("audit/invocations", 1, []byte(`{"invocationId":"inv-1"}`)))

	select {
	case msg := <-received:
		assert.Equal(t, `{"invocationId":"inv-1"}`, msg)
	case <-time.After(5 * time.Second):
		assert.Fail(t, "message not received")
	}
}
