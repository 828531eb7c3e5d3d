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
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aspectgo/aspectgo/api/types"
	"github.com/aspectgo/aspectgo/utils/json"
	"github.com/aspectgo/aspectgo/utils/mqtt"
	"github.com/aspectgo/aspectgo/utils/str"
)

// AuditRecord is one dispatched invocation as seen by the audit sinks.
type AuditRecord struct {
	InvocationID string `json:"invocationId"`
	Owner        string `json:"owner"`
	Method       string `json:"method"`
	Args         string `json:"args"`
	Result       string `json:"result"`
	Error        string `json:"error,omitempty"`
	ElapsedMs    int64  `json:"elapsedMs"`
	Timestamp    string `json:"timestamp"`
}

// AuditSink delivers audit records to an external system.
type AuditSink interface {
	Send(record AuditRecord) error
	Close() error
}

// Audit publishes one record per invocation after the continuation returns.
// Delivery runs off the dispatch goroutine; sink failures are logged, never
// surfaced to the caller.
//
// Audit 在续延返回后为每次调用发布一条记录。
// 投递在分发 goroutine 之外进行；接收端故障只记录日志，不会影响调用方。
type Audit struct {
	// Logger receives sink failure reports.
	Logger types.Logger

	sinks []AuditSink
}

var _ types.Advice = (*Audit)(nil)

// NewAudit creates an audit advice over the given sinks.
func NewAudit(logger types.Logger, sinks ...AuditSink) *Audit {
	if logger == nil {
		logger = types.DefaultLogger()
	}
	return &Audit{Logger: logger, sinks: sinks}
}

// Order returns 800; auditing observes everything below it.
func (a *Audit) Order() int {
	return 800
}

// Apply runs the continuation and ships the record.
func (a *Audit) Apply(inv *types.Invocation) error {
	start := time.Now()
	err := inv.Proceed()
	record := a.buildRecord(inv, err, time.Since(start))
	go a.deliver(record)
	return err
}

// Close closes every sink.
func (a *Audit) Close() error {
	var firstErr error
	for _, sink := range a.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Audit) buildRecord(inv *types.Invocation, err error, elapsed time.Duration) AuditRecord {
	id := ""
	if v, ok := inv.GetValue(types.KeyInvocationID); ok {
		id = str.ToString(v)
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return AuditRecord{
		InvocationID: id,
		Owner:        inv.Method().Owner().String(),
		Method:       inv.Method().Name(),
		Args:         str.ToString(inv.Arguments()),
		Result:       str.ToString(inv.ReturnValue()),
		Error:        errMsg,
		ElapsedMs:    elapsed.Milliseconds(),
		Timestamp:    time.Now().Format(time.RFC3339Nano),
	}
}

func (a *Audit) deliver(record AuditRecord) {
	for _, sink := range a.sinks {
		if err := sink.Send(record); err != nil {
			a.Logger.Printf("audit sink %T error: %s", sink, err.Error())
		}
	}
}

// MqttSink publishes audit records as JSON to one topic.
type MqttSink struct {
	Topic string
	Qos   byte

	client *mqtt.Client
}

// NewMqttSink connects to the broker and returns a sink publishing to topic.
func NewMqttSink(ctx context.Context, conf mqtt.Config, topic string) (*MqttSink, error) {
	client, err := mqtt.NewClient(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &MqttSink{Topic: topic, Qos: conf.QOS, client: client}, nil
}

func (s *MqttSink) Send(record AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Publish(s.Topic, s.Qos, data)
}

func (s *MqttSink) Close() error {
	return s.client.Close()
}

// DbSink inserts audit records into one table through database/sql. The
// mysql and postgres drivers are linked in; other drivers work when the
// caller links them.
type DbSink struct {
	db     *sql.DB
	insert string
}

// NewDbSink opens the database and prepares the insert statement for the
// given table. driverName is "mysql" or "postgres".
func NewDbSink(driverName, dsn, table string) (*DbSink, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &DbSink{db: db, insert: buildInsert(driverName, table)}, nil
}

func (s *DbSink) Send(record AuditRecord) error {
	_, err := s.db.Exec(s.insert,
		record.InvocationID,
		record.Owner,
		record.Method,
		record.Args,
		record.Result,
		record.Error,
		record.ElapsedMs,
		record.Timestamp,
	)
	return err
}

func (s *DbSink) Close() error {
	return s.db.Close()
}

// buildInsert renders the insert statement in the driver's placeholder style.
func buildInsert(driverName, table string) string {
	columns := []string{"invocation_id", "owner", "method", "args", "result", "error", "elapsed_ms", "created_at"}
	placeholders := make([]string, len(columns))
	for i := range columns {
		if driverName == "postgres" {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ","), strings.Join(placeholders, ","))
}
