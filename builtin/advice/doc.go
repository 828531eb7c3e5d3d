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

// Package advice provides the built-in advices of the interception runtime.
// Each advice addresses one cross-cutting concern and can be declared on any
// pointcut, alone or combined in bundles.
//
// Package advice 提供拦截运行时的内置增强。每个增强处理一个横切关注点，
// 可以单独或组合成包声明到任意切入点上。
//
// Available Built-in Advices:
// 可用的内置增强：
//
//   - ConcurrencyLimiter: bounds concurrent dispatches of one method
//     ConcurrencyLimiter：限制单个方法的并发分发数量
//
//   - Validator: rejects invocations whose arguments fail an expression predicate
//     Validator：拒绝参数未通过表达式断言的调用
//
//   - Caching: memoizes return values in a shared cache keyed by an expression
//     Caching：按表达式键在共享缓存中记忆返回值
//
//   - Metrics: counts dispatches, successes and failures
//     Metrics：统计分发、成功与失败次数
//
//   - Script: runs a JavaScript body around the invocation
//     Script：围绕调用运行 JavaScript 增强体
//
//   - Audit: publishes dispatch records to MQTT and SQL sinks
//     Audit：将分发记录发布到 MQTT 与 SQL 接收端
//
//   - Logging: logs entry and exit with timing
//     Logging：记录进入与退出及耗时
//
// Advice Execution Order:
// 增强执行顺序：
//
// Chain position follows Order(); lower runs earlier:
// 链位置由 Order() 决定，值越低越早执行：
//  1. ConcurrencyLimiter (order: 10)
//  2. Validator (order: 10)
//  3. Metrics (order: 20)
//  4. Caching (order: 50)
//  5. Audit (order: 800)
//  6. Logging (order: 900)
package advice
