// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue provides the unbounded multi-producer, multi-consumer
// FIFO the agent uses for its inbound command queue and its outbound
// log queue.
//
// A FIFO can be closed. Closing is how an agent iteration seals its
// queues when it is cancelled: after Close, Push drops the item and
// reports false, and TryPop reports empty. Nothing pushed by one
// iteration can therefore be observed by anything after that iteration
// has been cancelled.
package queue
