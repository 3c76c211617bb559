// Package logic implements the asynchronous action-processing pipeline:
// business-logic units intercept actions bound for an action-dispatching
// store, validate or transform them, then process them asynchronously
// under debounce/throttle/take-latest admission control with cooperative
// cancellation.
//
// # Architecture
//
//	inbound action
//	      │
//	      ▼
//	┌───────────────────────────────────────────────┐
//	│                  Pipeline                      │
//	│  intake loop (FIFO admission)                  │
//	│      │                                         │
//	│      ▼                                         │
//	│  Registry ── matching units, registration order│
//	│      │                                         │
//	│      ▼                                         │
//	│  gate ── debounce / throttle admission         │
//	│      │                                         │
//	│      ▼                                         │
//	│  execution ── validate ─► allow / reject       │
//	│      │            │                            │
//	│      │            ▼                            │
//	│      │        process ─► dispatch adapter      │
//	│      ▼                                         │
//	│  sink (store)          monitor stream          │
//	└───────────────────────────────────────────────┘
//
// # Forward vs redispatch
//
// When a validate stage allows or rejects with an action whose type
// discriminant equals the inbound action's, the action is forwarded
// directly to the next unit in the chain (and ultimately the sink). A
// differing discriminant redispatches the action from the top of the
// pipeline so every unit and the host middleware observe it first.
// ForceForward and ForceDispatch override the rule per call.
//
// # Concurrency model
//
// A single intake loop serializes admission order and stamps each task
// with a dispatch sequence. Chain walks run on their own goroutines and
// may reach a unit out of order; limiter windows, take-latest
// supersession, and cancel matches are resolved against the sequence,
// so cross-action decisions always reflect dispatch order. Within one
// inbound action, matching units run their validate stages in
// registration order, while process-stage work from different units or
// later actions interleaves arbitrarily.
// Cancellation is cooperative: it fires the context's signal and
// unsubscribes owned channel sources but cannot halt code already
// executing between suspension points.
//
// # Lifecycle observation
//
// Every transition emits a monitor event (top, begin, next, nextDisp,
// filtered, cancelled, dispatch, dispCancelled, end, bottom, anomaly).
// Protocol violations - a second allow/reject, a dispatch after
// completion - freeze the offending context and surface as anomaly
// events; the pipeline keeps running.
package logic
