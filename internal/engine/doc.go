// Package engine provides the worker-pool controller and task-dispatch
// engine. A Controller loads a program, starts a fixed pool of workers on a
// shared queue, feeds the tasks in load order, aggregates results indexed by
// task id and joins every worker before returning a report.
package engine
