// Package task schedules asynchronous operations in-process.
//
// Operations are admitted to a TaskManager, ordered by priority and
// dependency edges, and run with bounded concurrency on a worker pool.
// Callers receive a Task handle that can be cancelled and that delivers
// a single terminal Outcome to every registered completion callback,
// regardless of how many times the underlying work was retried.
package task
