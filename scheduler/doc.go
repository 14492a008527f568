// Package scheduler runs scan tasks on bounded, runtime-resizable worker
// pools and keeps a deduplicating registry of their futures.
//
// A task is identified by its Name. Submitting a task whose name is
// already registered returns the registered future, so at most one
// execution per identity is active. Registry entries that were not
// touched for 1.1 times the runnable timeout are evicted: queued tasks
// never start and their futures fail with ErrEvicted, running tasks are
// asked to suspend with ErrEvicted.
//
// A maintenance loop polls the config.Provider and resizes the pools; a
// sweep loop stops tasks that outlived their owner's scan timeout or the
// runnable timeout.
package scheduler
