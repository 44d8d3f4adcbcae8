// Package concurrency implements the bounded worker pool that executes
// connection work off the reactor thread, and the stackful coroutine used to
// suspend blocking-style request code whenever its socket would block.
package concurrency
