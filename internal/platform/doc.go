// Package platform isolates the host-specific primitives the DataBlock
// runtime needs: creating and mapping a named shared-memory segment,
// probing whether a process id is still alive, and reading a monotonic
// clock. The rest of the runtime never branches on GOOS; it only calls
// through this package.
package platform
