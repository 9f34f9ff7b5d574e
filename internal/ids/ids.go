// Package ids provides the object-identity primitives shared by every
// tracking component of the profiling engine.
//
// A raw API handle (VkBuffer, VkPipeline, ...) may be reused by the driver
// once the application destroys and recreates an object at the same address.
// Attaching the monotonic counter value observed at creation time turns the
// bare handle into a stable identity that survives reuse within the same
// process lifetime.
package ids

import "sync/atomic"

// Kind distinguishes the namespace a raw handle belongs to. Two different
// kinds never collide even if the driver happens to reuse the same numeric
// value across object types.
type Kind uint8

// Handle kinds tracked by the engine.
const (
	KindUnknown Kind = iota
	KindInstance
	KindDevice
	KindQueue
	KindCommandPool
	KindCommandBuffer
	KindPipeline
	KindRenderPass
	KindShaderModule
	KindBuffer
	KindImage
	KindDeviceMemory
	KindAccelerationStructure
	KindMicromap
	KindQueryPool
)

// Identity disambiguates successive reuses of the same raw handle value.
//
// Raw is the opaque pointer-sized handle as observed by the interception
// layer. Created is the value of the engine's monotonic creation counter at
// the moment the object was registered; zero means "unknown" (the identity
// was resolved without ever observing a register call).
type Identity struct {
	Raw     uint64
	Created uint64
}

// IsZero reports whether the identity refers to no object.
func (id Identity) IsZero() bool {
	return id.Raw == 0
}

// counter is the process-wide monotonic clock used to stamp object
// creation. It is never reset: the engine lives for the lifetime of one
// device, and strictly increasing values are what let Resolve disambiguate
// reused handles without a wall-clock dependency.
var counter atomic.Uint64

// NextCreationTime returns the next value of the monotonic creation
// counter. Safe for concurrent use.
func NextCreationTime() uint64 {
	return counter.Add(1)
}
