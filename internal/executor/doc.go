// Package executor defines the boundary between the pipeline scheduler and
// the inference runtime: engines that load a model onto a device, reusable
// request slots with named input/output blobs, and a registry resolving
// device names to engine factories.
package executor
