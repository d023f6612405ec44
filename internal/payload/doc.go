// Package payload defines the capability interface that every unit of work
// executed by a worker implements, the registry that turns program records
// into payloads, and the stub computational payloads shipped with compute.
package payload
