// Package hub is the realtime core: a connection registry with
// buffered fan-out, a dead-peer probe, and the message router that
// applies every intent to the state document.
//
// The Hub is transport-shaped and semantics-free; the Router decodes
// envelopes, enforces the hardware-liveness gate and the physical
// interlock, persists durable intents and broadcasts the results. Slow
// consumers never block the hub: frames are dropped per connection when
// a send buffer fills.
package hub
