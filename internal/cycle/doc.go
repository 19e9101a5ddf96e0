// Package cycle runs the acquire, publish, persist loop.
//
// One cycle:
//
//  1. Acquire a temperature. This never fails; the source substitutes a
//     synthetic value when the provider is unavailable.
//  2. Build a Reading stamped with the current second.
//  3. Publish it, retrying with backoff. Before each attempt the transport
//     is reconnected if it is not Connected; a reconnect that exhausts its
//     own policy counts as one failed publish attempt.
//  4. Write it to the store exactly once, whatever the publish outcome.
//
// No stage failure stops the controller. Outcomes are logged, counted in
// metrics, and returned from RunOnce as a Report.
//
// Cancellation is observed between cycles and during any backoff or
// interval wait. A stage already in flight completes under its own timeout.
package cycle
