// Package mq implements the bounded multi-tenant queue store.
//
// Every origin owns an ordered queue of short messages. The store accounts
// each queue's footprint in messages, bytes and pages, tells callers how much
// of a batch would fit under a page ceiling, and calls a notify.Notifier after
// every mutation.
//
// # Keyspace
//
//	q/{origin}/m/{seq}          - Live message (payload | crc32c)
//	q/{origin}/meta             - Last assigned sequence
//	p/{origin}/{reason}/{seq}   - Parked message (parked_at_ms | record)
//	origin/{origin}             - Registry record (see package origin)
//
// # Message Lifecycle
//
//  1. Bound: input is checked against MaxMessageLen and becomes a Message
//  2. Enqueue: appended at the tail with the next sequence
//  3. Service: peeked from the head and either
//     - Removed after it was accepted
//     - Parked as corrupt or permanently overweight
//     - Left at the head when the pass ran out of weight
//  4. Sweep: every live message of the origin dropped at once
//
// Notifications run while the store's write lock is held, so they arrive in
// mutation order. A notifier may read the store; calling a mutator with the
// context it was handed returns ErrReentrantMutation.
package mq
