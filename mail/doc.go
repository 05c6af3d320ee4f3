// Package mail delivers transactional email without blocking request handling.
//
// [Dispatcher] owns a bounded queue drained by a single worker that hands each
// [Message] to a [Sender]. A full queue rejects with [ErrQueueFull] (or drops, when
// configured), so the caller never waits on SMTP. Delivery failures are reported to
// the configured result hook and counted; they are never returned to the enqueuer.
package mail
