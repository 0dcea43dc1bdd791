// Package assistant wraps the hosted assistant service's thread/run API.
//
// The client exposes the five remote operations the conversation layer needs:
// create a thread, append a message, start a run, poll a run, and fetch the
// newest assistant-authored message. It keeps no state between calls and
// never retries; the conversation controller owns the poll loop and all
// failure policy.
//
// Run statuses reported by the service are normalized to the four states
// the controller understands (queued, in_progress, completed, failed) so
// that remote vocabulary changes stay contained here.
package assistant
