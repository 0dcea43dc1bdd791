// Package conversation is the core turn state machine of assist-gateway.
//
// # Overview
//
// One call to Submit is one turn: Idle -> Submitting -> Running ->
// Completed or Failed, and back to Idle. The service holds a per-session
// turn lock for the whole turn, so exactly one request is ever in flight
// for a session; a second Submit (or a Reset) during that window is
// rejected with ErrBusy rather than queued.
//
// # Record first, then act
//
// The user message is appended to the session log before any remote call.
// A failed turn surfaces an error but never rolls the user's message back,
// and never appends an assistant message. A completed turn appends exactly
// one assistant message, even when the reply text is empty.
//
// # The poll loop
//
// After starting a run the service polls its status at a fixed interval
// until the run completes or fails. The wait is capped: when the cap
// expires the turn ends with ErrRunTimeout, which is deliberately distinct
// from ErrRunFailed. Status is always pulled from the remote side; nothing
// is pushed or streamed.
//
// # Boundaries
//
// Authentication is the HTTP layer's job; this package assumes the session
// it is handed has already passed the gate. Remote-call failures arrive
// wrapped, carrying the assistant package's sentinel errors, so handlers
// can branch with errors.Is.
package conversation
