// Package session holds per-browser-session conversation state.
//
// A Session owns three things: the authentication flag, the remote thread id
// (created lazily, immutable once set), and the ordered message log. The
// Store keeps sessions in memory only; chat history does not
// survive the process or the session, so there is no database behind this
// package. Idle sessions are reclaimed by a background sweep.
//
// All Store methods return copies; callers never share memory with the
// store's internal state.
package session
