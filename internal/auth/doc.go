// Package auth gates access behind the single configured login secret.
//
// Gate compares a submitted password against the configured secret: in
// constant time for a plaintext secret, via bcrypt when a hash is
// configured. A failed attempt is reported as ErrMismatch and never reaches
// the conversation layer.
//
// TokenIssuer mints HS256 JWTs for the JSON API after a successful login;
// the web UI uses a session cookie instead and never sees a token. Handlers
// own enforcement: the conversation controller assumes it is only reached
// from an authenticated session.
package auth
