// Package session keeps client-side credentials and transparently renews the
// access token when the server answers 401.
//
// An Agent owns the token pair. Its Transport attaches the access token to
// outgoing requests; when a request comes back 401 every concurrent caller
// joins one shared refresh, then retries its request exactly once.
package session
