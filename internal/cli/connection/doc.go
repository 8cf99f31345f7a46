// Package connection provides the HTTP client uacore-cli uses to reach the
// diagnostics API of uacore-server.
//
// The server is addressed as host:port, an http(s) URL or, for the local
// admin socket, unix:///path/to/uacore.sock. The client adds a request id
// to every call, verifies HTTPS servers against an optional CA file and
// unwraps the server's JSON response envelope: successful calls decode the
// data member, failed ones return an *APIError carrying the server's error
// code and request id.
package connection
