// Package localserver serves the diagnostics API on a Unix domain socket.
//
// Local administration reaches the server through the socket without TLS
// or rate limiting; access is controlled by the socket file permissions,
// which are restricted to the owner. uacore-cli connects with
// --server unix:///path/to/uacore.sock.
package localserver
