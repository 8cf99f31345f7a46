// Package addrspace manages the server's address space: the nodes indexed by
// NodeID, their parent/child links and the access descriptor attached to
// each node.
//
// Manager owns the only lock around the node index. Every compound change
// (insert a node and link it to its parent, unlink and remove a subtree) is
// done under one acquisition. Reads, writes and browses consult
// access.Check for the calling user before touching a node.
package addrspace
