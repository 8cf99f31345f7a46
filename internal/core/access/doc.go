// Package access evaluates node permissions for an authenticated user.
//
// Every node may carry a NodeAccessInfo: an owner id, a group id and one
// capability set per subject (owner, group, other). A session's UserContext
// holds the user id, group memberships, the root id and the fallback
// permissions used for nodes without a descriptor.
//
// Check is the only decision function:
//
//	if !access.Check(session.UserContext(), node.Access(), access.Write) {
//	    return domain.ErrAccessDenied
//	}
//
// Check is pure. It reads only its arguments, and a UserContext is immutable
// after NewUserContext, so it is safe to call from any number of goroutines.
package access
