package domain

// IdentityKind names the type of user identity token presented at activation.
type IdentityKind uint8

const (
	IdentityAnonymous IdentityKind = iota
	IdentityUserName
	IdentityX509
	IdentityIssued
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityAnonymous:
		return "anonymous"
	case IdentityUserName:
		return "username"
	case IdentityX509:
		return "x509"
	case IdentityIssued:
		return "issued"
	}
	return "unknown"
}

// IdentityToken is the credential a client presents in ActivateSession.
type IdentityToken interface {
	Kind() IdentityKind
	// PolicyID names the endpoint user token policy the client selected.
	PolicyID() string
}

// AnonymousIdentity carries no credentials.
type AnonymousIdentity struct {
	Policy string
}

func (t *AnonymousIdentity) Kind() IdentityKind { return IdentityAnonymous }
func (t *AnonymousIdentity) PolicyID() string   { return t.Policy }

// UserNameIdentity is a user name and password. The password arrives already
// decrypted by the secure channel layer.
type UserNameIdentity struct {
	Policy   string
	UserName string
	Password []byte
}

func (t *UserNameIdentity) Kind() IdentityKind { return IdentityUserName }
func (t *UserNameIdentity) PolicyID() string   { return t.Policy }

// X509Identity is a DER-encoded user certificate. Proof of possession of the
// private key is checked by the transport before activation reaches the core.
type X509Identity struct {
	Policy      string
	Certificate []byte
}

func (t *X509Identity) Kind() IdentityKind { return IdentityX509 }
func (t *X509Identity) PolicyID() string   { return t.Policy }

// IssuedIdentity is a token issued by an external authority, such as a JWT.
type IssuedIdentity struct {
	Policy    string
	TokenData []byte
}

func (t *IssuedIdentity) Kind() IdentityKind { return IdentityIssued }
func (t *IssuedIdentity) PolicyID() string   { return t.Policy }
