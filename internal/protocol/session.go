package protocol

// Session is the ephemeral per-connection server-side state: empty until
// LOGIN or REGISTER succeeds. Its lifetime is the lifetime of the TCP
// connection; it is never shared between workers.
type Session struct {
	Username      string
	Authenticated bool
}
