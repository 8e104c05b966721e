package domain

// Principal is the authenticated caller. Session issuance is someone
// else's problem; every operation that touches a cart or an order takes
// the principal explicitly instead of reading ambient session state.
type Principal struct {
	UserID string
	Admin  bool
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}
