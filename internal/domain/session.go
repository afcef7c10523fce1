package domain

// Credentials holds the token pair for an authenticated session.
// An empty AccessToken means no session is considered valid for
// request signing; an empty RefreshToken means renewal is impossible.
type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// Empty reports whether both tokens are absent (logged-out state).
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// CanRefresh reports whether a renewal attempt is possible.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}
