package models

// Identity comes from the external identity provider's token.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	SignedIn    bool   `json:"signed_in"`
}
