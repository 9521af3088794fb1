package credential

// Identity is the authenticated user as reported by the server. It is cached
// next to the credential it was fetched with and never persisted on its own.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// DisplayName returns the user's name, falling back to the email address.
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}

	return i.Email
}
