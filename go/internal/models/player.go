package models

// PlayerAccount is a registered player identity.
type PlayerAccount struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

// PlayerProfile is the public view of an account.
type PlayerProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Profile strips credentials from the account.
func (p *PlayerAccount) Profile() PlayerProfile {
	return PlayerProfile{ID: p.ID, Name: p.Name}
}
