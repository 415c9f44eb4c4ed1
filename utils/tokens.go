package utils

// AccessToken is the JWT claims shape carried by authenticated requests.
type AccessToken struct {
	ID   uint   `json:"ID"`
	Role string `json:"role"`
}
