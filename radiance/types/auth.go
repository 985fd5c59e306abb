package types

type LoginRequest struct {
	Username string `json:"username"`
}

type RegisterRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	FullName *string `json:"full_name,omitempty"`
}
