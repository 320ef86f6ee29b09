package model

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthUser is the sanitized shape returned to API clients. The password
// hash never leaves the service layer.
type AuthUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type TokenPayload struct {
	Subject int64  `json:"sub"`
	Email   string `json:"email"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RegisterResult struct {
	User   AuthUser  `json:"user"`
	Tokens TokenPair `json:"tokens"`
}
