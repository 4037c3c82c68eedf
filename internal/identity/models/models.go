package models

import (
	"strings"
	"time"

	id "deploygate/pkg/domain"
	"deploygate/pkg/platform/validation"
)

// User is a registered account. Password holds the bcrypt hash, never the
// cleartext.
type User struct {
	ID          id.UserID
	UserName    string
	Name        string
	Password    string
	Authorities []string
	CreatedAt   time.Time
}

// Principal projects the user into the identity carried by a request.
func (u *User) Principal() id.Principal {
	return id.NewPrincipal(u.UserName, u.Authorities...)
}

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

// RegisterRequest is the body of POST /api/v1/authorize. UserName becomes the
// owner label on every Deployment the user creates, so it must be a valid
// label value.
type RegisterRequest struct {
	Name     string `json:"name"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.UserName = strings.TrimSpace(r.UserName)
}

func (r *RegisterRequest) Validate() error {
	return validation.First(
		validation.Required("userName", r.UserName),
		validation.LabelValue("userName", r.UserName),
		validation.Required("password", r.Password),
		validation.MaxBytes("password", r.Password, MaxPasswordBytes),
	)
}

// TokenRequest is the body of POST /api/v1/token.
type TokenRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

func (r *TokenRequest) Normalize() {
	r.UserName = strings.TrimSpace(r.UserName)
}

func (r *TokenRequest) Validate() error {
	return validation.First(
		validation.Required("userName", r.UserName),
		validation.Required("password", r.Password),
	)
}

type UserResponse struct {
	UserName string `json:"userName"`
	Name     string `json:"name"`
}

func NewUserResponse(u *User) UserResponse {
	return UserResponse{UserName: u.UserName, Name: u.Name}
}

type TokenResponse struct {
	Token string `json:"token"`
}
