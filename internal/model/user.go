package model

import "github.com/and161185/allegro-webapi/internal/rpc"

// User is a read-only view of doShowUser.
type User struct {
	ID      int64
	Login   string
	Rating  int64
	Country int64
}

// NewUser maps a doShowUser response.
func NewUser(raw rpc.Result) *User {
	return &User{
		ID:      raw.Int64("userId"),
		Login:   raw.String("userLogin"),
		Rating:  raw.Int64("userRating"),
		Country: raw.Int64("userCountry"),
	}
}
