package transfer

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims identifies the operator behind an API call.
type OperatorClaims struct {
	Subject string `json:"sub_name"`
	jwt.RegisteredClaims
}
