package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service. Tokens
// gate the operator/admin surface (queue stats, call summaries); provider
// webhooks are authenticated separately at the edge.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
