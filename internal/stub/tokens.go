package stub

import (
	"errors"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager handles issuing and validating the stub's JWT pairs.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Claims describes the JWT payload.
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// IssuePair signs an access and a refresh token for the user.
func (tm *TokenManager) IssuePair(userID int64) (access, refresh string, err error) {
	access, err = tm.sign(userID, "access", tm.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = tm.sign(userID, "refresh", tm.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// IssueAccess signs a fresh access token only.
func (tm *TokenManager) IssueAccess(userID int64) (string, error) {
	return tm.sign(userID, "access", tm.accessTTL)
}

func (tm *TokenManager) sign(userID int64, tokenType string, ttl time.Duration) (string, error) {
	claims := &Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ParseToken validates signature, expiry and token type, returning
// the subject user id.
func (tm *TokenManager) ParseToken(tokenStr, wantType string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, errors.New("invalid token claims")
	}
	if claims.TokenType != wantType {
		return 0, errors.New("wrong token type")
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}
