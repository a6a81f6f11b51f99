package admin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrMalformedAuth = errors.New("malformed authorization header")
)

// debugTokenTTL is deliberately shorter than a product login session: a
// token here authorizes reading a live process's internal state, not a
// user's own account, so it is not worth minting for a full day.
const debugTokenTTL = 2 * time.Hour

// jwtService mints and validates the bearer tokens that gate
// GET /debug/pool. Grounded on alexdev-tb-CodePortal/internal/auth.JWTService
// (hand-rolled HMAC-SHA256, no external JWT library in the teacher's stack).
type jwtService struct {
	secret []byte
}

func newJWTService(secret string) *jwtService {
	return &jwtService{secret: []byte(secret)}
}

func (j *jwtService) GenerateToken(op Operator) (string, error) {
	header := map[string]interface{}{"alg": "HS256", "typ": "JWT"}
	claims := TokenClaims{
		OperatorID: op.ID,
		Email:      op.Email,
		Role:       op.Role,
		Exp:        time.Now().Add(debugTokenTTL).Unix(),
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	headerEncoded := base64.RawURLEncoding.EncodeToString(headerBytes)

	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payloadEncoded := base64.RawURLEncoding.EncodeToString(payloadBytes)

	message := headerEncoded + "." + payloadEncoded
	return message + "." + j.sign(message), nil
}

func (j *jwtService) ValidateToken(tokenString string) (*TokenClaims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	headerEncoded, payloadEncoded, signature := parts[0], parts[1], parts[2]

	expected := j.sign(headerEncoded + "." + payloadEncoded)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, ErrInvalidToken
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadEncoded)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var claims TokenClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if time.Unix(claims.Exp, 0).Before(time.Now()) {
		return nil, ErrExpiredToken
	}
	return &claims, nil
}

func (j *jwtService) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMalformedAuth
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrMalformedAuth
	}
	return parts[1], nil
}

func (j *jwtService) sign(message string) string {
	h := hmac.New(sha256.New, j.secret)
	h.Write([]byte(message))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
