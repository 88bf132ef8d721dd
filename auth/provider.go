package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

func ErrInvalidToken() error {
	return errInvalidToken
}

func ErrTokenExpired() error {
	return errTokenExpired
}

// Claims carries the caller's id and role. UserID mirrors the subject for
// tokens minted by older clients that only set "id".
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Provider verifies and issues HS256 tokens signed with an injected secret.
type Provider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewProvider(secret, issuer string) (*Provider, error) {
	if secret == "" {
		return nil, errors.New("auth secret must not be empty")
	}
	return &Provider{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for p that expires after ttl. A zero ttl issues a
// token without expiry.
func (a *Provider) Issue(p domain.Principal, ttl time.Duration) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("%w: principal id is required", domain.ErrInvalidArgument())
	}
	if _, err := domain.RoleFromString(string(p.Role)); err != nil {
		return "", err
	}

	now := a.now()
	claims := Claims{
		UserID: p.ID,
		Role:   string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ID,
			Issuer:   a.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Provider) Verify(tokenString string) (domain.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, errTokenExpired
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !token.Valid {
		return domain.Principal{}, errInvalidToken
	}

	id := claims.Subject
	if id == "" {
		id = claims.UserID
	}
	if id == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	role, err := domain.RoleFromString(claims.Role)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	return domain.Principal{ID: id, Role: role}, nil
}
