package token

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
)

const (
	// RoleParticipant and RoleHost are the only roles a room token
	// may carry.
	RoleParticipant = 0
	RoleHost        = 1

	// ProtocolVersion is embedded in every token so the media layer
	// can reject credentials minted for an incompatible protocol.
	ProtocolVersion = 2

	maxIdentityLen = 16

	// expiryMargin: a token expiring within this window is treated as
	// already invalid, so a caller never receives a credential that
	// dies mid-handshake.
	expiryMargin = 5 * time.Minute
)

// Claims is the full set of fields a room access token carries. Every
// field is mandatory; a token missing any of them is malformed.
type Claims struct {
	KeyID    string `json:"kid"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
	Role     int    `json:"role"`
	Version  int    `json:"ver"`
	jwt.RegisteredClaims
}

// HasAllRequiredFields reports whether every mandatory claim is set.
func (c *Claims) HasAllRequiredFields() bool {
	return c.KeyID != "" &&
		c.Room != "" &&
		c.Identity != "" &&
		c.Version != 0 &&
		c.IssuedAt != nil &&
		c.ExpiresAt != nil
}

// Issuer mints and checks signed room access tokens. It is stateless:
// the same inputs always produce an equivalent credential.
type Issuer struct {
	signingKey []byte
	keyID      string
	lifetime   time.Duration
	now        func() time.Time
}

// NewIssuer fails with ErrConfig when the signing key is absent so a
// misconfigured process cannot silently mint unverifiable tokens.
func NewIssuer(signingKey, keyID string, lifetime time.Duration, now func() time.Time) (*Issuer, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("%w: token signing key is empty", apperrors.ErrConfig)
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: token key id is empty", apperrors.ErrConfig)
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		keyID:      keyID,
		lifetime:   lifetime,
		now:        now,
	}, nil
}

// Identity derives the short participant identity from a full user id.
// Short ids pass through; longer ones are hashed so the same user
// always maps to the same identity.
func Identity(userID string) string {
	if len(userID) <= maxIdentityLen {
		return userID
	}
	sum := blake2b.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:maxIdentityLen/2])
}

// Issue mints a token for one participant in one room. Expiry is always
// issuedAt + lifetime, never derived from the session end time, so the
// exposure window is fixed regardless of scheduling data.
func (i *Issuer) Issue(roomTopic, userID string, role int) (string, error) {
	if roomTopic == "" {
		return "", apperrors.NewValidation("room", "room topic is empty")
	}
	if userID == "" {
		return "", apperrors.NewValidation("user", "user id is empty")
	}
	if role != RoleParticipant && role != RoleHost {
		return "", apperrors.NewValidation("role", fmt.Sprintf("role must be 0 or 1, got %d", role))
	}

	identity := Identity(userID)
	if len(identity) > maxIdentityLen {
		return "", apperrors.NewValidation("identity", "derived identity exceeds 16 characters")
	}

	issuedAt := i.now()
	claims := &Claims{
		KeyID:    i.keyID,
		Room:     roomTopic,
		Identity: identity,
		Role:     role,
		Version:  ProtocolVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.lifetime)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
}

// Parse verifies the signature and returns the claims without applying
// time-based validation; Validate layers the expiry-margin check on top.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Validate reports whether a cached token is still safe to hand out:
// structurally complete, correctly signed, identity within bounds, role
// valid, and not expiring within the safety margin.
func (i *Issuer) Validate(tokenString string) bool {
	if tokenString == "" {
		return false
	}
	claims, err := i.Parse(tokenString)
	if err != nil {
		return false
	}
	if !claims.HasAllRequiredFields() {
		return false
	}
	if len(claims.Identity) > maxIdentityLen {
		return false
	}
	if claims.Role != RoleParticipant && claims.Role != RoleHost {
		return false
	}
	return i.now().Add(expiryMargin).Before(claims.ExpiresAt.Time)
}
