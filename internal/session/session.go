package session

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/macharian8/stocksnap/internal/domain"
)

// Mode is the access level a PIN unlocks. Switching modes means logging in
// with the other PIN; there is no privilege escalation inside a session.
type Mode string

const (
	ModeOwner     Mode = "owner"
	ModeAttendant Mode = "attendant"
)

type Actor struct {
	Scope string
	Mode  Mode
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Scope string `json:"scope"`
	Mode  string `json:"mode"`
}

// Gate verifies PINs and issues session tokens. It never performs
// business logic; the engine only reads the active scope from it.
type Gate struct {
	secret        []byte
	tokenTTL      time.Duration
	scope         string
	ownerHash     string
	attendantHash string
}

func NewGate(secret string, tokenTTL time.Duration, scope string, ownerPIN string, attendantPIN string) (*Gate, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if scope == "" {
		scope = "main-shop"
	}

	ownerHash, err := hashPIN(ownerPIN)
	if err != nil {
		return nil, err
	}
	attendantHash := ""
	if strings.TrimSpace(attendantPIN) != "" {
		attendantHash, err = hashPIN(attendantPIN)
		if err != nil {
			return nil, err
		}
	}

	return &Gate{
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		scope:         scope,
		ownerHash:     ownerHash,
		attendantHash: attendantHash,
	}, nil
}

// CurrentUserScope is the tenant scope applied to every catalog and ledger
// call made on behalf of this installation.
func (g *Gate) CurrentUserScope() string {
	return g.scope
}

func (g *Gate) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	pin := strings.TrimSpace(req.PIN)
	if pin == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	var mode Mode
	switch {
	case verifyPIN(g.ownerHash, pin):
		mode = ModeOwner
	case g.attendantHash != "" && verifyPIN(g.attendantHash, pin):
		mode = ModeAttendant
	default:
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(g.tokenTTL)
	token, err := g.sign(mode, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Mode:        string(mode),
		Scope:       g.scope,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (g *Gate) ParseToken(tokenStr string) (Actor, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return Actor{}, errors.New("invalid or expired token")
	}
	if claims.Scope == "" || (claims.Mode != string(ModeOwner) && claims.Mode != string(ModeAttendant)) {
		return Actor{}, errors.New("invalid token claims")
	}
	return Actor{Scope: claims.Scope, Mode: Mode(claims.Mode)}, nil
}

func (g *Gate) sign(mode Mode, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   g.scope,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "stocksnap",
		},
		Scope: g.scope,
		Mode:  string(mode),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

func hashPIN(pin string) (string, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return "", errors.New("PIN is required")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func verifyPIN(hash string, pin string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
