// Service layer of the internal package authentication.
// Tokens are issued by the forum API, Hearth only verifies them with the shared access secret.

package auth

import (
	"Hearth/internal/entity"
	"Hearth/pkg/log"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrMissingToken = errors.New("access token is missing")
)

// Service layer of internal package auth which encapsulates access token handling in Hearth.
type Service interface {
	// ParseAccessToken verifies token and returns the identity it carries.
	ParseAccessToken(ctx context.Context, token string) (entity.Identity, error)
	// IssueAccessToken signs a token the way the forum API does, used by tooling and tests.
	IssueAccessToken(ctx context.Context, id entity.Identity, ttl time.Duration) (string, error)
}

// Object of this will be passed around from main to routers to API.
type service struct {
	accSigningKey string
	logger        log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(accSigningKey string, logger log.Logger) Service {
	return service{accSigningKey, logger}
}

func (s service) ParseAccessToken(ctx context.Context, token string) (entity.Identity, error) {
	if token == "" {
		return entity.Identity{}, ErrMissingToken
	}
	vrftoken, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		// Check the signing method
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method found: %v", t.Header["alg"])
		}
		return []byte(s.accSigningKey), nil
	})
	if err != nil {
		s.logger.WithCtx(ctx).Debug().Err(err).Msg("Access token rejected")
		return entity.Identity{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	tokenclaims, ok := vrftoken.Claims.(jwt.MapClaims)
	if !ok || !vrftoken.Valid {
		return entity.Identity{}, ErrInvalidToken
	}
	if _, ok := tokenclaims["exp"]; !ok {
		return entity.Identity{}, errors.Wrap(ErrInvalidToken, "exp claim is missing")
	}
	// Numbers are decoded as float64 even though an integer was signed
	rawID, ok := tokenclaims["user_id"].(float64)
	if !ok || rawID <= 0 || rawID != math.Trunc(rawID) || rawID >= 1<<63 {
		return entity.Identity{}, errors.Wrap(ErrInvalidToken, "user_id claim is not a positive integer")
	}
	role, ok := tokenclaims["role"].(string)
	if !ok || !entity.Role(role).Valid() {
		return entity.Identity{}, errors.Wrap(ErrInvalidToken, "role claim is not a known role")
	}
	return entity.Identity{UserID: int64(rawID), Role: entity.Role(role)}, nil
}

func (s service) IssueAccessToken(ctx context.Context, id entity.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token, jwterr := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"access_token_uuid": uuid.NewString(),
		"user_id":           id.UserID,
		"role":              string(id.Role),
		"iat":               now.Unix(),
		"exp":               now.Add(ttl).Unix(),
	}).SignedString([]byte(s.accSigningKey))
	if jwterr != nil {
		s.logger.WithCtx(ctx).Error().Err(jwterr).Msg("Error occured during JWT generation")
		return "", errors.Wrap(jwterr, "signing access token")
	}
	return token, nil
}
