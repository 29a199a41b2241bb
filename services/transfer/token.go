package transfer

import (
	"errors"
	"time"

	"guardget/models"
	"guardget/utils"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// sessionClaims bind a token to one transfer request and its owner (Subject).
type sessionClaims struct {
	TransferID string `json:"tid"`
	DeviceID   string `json:"did"`
	jwt.StandardClaims
}

var sessionParser = &jwt.Parser{
	ValidMethods:         []string{jwt.SigningMethodHS256.Name},
	SkipClaimsValidation: true,
}

// signSession returns the token and the hash stored on the request.
func signSession(transferID, deviceID, ownerID string, issuedAt, expiresAt time.Time) (string, string, error) {
	claims := sessionClaims{
		TransferID: transferID,
		DeviceID:   deviceID,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   ownerID,
			IssuedAt:  issuedAt.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(utils.Secret())
	if err != nil {
		return "", "", err
	}
	return token, utils.HashToken(token), nil
}

// validateAt checks the time-based claims against now and reports failures
// with the library's validation error bits.
func (c *sessionClaims) validateAt(now time.Time) error {
	if !c.VerifyExpiresAt(now.Unix(), true) {
		return &jwt.ValidationError{Errors: jwt.ValidationErrorExpired}
	}
	return nil
}

// parseSession verifies the signature and, unless allowExpired is set, the
// session envelope.
func parseSession(token string, now time.Time, allowExpired bool) (*sessionClaims, error) {
	if token == "" {
		return nil, models.NewValidationError("sessionToken is required")
	}
	claims := &sessionClaims{}
	_, err := sessionParser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return utils.Secret(), nil
	})
	if err == nil {
		err = claims.validateAt(now)
	}
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors == jwt.ValidationErrorExpired {
			if allowExpired {
				return claims, nil
			}
			return nil, models.ErrSessionExpired
		}
		return nil, models.NewValidationError("invalid session token")
	}
	if claims.TransferID == "" || claims.Subject == "" {
		return nil, models.NewValidationError("invalid session token")
	}
	return claims, nil
}
