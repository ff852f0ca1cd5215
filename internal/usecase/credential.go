package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
)

// CheckCredential inspects a bearer credential before any connection
// attempt. JWT-shaped credentials are decoded without verification: an
// expired one is rejected and the subject claim is returned as the
// credential's user. Opaque credentials pass through with no subject.
func CheckCredential(credential string, now time.Time) (string, error) {
	if credential == "" {
		return "", models.ErrNoCredential
	}
	if strings.Count(credential, ".") != 2 {
		return "", nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return "", nil
	}
	exp, err := claims.GetExpirationTime()
	if err == nil && exp != nil && !exp.After(now) {
		return "", fmt.Errorf("%w: token expired at %s", models.ErrAuthRejected, exp.UTC().Format(time.RFC3339))
	}
	sub, _ := claims.GetSubject()
	return sub, nil
}
