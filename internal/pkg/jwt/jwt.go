package jwt

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type JSONWebToken struct {
	publicKey []byte
}

func NewJSONWebToken(publicKey []byte) *JSONWebToken {
	return &JSONWebToken{
		publicKey: publicKey,
	}
}

// Verify parses and validates a bearer token issued by the identity provider
// and returns its subject.
func (j *JSONWebToken) Verify(tokenString string) (string, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(j.publicKey)
	if err != nil {
		return "", errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while parsing jwt public key")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "invalid or expired access token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "access token has no subject")
	}

	return subject, nil
}
