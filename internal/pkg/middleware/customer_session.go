package middleware

import (
	"net/http"
	"strings"

	"github.com/Draco1js/nexus-pass-sub001/internal/pkg/jwt"
	"github.com/Draco1js/nexus-pass-sub001/internal/pkg/session"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/response"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type CustomerSession struct {
	jsonWebToken *jwt.JSONWebToken
	sessionStore session.Store
}

func NewCustomerSessionMiddleware(jsonWebToken *jwt.JSONWebToken, sessionStore session.Store) *CustomerSession {
	return &CustomerSession{
		jsonWebToken: jsonWebToken,
		sessionStore: sessionStore,
	}
}

func (m *CustomerSession) Verify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authorization := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(authorization, "Bearer ")
		if !found || tokenString == "" {
			response.JSON(w, http.StatusUnauthorized, response.RESTEnvelope{
				Status:  status.UNAUTHORIZED,
				Message: "authorization bearer token is required",
			})

			return
		}

		subject, err := m.jsonWebToken.Verify(tokenString)
		if err != nil {
			ae := errors.Destruct(err)
			response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
				Status:  ae.Status,
				Message: ae.Message,
			})

			return
		}

		account, err := m.sessionStore.Get(ctx, subject)
		if err != nil {
			ae := errors.Destruct(err)
			response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
				Status:  ae.Status,
				Message: ae.Message,
			})

			return
		}

		ctx = session.SetAccountToCtx(ctx, account)

		next(w, r.WithContext(ctx))
	}
}
