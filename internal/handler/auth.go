package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type actorKey struct{}

var (
	errMissingToken = errors.New("missing bearer token")
	errBadToken     = errors.New("invalid bearer token")
)

// authenticate verifies the HS256 bearer token and stores its subject as the acting user
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serveAuthenticated(w, r, next, bearerToken(r))
	})
}

// authenticateSocket is authenticate for the websocket handshake, which also
// takes the token from the access_token query parameter for browser clients
func (h *Handler) authenticateSocket(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			tokenStr = r.URL.Query().Get("access_token")
		}
		h.serveAuthenticated(w, r, next, tokenStr)
	})
}

func bearerToken(r *http.Request) string {
	tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return tokenStr
}

func (h *Handler) serveAuthenticated(w http.ResponseWriter, r *http.Request, next http.Handler, tokenStr string) {
	if tokenStr == "" {
		h.writeError(w, http.StatusUnauthorized, errMissingToken)
		return
	}
	subject, err := h.verifyToken(tokenStr)
	if err != nil {
		h.logger.DebugContext(r.Context(), "rejected bearer token", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusUnauthorized, errBadToken)
		return
	}

	ctx := context.WithValue(r.Context(), actorKey{}, subject)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// verifyToken returns the subject of a valid token
func (h *Handler) verifyToken(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if h.auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.auth.Issuer))
	}

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		return []byte(h.auth.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !tok.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// actorID returns the authenticated user id
func actorID(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
