package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

type contextKey string

const userIDKey contextKey = "userID"

const roleAdmin = "admin"

// Claims — полезная нагрузка токена, выданного внешним auth-сервисом.
// Сервис токены не выпускает, только проверяет подпись.
type Claims struct {
	UserID string   `json:"userId"`
	Role   []string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate проверяет Bearer-токен и кладёт userID в контекст запроса.
func (s *Server) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		claims, ok := s.parseToken(w, r)
		if !ok {
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next(w, r.WithContext(ctx), ps)
	}
}

// RequireAdmin пропускает только токены с ролью admin.
func (s *Server) RequireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		claims, ok := s.parseToken(w, r)
		if !ok {
			return
		}

		if !hasRole(claims.Role, roleAdmin) {
			writeErrorKind(w, http.StatusForbidden, "forbidden")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next(w, r.WithContext(ctx), ps)
	}
}

func (s *Server) parseToken(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		writeErrorKind(w, http.StatusUnauthorized, "missing_token")
		return nil, false
	}
	if !strings.HasPrefix(header, "Bearer ") {
		writeErrorKind(w, http.StatusUnauthorized, "invalid_token_format")
		return nil, false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(header[7:], claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		writeErrorKind(w, http.StatusUnauthorized, "invalid_token")
		return nil, false
	}

	return claims, true
}

func hasRole(roles []string, wanted string) bool {
	for _, role := range roles {
		if role == wanted {
			return true
		}
	}
	return false
}

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
