package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/capifyhq/capify/utils"
)

// added because of type complains
type contextKey string

const UserIdKey contextKey = "userId"
const EmailKey contextKey = "email"

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware requires a valid Bearer token and puts the user id on the
// request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		token, err := utils.ValidateToken(tokenString)
		if err != nil {
			log.Println(err.Error())
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		claims := token.Claims.(jwt.MapClaims)
		userId := int(claims["userId"].(float64))

		ctx := context.WithValue(r.Context(), UserIdKey, userId)
		if email, ok := claims["email"].(string); ok {
			ctx = context.WithValue(ctx, EmailKey, email)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuthMiddleware attaches the user id when a valid token is present
// but lets anonymous requests through. The event endpoints use it: GTM
// scripts post events without credentials.
func OptionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		token, err := utils.ValidateToken(tokenString)
		if err != nil || !token.Valid {
			next.ServeHTTP(w, r)
			return
		}

		claims := token.Claims.(jwt.MapClaims)
		if id, ok := claims["userId"].(float64); ok {
			ctx := context.WithValue(r.Context(), UserIdKey, int(id))
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(w, r)
	})
}

// UserID extracts the authenticated user id from the context; ok is false
// for anonymous requests.
func UserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIdKey).(int)
	return id, ok
}
