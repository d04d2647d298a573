package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/clearlane/rewards/internal/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
	RoleKey   contextKey = "role"
)

const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
			return
		}

		userID, role, err := validateToken(parts[1])
		if err != nil {
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, RoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers whose token role is not one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := Role(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		})
	}
}

// SecurityHeaders sets the baseline response headers for a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

func Role(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}

func validateToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("unexpected claims type")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", "", errors.New("token missing user_id")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleUser
	}
	return userID, role, nil
}
