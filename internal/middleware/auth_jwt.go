package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxActorIDKey  = "actor_id"  // string（JWTのsub）
	CtxUserRoleKey = "user_role" // string
	CtxTenantIDKey = "tenant_id" // string
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// bearerAuth用のJWT検証ミドルウェア。
// tenant_id クレームがないトークンは通さない。
func AuthJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//JWTをパースして検証する
			token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || token == nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//claimsを取り出す
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//subを取り出す
			actorID, err := parseSubject(claims["sub"])
			if err != nil || actorID == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//tenant_idを取り出す
			tenantID, err := parseString(claims["tenant_id"])
			if err != nil || strings.TrimSpace(tenantID) == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("missing tenant"))
			}

			//roleを取り出す（なければUSER）
			role := RoleUser
			if raw, exists := claims["role"]; exists {
				role, err = parseString(raw)
				if err != nil || role == "" {
					return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
				}
			}

			//contextへ保存
			c.Set(CtxActorIDKey, actorID)
			c.Set(CtxTenantIDKey, strings.TrimSpace(tenantID))
			c.Set(CtxUserRoleKey, role)

			return next(c)
		}
	}
}

// contextからテナントを取り出す
func TenantID(c echo.Context) (string, bool) {
	v, ok := c.Get(CtxTenantIDKey).(string)
	return v, ok && v != ""
}

func ActorID(c echo.Context) (string, bool) {
	v, ok := c.Get(CtxActorIDKey).(string)
	return v, ok && v != ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// subは文字列でも数値でも受ける
func parseSubject(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatInt(int64(t), 10), nil
	default:
		return "", errors.New("invalid sub")
	}
}

func parseString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("invalid string")
	}
	return s, nil
}
