package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

// Claims represents the authorization claims transmitted via a JWT.
// Role is advisory; every privileged handler re-resolves the grant.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
}

type authenticator struct {
	conf      *core.Config
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		conf: conf,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    "userToken",
			Claims:        new(Claims),
		},
	}
}

func GetPrincipalClaims(conf *core.Config, usr identity.Principal, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.Email,
			Audience:  "Academy",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Name:         usr.Name,
		Role:         string(usr.Role),
	}
}

// GenerateToken generates a signed JWT token string representing the principal Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get("userToken").(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// actorEmail is the email of the authenticated principal.
func actorEmail(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", errUnauthorized
	}
	return claims.Email, nil
}

type authApi struct {
	auth     *authenticator
	ids      *identity.Service
	provider identity.Provider
	validate *validator.Validate
}

func registerAuthAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	ids *identity.Service,
	provider identity.Provider,
	validate *validator.Validate,
) {
	api := authApi{auth: auth, ids: ids, provider: provider, validate: validate}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/register", api.register)
	ag.POST("/logout", api.logout, jwt)
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.GET("/me", api.me, jwt)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token     string             `json:"token"`
		Principal identity.Principal `json:"principal"`
	}

	MeResponse struct {
		Principal identity.Principal `json:"principal"`
		Grant     identity.RoleGrant `json:"grant"`
	}
)

func (data LoginRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.provider.SignIn(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	token, err := GenerateToken(api.auth.conf, GetPrincipalClaims(api.auth.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Principal: usr})
}

func (api *authApi) register(ctx echo.Context) error {
	var data identity.NewPrincipal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPrincipal")
	}
	usr, err := api.ids.Register(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *authApi) logout(ctx echo.Context) error {
	email, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	if err := api.provider.SignOut(ctx.Request().Context(), email); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// the principal must still exist & not be disabled
	c := ctx.Request().Context()
	if _, err := api.ids.RequireActive(c, claims.Email); err != nil {
		return err
	}
	usr, err := api.ids.GetPrincipal(c, claims.Email)
	if err != nil {
		return err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(api.auth.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return errRefreshExpired
	}

	token, err := GenerateToken(api.auth.conf, GetPrincipalClaims(api.auth.conf, usr, claims.OrigIssuedAt))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Principal: usr})
}

func (api *authApi) me(ctx echo.Context) error {
	email, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	if sess, ok := api.ids.Session(email); ok {
		return ctx.JSON(http.StatusOK, MeResponse{Principal: sess.Principal, Grant: sess.Grant})
	}

	// not signed in on this instance (token issued elsewhere or before a restart)
	c := ctx.Request().Context()
	usr, err := api.ids.GetPrincipal(c, email)
	if err != nil {
		return err
	}
	grant, err := api.ids.Resolve(c, email)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MeResponse{Principal: usr, Grant: grant})
}
