package identity

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the identity core over JSON routes. Action handlers
// (posts, votes, comments) call the same services directly; these routes
// cover the dedicated identify/verify endpoints and the admin operations.
type HTTPController struct {
	Debug        bool
	Logger       Logger
	Resolver     *Resolver
	MagicLink    *MagicLink
	Directory    *Directory
	Repo         RepositoryManager
	ErrorHandler func(ctx router.Context, err error) error
}

// HTTPControllerOption customizes controller construction.
type HTTPControllerOption func(*HTTPController) *HTTPController

func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger: defLogger{},
	}
	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Resolver == nil {
		panic("Missing Resolver in identity controller...")
	}

	if c.MagicLink == nil {
		panic("Missing MagicLink in identity controller...")
	}

	if c.Directory == nil {
		panic("Missing Directory in identity controller...")
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in identity controller...")
	}

	return c
}

// WithControllerResolver sets the resolver dependency.
func WithControllerResolver(r *Resolver) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Resolver = r
		return c
	}
}

// WithControllerMagicLink sets the magic-link dependency.
func WithControllerMagicLink(m *MagicLink) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.MagicLink = m
		return c
	}
}

// WithControllerDirectory sets the directory dependency.
func WithControllerDirectory(d *Directory) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Directory = d
		return c
	}
}

// WithControllerRepo sets the repository manager dependency.
func WithControllerRepo(repo RepositoryManager) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Repo = repo
		return c
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// RegisterRoutes registers identity routes on the given group.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/identify", c.Identify)
	group.Post("/verify/magic-link", c.MagicLinkRequest)
	group.Post("/verify/magic-link/confirm", c.MagicLinkConfirm)
	group.Post("/widget-users/:id/ban", c.SetBanned)
	group.Post("/orgs/:org_id/secret/rotate", c.RotateSecret)
}

// IdentifyRequest is the payload for the dedicated identify endpoint.
type IdentifyRequest struct {
	OrgID   string          `json:"org_id" form:"org_id"`
	Payload IdentifyPayload `json:"identity" form:"identity"`
}

func (r IdentifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OrgID, validation.Required, is.UUIDv4),
	)
}

// Identify resolves the caller identity and, when it is durable, upserts the
// widget-user record.
func (c *HTTPController) Identify(ctx router.Context) error {
	payload := new(IdentifyRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse identify payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": err.Error(),
		})
	}

	if c.Debug {
		c.Logger.Debug("identify payload: %s", print.MaybePrettyJSON(payload.Payload))
	}

	orgID, err := uuid.Parse(payload.OrgID)
	if err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid org id").
			WithCode(goerrors.CodeBadRequest))
	}

	cfg, err := c.Repo.TrustConfigs().GetByOrgID(ctx.Context(), orgID)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	resolved, err := c.Resolver.Resolve(&payload.Payload, cfg)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if resolved.Guest() {
		return ctx.JSON(router.StatusOK, map[string]any{
			"source": resolved.Source,
		})
	}

	user, err := c.Directory.Upsert(ctx.Context(), orgID, resolved)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"source": resolved.Source,
		"user":   user,
	})
}

// MagicLinkRequestPayload asks for a new email code challenge.
type MagicLinkRequestPayload struct {
	Email   string `json:"email" form:"email"`
	OrgSlug string `json:"org_slug" form:"org_slug"`
	OrgID   string `json:"org_id" form:"org_id"`
}

func (r MagicLinkRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.OrgID, is.UUIDv4),
	)
}

// MagicLinkRequest issues a challenge and emails the code.
func (c *HTTPController) MagicLinkRequest(ctx router.Context) error {
	payload := new(MagicLinkRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse magic link payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": err.Error(),
		})
	}

	orgID := uuid.Nil
	if payload.OrgID != "" {
		parsed, err := uuid.Parse(payload.OrgID)
		if err == nil {
			orgID = parsed
		}
	}

	issued, err := c.MagicLink.Issue(ctx.Context(), payload.Email, payload.OrgSlug, orgID)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, issued)
}

// MagicLinkConfirmPayload submits a code against a challenge token.
type MagicLinkConfirmPayload struct {
	Token string `json:"verificationToken" form:"verificationToken"`
	Code  string `json:"code" form:"code"`
	OrgID string `json:"org_id" form:"org_id"`
}

func (r MagicLinkConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(&r.OrgID, is.UUIDv4),
	)
}

// MagicLinkConfirm verifies a submission. Wrong codes with budget left return
// the re-signed retry token and the attempts remaining.
func (c *HTTPController) MagicLinkConfirm(ctx router.Context) error {
	payload := new(MagicLinkConfirmPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse confirmation payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": err.Error(),
		})
	}

	resolved, retry, err := c.MagicLink.Verify(payload.Token, payload.Code)
	if err != nil {
		if retry != nil {
			status := router.StatusBadRequest
			if IsAttemptsExhaustedError(err) {
				status = http.StatusTooManyRequests
			}
			return ctx.JSON(status, map[string]any{
				"error":             err.Error(),
				"verificationToken": retry.Token,
				"attemptsRemaining": retry.AttemptsRemaining,
			})
		}
		return c.ErrorHandler(ctx, err)
	}

	response := map[string]any{
		"source": resolved.Source,
		"user":   resolved.User,
	}

	if payload.OrgID != "" {
		orgID, parseErr := uuid.Parse(payload.OrgID)
		if parseErr == nil {
			user, upsertErr := c.Directory.Upsert(ctx.Context(), orgID, resolved)
			if upsertErr != nil {
				return c.ErrorHandler(ctx, upsertErr)
			}
			response["user"] = user
		}
	}

	return ctx.JSON(router.StatusOK, response)
}

// SetBannedPayload toggles the ban flag for a widget user.
type SetBannedPayload struct {
	Banned bool   `json:"banned" form:"banned"`
	Reason string `json:"reason" form:"reason"`
}

// SetBanned is the admin ban/unban operation. Admin authentication is the
// host application's middleware concern; the actor id travels in the header.
func (c *HTTPController) SetBanned(ctx router.Context) error {
	userID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id").
			WithCode(goerrors.CodeBadRequest))
	}

	payload := new(SetBannedPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse ban payload").
			WithCode(goerrors.CodeBadRequest))
	}

	actor := ActorRef{ID: ctx.GetString("X-Admin-ID", ""), Type: "admin"}

	user, err := c.Directory.SetBanned(ctx.Context(), actor, userID, payload.Banned, payload.Reason)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// RotateSecret replaces the org SSO signing secret. All outstanding JWT-mode
// tokens stop verifying.
func (c *HTTPController) RotateSecret(ctx router.Context) error {
	orgID, err := uuid.Parse(ctx.Param("org_id"))
	if err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid org id").
			WithCode(goerrors.CodeBadRequest))
	}

	secret, err := c.Repo.TrustConfigs().RotateSecretKey(ctx.Context(), orgID)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"secret_key": secret,
	})
}

func (c *HTTPController) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	switch richErr.Category {
	case goerrors.CategoryOperation:
		// Operator misconfiguration (e.g. SSO secret missing) is not an
		// end-user input problem; keep it loud in the logs.
		c.Logger.Error(
			"identity configuration error",
			"error", richErr.Message,
			"text_code", richErr.TextCode,
		)
	default:
		c.Logger.Info(
			"identity request rejected",
			"error", richErr.Message,
			"category", richErr.Category,
			"text_code", richErr.TextCode,
		)
	}

	status := richErr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
