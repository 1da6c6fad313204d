// Package server provides HTTP handlers and server setup for the update service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"goupdate/internal/core"
	"goupdate/internal/observability"
	"goupdate/internal/products"
	"goupdate/internal/resolver"
	"goupdate/internal/vercmp"
)

// DefaultRequestTimeout bounds how long a check waits for a cache refresh
// when no timeout is configured.
const DefaultRequestTimeout = 10 * time.Second

// Check kinds, used as the "kind" metric label.
const (
	kindPlatform = "platform"
	kindSimple   = "simple"
)

// unknownProduct labels metrics of requests that matched no product, keeping
// arbitrary Host values out of label cardinality.
const unknownProduct = "unknown"

// Handler holds the HTTP handlers
type Handler struct {
	registry       *products.Registry
	changelogs     *resolver.Changelogs
	requestTimeout time.Duration
}

// NewHandler creates the handlers. A nil changelogs gets a default-sized memo.
func NewHandler(registry *products.Registry, changelogs *resolver.Changelogs, requestTimeout time.Duration) *Handler {
	if changelogs == nil {
		// NewChangelogs only fails for an invalid size.
		changelogs, _ = resolver.NewChangelogs(resolver.DefaultChangelogSize)
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Handler{
		registry:       registry,
		changelogs:     changelogs,
		requestTimeout: requestTimeout,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// PlatformCheck handles GET /:target/:arch/:current_version for the product
// bound to the request's Host.
func (h *Handler) PlatformCheck(c echo.Context) error {
	return h.serveCheck(c, kindPlatform, h.productByHost, h.resolvePlatform)
}

// SimpleCheck handles GET /check/:current_version for the product bound to
// the request's Host.
func (h *Handler) SimpleCheck(c echo.Context) error {
	return h.serveCheck(c, kindSimple, h.productByHost, h.resolveSimple)
}

// ProductPlatformCheck handles GET /products/:product/:target/:arch/:current_version
func (h *Handler) ProductPlatformCheck(c echo.Context) error {
	return h.serveCheck(c, kindPlatform, h.productByName, h.resolvePlatform)
}

// ProductSimpleCheck handles GET /products/:product/check/:current_version
func (h *Handler) ProductSimpleCheck(c echo.Context) error {
	return h.serveCheck(c, kindSimple, h.productByName, h.resolveSimple)
}

type (
	lookupFunc  func(c echo.Context) (*products.Product, error)
	resolveFunc func(c echo.Context, p *products.Product, current string) (string, error)
)

// serveCheck runs one update check and records its outcome. The product is
// looked up before the client version is validated, so an unknown product is
// always a 404.
func (h *Handler) serveCheck(c echo.Context, kind string, lookup lookupFunc, resolve resolveFunc) error {
	start := time.Now()
	product := unknownProduct

	outcome, err := func() (string, error) {
		p, err := lookup(c)
		if err != nil {
			return observability.OutcomeUnknownProduct, err
		}
		product = p.Name
		c.SetRequest(c.Request().WithContext(core.WithProduct(c.Request().Context(), p.Name)))

		current := c.Param("current_version")
		if !vercmp.IsValid(current) {
			return observability.OutcomeInvalid, core.NewInvalidRequestError("invalid current version: "+current, nil)
		}
		return resolve(c, p, current)
	}()

	observability.RecordCheck(product, kind, outcome, time.Since(start))

	var svcErr *core.ServiceError
	if errors.As(err, &svcErr) {
		return handleError(c, err)
	}
	return err
}

func (h *Handler) productByHost(c echo.Context) (*products.Product, error) {
	host := c.Request().Host
	if p, ok := h.registry.LookupHost(host); ok {
		return p, nil
	}
	return nil, core.NewNotFoundError("no product is served on host " + products.NormalizeHost(host))
}

func (h *Handler) productByName(c echo.Context) (*products.Product, error) {
	name := c.Param("product")
	if p, ok := h.registry.Lookup(name); ok {
		return p, nil
	}
	return nil, core.NewNotFoundError("unknown product: " + name)
}

// checkContext bounds how long a check waits for a refresh. Past the
// deadline the cache answers from its last known value.
func (h *Handler) checkContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.requestTimeout)
}

func (h *Handler) resolvePlatform(c echo.Context, p *products.Product, current string) (string, error) {
	ctx, cancel := h.checkContext(c)
	defer cancel()

	latest, ok, err := p.Latest(ctx)
	if errors.Is(err, products.ErrNoPlatforms) {
		return observability.OutcomeUnknownProduct, core.NewNotFoundError("product " + p.Name + " does not publish platform artifacts")
	}
	if err != nil {
		return observability.OutcomeUnavailable, err
	}
	if !ok {
		return observability.OutcomeUnavailable, core.NewUnavailableError(p.Name, "unable to fetch release")
	}

	decision := h.changelogs.ResolvePlatform(latest, noteSource(p), current, c.Param("target"), c.Param("arch"))
	if !decision.Available {
		return observability.OutcomeNoUpdate, c.NoContent(http.StatusNoContent)
	}
	return writeUpdate(c, decision.Update)
}

func (h *Handler) resolveSimple(c echo.Context, p *products.Product, current string) (string, error) {
	ctx, cancel := h.checkContext(c)
	defer cancel()

	latest, ok := p.LatestSimple(ctx)
	if !ok {
		return observability.OutcomeUnavailable, core.NewUnavailableError(p.Name, "unable to fetch release")
	}

	decision := h.changelogs.ResolveSimple(latest, noteSource(p), current)
	if !decision.Available {
		return observability.OutcomeNoUpdate, c.NoContent(http.StatusNoContent)
	}
	return writeUpdate(c, decision.Release)
}

func writeUpdate(c echo.Context, v any) (string, error) {
	sent, err := writeJSONWithETag(c, v)
	if err != nil {
		return observability.OutcomeUpdate, err
	}
	if !sent {
		return observability.OutcomeNotModified, nil
	}
	return observability.OutcomeUpdate, nil
}

// emptyNotes is the note source of a product without a history.
type emptyNotes string

func (e emptyNotes) Product() string       { return string(e) }
func (emptyNotes) Revision() uint64        { return 0 }
func (emptyNotes) All() []core.ReleaseNote { return nil }

func noteSource(p *products.Product) resolver.NoteSource {
	if p.Notes == nil {
		return emptyNotes(p.Name)
	}
	return p.Notes
}

// ListProducts handles GET /admin/api/v1/products
func (h *Handler) ListProducts(c echo.Context) error {
	list := h.registry.List()
	statuses := make([]products.Status, 0, len(list))
	for _, p := range list {
		statuses = append(statuses, p.Status())
	}
	return c.JSON(http.StatusOK, map[string]any{"products": statuses})
}

// GetProduct handles GET /admin/api/v1/products/:product
func (h *Handler) GetProduct(c echo.Context) error {
	p, err := h.productByName(c)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, p.Status())
}

// InvalidateProduct handles POST /admin/api/v1/products/:product/invalidate.
// The next check refreshes the product; until then, and if that refresh
// fails, the previous release keeps being served.
func (h *Handler) InvalidateProduct(c echo.Context) error {
	p, err := h.productByName(c)
	if err != nil {
		return handleError(c, err)
	}
	p.Invalidate()
	slog.Info("product cache invalidated via admin API",
		"product", p.Name,
		"request_id", core.GetRequestID(c.Request().Context()),
	)
	return c.JSON(http.StatusOK, p.Status())
}

// handleError converts service errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var svcErr *core.ServiceError
	if errors.As(err, &svcErr) {
		return c.JSON(svcErr.HTTPStatusCode(), svcErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
