package handlers

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/search"
	"github.com/Ramsey-B/poppy/pkg/validation"
)

// SearchService answers venue queries
type SearchService interface {
	SearchNearby(ctx context.Context, req search.Request) (*search.Page, error)
	GetVenue(ctx context.Context, id int64) (*models.VenueDetail, error)
}

// VenueHandler handles venue search API requests
type VenueHandler struct {
	search SearchService
	logger ectologger.Logger
}

// NewVenueHandler creates a new venue handler
func NewVenueHandler(search SearchService, logger ectologger.Logger) *VenueHandler {
	return &VenueHandler{
		search: search,
		logger: logger,
	}
}

// Search returns venues open at the requested time near a point
// GET /api/v1/venues/search?lat=&lng=&radius=&time=&page=&size=
func (h *VenueHandler) Search(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := parseSearchRequest(c)
	if err != nil {
		return err
	}

	page, err := h.search.SearchNearby(ctx, req)
	if err != nil {
		return err
	}

	return SuccessResponse(c, page)
}

// Get returns a venue with its weekly operating hours
// GET /api/v1/venues/:id
func (h *VenueHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}

	venue, err := h.search.GetVenue(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, venue)
}

func parseSearchRequest(c echo.Context) (search.Request, error) {
	var req search.Request
	verr := validation.NewError("")

	for _, name := range []string{"lat", "lng"} {
		if strings.TrimSpace(c.QueryParam(name)) == "" {
			verr.AddField(name, name+" is required")
		}
	}

	var err error
	if req.Lat, err = queryFloat(c, "lat", 0); err != nil {
		verr.AddField("lat", err.Error())
	}
	if req.Lng, err = queryFloat(c, "lng", 0); err != nil {
		verr.AddField("lng", err.Error())
	}
	if req.Radius, err = queryFloat(c, "radius", search.DefaultRadius); err != nil {
		verr.AddField("radius", err.Error())
	}
	if req.Page, err = queryInt(c, "page", 0); err != nil {
		verr.AddField("page", err.Error())
	}
	if req.Size, err = queryInt(c, "size", search.DefaultPageSize); err != nil {
		verr.AddField("size", err.Error())
	}
	req.Time = strings.TrimSpace(c.QueryParam("time"))

	if verr.HasFields() {
		return req, verr
	}
	return req, nil
}

// RegisterRoutes registers the venue routes
func (h *VenueHandler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	venues := g.Group("/venues")
	venues.GET("/search", h.Search, mw...)
	venues.GET("/:id", h.Get)
}
