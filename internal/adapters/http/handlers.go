package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/usecases"
	"github.com/samirrijal/placefinder/internal/pkg/geospatial"
)

// DetectionResponse is the nearest place plus its distance from the query.
type DetectionResponse struct {
	domain.Place
	DistanceMeters float64 `json:"distance_m"`
	DistanceLabel  string  `json:"distance_label"`
}

func newDetectionResponse(m *usecases.Match) DetectionResponse {
	return DetectionResponse{
		Place:          m.Place,
		DistanceMeters: m.DistanceMeters,
		DistanceLabel:  geospatial.FormatDistance(m.DistanceMeters),
	}
}

// parseCoordinate reads a required float parameter. Zero is a valid value,
// so presence is checked on the raw string.
func parseCoordinate(raw, name string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, name+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, name+" must be a number")
	}
	return v, nil
}

// DetectHandler returns the nearest registered place within range of lat/lng.
func DetectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")

		lat, err := parseCoordinate(c.Query("lat"), "lat")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		lng, err := parseCoordinate(c.Query("lng"), "lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		match, err := deps.Detection.Detect(c.UserContext(), lat, lng)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(newDetectionResponse(match))
	}
}

// ListPlacesHandler returns registered places with offset/limit pagination.
func ListPlacesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		places, err := deps.Places.List(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}

		page, pg := paginate(places, c.QueryInt("offset", 0), c.QueryInt("limit", 50))
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// GetPlaceHandler returns a single place by ID.
func GetPlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		place, err := deps.Places.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(place)
	}
}

// CreatePlaceHandler registers a place from a multipart form with fields
// name, description, lat, lng and the file field image.
func CreatePlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, err := parseCoordinate(c.FormValue("lat"), "lat")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		lng, err := parseCoordinate(c.FormValue("lng"), "lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		fh, err := c.FormFile("image")
		if err != nil {
			return errBadRequest(c, "image file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return errBadRequest(c, "unreadable image upload")
		}
		defer f.Close()

		in := usecases.NewPlace{
			Name:        c.FormValue("name"),
			Description: c.FormValue("description"),
			Lat:         lat,
			Lng:         lng,
		}
		place, err := deps.Places.Register(c.UserContext(), principalFrom(c), in, fh.Filename, f)
		if err != nil {
			return writeError(c, err)
		}

		c.Location("/v1/places/" + place.ID)
		return c.Status(fiber.StatusCreated).JSON(place)
	}
}
