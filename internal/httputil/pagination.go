package httputil

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"
)

// PageLimits bounds the limit query parameter of a listing.
type PageLimits struct {
	Default int
	Max     int
}

// DefaultPageLimits applies to record listings.
var DefaultPageLimits = PageLimits{Default: 50, Max: 100}

// Page is an offset/limit window over a listing.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ParsePage reads the offset and limit query parameters. Offset defaults to 0 and must
// not be negative; limit defaults to limits.Default and must be within [1, limits.Max].
func ParsePage(c *gin.Context, limits PageLimits) (Page, error) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return Page{}, err
	}

	limit, err := ParseLimit(c, limits)
	if err != nil {
		return Page{}, err
	}

	page := Page{Offset: offset, Limit: limit}
	if err := validation.ValidateStruct(&page,
		validation.Field(&page.Offset, validation.Min(0)),
	); err != nil {
		return Page{}, err
	}

	return page, nil
}

// ParseLimit reads only the limit query parameter, with the same rules as ParsePage.
func ParseLimit(c *gin.Context, limits PageLimits) (int, error) {
	limit, err := queryInt(c, "limit", limits.Default)
	if err != nil {
		return 0, err
	}

	if err := validation.Validate(limit,
		validation.Required.Error(fmt.Sprintf("must be between 1 and %d", limits.Max)),
		validation.Min(1),
		validation.Max(limits.Max),
	); err != nil {
		return 0, fmt.Errorf("limit: %w", err)
	}

	return limit, nil
}

func queryInt(c *gin.Context, key string, defaultValue int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: must be an integer", key)
	}
	return value, nil
}
