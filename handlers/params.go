package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type pageQuery struct {
	Page  int
	Limit int
}

// pageParams reads ?page and ?limit; invalid values are a 400.
func pageParams(c echo.Context) (pageQuery, error) {
	var q pageQuery
	err := echo.QueryParamsBinder(c).
		Int("page", &q.Page).
		Int("limit", &q.Limit).
		BindError()
	if err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, "page and limit must be integers")
	}
	return q, nil
}

// optionalBool reads a true/false query parameter; absent yields nil.
func optionalBool(c echo.Context, name string) (*bool, error) {
	if c.QueryParam(name) == "" {
		return nil, nil
	}
	var v bool
	if err := echo.QueryParamsBinder(c).Bool(name, &v).BindError(); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be true or false")
	}
	return &v, nil
}
