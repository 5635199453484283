package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// queryBool parses an optional boolean query param. Invalid values are ignored.
func queryBool(ctx echo.Context, name string) *bool {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil
	}
	return &b
}

func bindUserFilter(ctx echo.Context) *user.QueryFilter {
	params := ctx.QueryParams()
	filter := &user.QueryFilter{
		Search:    params.Get("search"),
		Roles:     params["role"],
		Statuses:  params["status"],
		IsBanned:  queryBool(ctx, "is_banned"),
		IsPremium: queryBool(ctx, "is_premium"),
		IsDeleted: queryBool(ctx, "is_deleted"),
	}
	filter.Clean()
	return filter
}
