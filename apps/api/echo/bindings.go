package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
)

var (
	orderingParam = "ordering"

	errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	ord.Orderings = core.ParseOrdering(ctx.QueryParam(orderingParam))
}

// contextUser returns the authenticated user loaded by Auth.LoadUser.
func contextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

func contextObject(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get("object").(user.User); ok {
		return usr, nil
	}
	return user.User{}, errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
