package middleware

import (
	"github.com/OFFIS-RIT/diarygraph/internal/queue"
	"github.com/OFFIS-RIT/diarygraph/internal/storage"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID string
	Role   string
}

// ReaderFactory returns the graph reader of one user.
type ReaderFactory func(userID string) (store.GraphReader, error)

type App struct {
	Queue   queue.Publisher
	Keyfunc jwt.Keyfunc
	S3      storage.ObjectAPI
	Readers ReaderFactory

	MasterAPIKey string
	MasterUserID string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
