package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/diarygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	"github.com/labstack/echo/v4"
)

type recordResponse struct {
	Kind   common.Kind   `json:"kind"`
	Record common.Record `json:"record"`
}

func toRecordResponse(rec common.Record) recordResponse {
	return recordResponse{Kind: rec.GetKind(), Record: rec}
}

type getRecordParams struct {
	ID string `param:"id" validate:"required"`
}

// GetRecordHandler returns one record of the user's global set.
func GetRecordHandler(c echo.Context) error {
	type getRecordResponse struct {
		Message string          `json:"message"`
		Data    *recordResponse `json:"data,omitempty"`
	}

	params := new(getRecordParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRecordResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRecordResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getRecordResponse{
			Message: "Unauthorized",
		})
	}

	reader, err := c.(*middleware.AppContext).App.Readers(user.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getRecordResponse{
			Message: "Internal server error",
		})
	}

	rec, err := reader.GetRecord(c.Request().Context(), params.ID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, getRecordResponse{
			Message: "Record not found",
		})
	}
	if err != nil {
		logger.Error("[Server][Records] Failed to load record", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getRecordResponse{
			Message: "Internal server error",
		})
	}

	res := toRecordResponse(rec)
	return c.JSON(http.StatusOK, getRecordResponse{
		Message: "Record retrieved successfully",
		Data:    &res,
	})
}

// GetRecordConnectionsHandler returns the records that share a relationship
// with the given record.
func GetRecordConnectionsHandler(c echo.Context) error {
	type getConnectionsResponse struct {
		Message string           `json:"message"`
		Data    []recordResponse `json:"data"`
	}

	params := new(getRecordParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getConnectionsResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getConnectionsResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getConnectionsResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	reader, err := c.(*middleware.AppContext).App.Readers(user.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getConnectionsResponse{
			Message: "Internal server error",
		})
	}

	if _, err := reader.GetRecord(ctx, params.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getConnectionsResponse{
				Message: "Record not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, getConnectionsResponse{
			Message: "Internal server error",
		})
	}

	connected, err := reader.GetConnectedRecords(ctx, []string{params.ID})
	if err != nil {
		logger.Error("[Server][Records] Failed to load connections", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getConnectionsResponse{
			Message: "Internal server error",
		})
	}

	data := make([]recordResponse, 0, len(connected))
	for _, rec := range connected {
		data = append(data, toRecordResponse(rec))
	}

	return c.JSON(http.StatusOK, getConnectionsResponse{
		Message: "Connections retrieved successfully",
		Data:    data,
	})
}
