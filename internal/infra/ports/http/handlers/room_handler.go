package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/TalkRooms/internal/infra/appctx"
	"github.com/qrave1/TalkRooms/internal/infra/ports/http/dto"
	"github.com/qrave1/TalkRooms/internal/usecase"
)

type RoomHandler struct {
	roomUsecase usecase.RoomUsecase
	statsRepo   repository.UserStatsRepository
}

func NewRoomHandler(roomUsecase usecase.RoomUsecase, statsRepo repository.UserStatsRepository) *RoomHandler {
	return &RoomHandler{roomUsecase: roomUsecase, statsRepo: statsRepo}
}

// RosterHandler отдаёт состав живой комнаты из памяти координатора
func (h *RoomHandler) RosterHandler(c echo.Context) error {
	roomID := c.Param("id")
	if roomID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "room id is required"})
	}

	roster, ok := h.roomUsecase.Roster(roomID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "room is not live"})
	}

	return c.JSON(http.StatusOK, dto.NewRosterResponse(roster))
}

func (h *RoomHandler) MyStatsHandler(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	stats, err := h.statsRepo.GetStats(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusOK, dto.NewUserStatsResponse(userID, nil))
		}

		slog.Error("get user stats", slog.Any(constant.Error, err), slog.String(constant.UserID, userID))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get stats"})
	}

	return c.JSON(http.StatusOK, dto.NewUserStatsResponse(userID, stats))
}
