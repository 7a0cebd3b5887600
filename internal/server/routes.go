package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const requestTimeout = 10 * time.Second

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	e.GET("/chargers/:id/session", s.GetSessionHandler)
	e.GET("/chargers/:id/schedule", s.GetScheduleHandler)
	e.PUT("/chargers/:id/schedule", s.SetScheduleHandler)
	e.POST("/chargers/:id/charge", s.ChargeHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type sessionView struct {
	Session domain.ChargeSession `json:"session"`
	Plan    *domain.DailyPlan    `json:"plan,omitempty"`
}

func (s *Server) GetSessionHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetSessionRequest{
		ChargerId: c.Param("id"),
	}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetSessionResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusNotFound, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, sessionView{
		Session: response.Session,
		Plan:    response.Plan,
	})
}

func (s *Server) GetScheduleHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetScheduleRequest{
		ChargerId: c.Param("id"),
	}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetScheduleResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusNotFound, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, response.Schedule)
}

func (s *Server) SetScheduleHandler(c echo.Context) error {
	var schedule domain.WeeklySchedule
	if err := c.Bind(&schedule); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	chargerCfg, known := s.chargers[c.Param("id")]
	for _, entry := range schedule.Days {
		if !entry.Enabled {
			continue
		}
		if entry.TargetLimitPct > 100 {
			return c.String(http.StatusBadRequest, "target limit must be <= 100")
		}
		if known && !chargerCfg.ValidChargeLimit(entry.TargetLimitPct) {
			return c.String(http.StatusBadRequest, fmt.Sprintf("target limit must be within [%d, %d]",
				chargerCfg.MinChargeLimitPct, chargerCfg.ChargeLimitCeiling()))
		}
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetScheduleRequest{
		ChargerId: c.Param("id"),
		Schedule:  schedule,
	}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.SetScheduleResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusNotFound, response.GetResponseError().Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type chargeCommand struct {
	Enable bool `json:"enable"`
}

func (s *Server) ChargeHandler(c echo.Context) error {
	var cmd chargeCommand
	if err := c.Bind(&cmd); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ChargerChargeRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: c.Param("id")},
		Enable:                     cmd.Enable,
	}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.ChargerChargeResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusNotFound, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"changed": response.Changed})
}
