package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"MarketSim/internal/domain/models"
	domrepo "MarketSim/internal/domain/repository"
	"MarketSim/internal/middleware"
	"MarketSim/internal/services/scenario"
	"MarketSim/internal/usecase"
	xhttp "MarketSim/pkg/http"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/util"
)

// SimulationHandler exposes the simulator over HTTP. Reads return copies;
// writes go through the simulator's lock or its trade inbox.
type SimulationHandler struct {
	logger *logger.Logger
	sim    *usecase.Simulator
	ticks  domrepo.TickStorage
}

// NewSimulationHandler builds the handler. ticks may be nil when no analytical
// store is configured.
func NewSimulationHandler(l *logger.Logger, sim *usecase.Simulator, ticks domrepo.TickStorage) *SimulationHandler {
	return &SimulationHandler{logger: l, sim: sim, ticks: ticks}
}

func (h *SimulationHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/state", h.State)
	g.GET("/pending", h.Pending)
	g.POST("/pending/:id/resolve", h.Resolve)
	g.POST("/orders", h.SubmitOrder)
	g.POST("/day/start", h.StartDay)
	g.POST("/day/end", h.EndDay)
	g.POST("/step", h.Step)
	g.POST("/snapshots", h.SaveSnapshot)
	g.POST("/snapshots/:run_id/load", h.LoadSnapshot)
	g.GET("/ticks", h.Ticks)
}

func (h *SimulationHandler) State(c echo.Context) error {
	st, err := h.sim.State()
	if err != nil {
		h.logger.Error("copy state", logger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SimulationHandler) Pending(c echo.Context) error {
	p := h.sim.Pending()
	return xhttp.ListResponse(c, p, int64(len(p)))
}

// resolveRequest picks a choice for a pending instance. An empty choice takes
// the instance's default.
type resolveRequest struct {
	ID     int64  `param:"id" validate:"gt=0"`
	Choice string `json:"choice"`
}

func (h *SimulationHandler) Resolve(c echo.Context) error {
	req := &resolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := h.sim.Resolve(c.Request().Context(), req.ID, req.Choice)
	switch res.Status {
	case scenario.StatusResolved:
		return xhttp.SuccessResponse(c, res)
	case scenario.StatusNotFound:
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no pending scenario %d", req.ID))
	case scenario.StatusUnknownChoice:
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown choice %q", req.Choice).WithParam("result", res))
	default:
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("ERR_REQUIREMENT", "choice requirement not met").WithParam("result", res))
	}
}

func (h *SimulationHandler) SubmitOrder(c echo.Context) error {
	req := &models.TradeOrder{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.sim.Submit(c.Request().Context(), "http", *req)
	switch {
	case err == nil:
		return xhttp.AcceptedResponse(c, req)
	case errors.Is(err, middleware.ErrThrottled):
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many orders for "+req.AssetID))
	case errors.Is(err, middleware.ErrInboxFull):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("order inbox full"))
	default:
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
	}
}

func (h *SimulationHandler) StartDay(c echo.Context) error {
	rep, err := h.sim.StartDay(c.Request().Context())
	if errors.Is(err, usecase.ErrDayOpen) {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("ERR_DAY_OPEN", err.Error()))
	}
	if err != nil {
		h.logger.Error("start day", logger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *SimulationHandler) EndDay(c echo.Context) error {
	st, err := h.sim.EndDay(c.Request().Context())
	if errors.Is(err, usecase.ErrDayClosed) {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("ERR_DAY_CLOSED", err.Error()))
	}
	if err != nil {
		h.logger.Error("end day", logger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SimulationHandler) Step(c echo.Context) error {
	rep, err := h.sim.Step(c.Request().Context())
	if err != nil {
		h.logger.Error("manual step", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("step failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *SimulationHandler) SaveSnapshot(c echo.Context) error {
	runID, err := h.sim.Save(c.Request().Context())
	if err != nil {
		h.logger.Error("save snapshot", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("snapshot not saved").WithError(err))
	}
	return xhttp.DataResponse(c, http.StatusCreated, map[string]string{"run_id": runID})
}

func (h *SimulationHandler) LoadSnapshot(c echo.Context) error {
	runID := c.Param("run_id")
	err := h.sim.Load(c.Request().Context(), runID)
	if errors.Is(err, domrepo.ErrSnapshotMissing) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no snapshot for run %s", runID))
	}
	if err != nil {
		h.logger.Error("load snapshot", logger.String("run_id", runID), logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("snapshot not loaded").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"run_id": runID})
}

func (h *SimulationHandler) Ticks(c echo.Context) error {
	if h.ticks == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("tick storage not configured"))
	}
	runID := c.QueryParam("run_id")
	if runID == "" {
		runID = h.sim.RunID()
	}
	fromDay := util.ParseIntDefault(c.QueryParam("from_day"), 1)
	toDay := util.ParseIntDefault(c.QueryParam("to_day"), 0)
	limit := util.ParseIntDefault(c.QueryParam("limit"), 500)

	rows, err := h.ticks.Query(c.Request().Context(), runID, c.QueryParam("asset"), fromDay, toDay, limit)
	if err != nil {
		h.logger.Error("query ticks", logger.String("run_id", runID), logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("tick query failed").WithError(err))
	}
	c.Response().Header().Set("X-Run-Id", runID)
	c.Response().Header().Set("X-From-Day", strconv.Itoa(fromDay))
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
