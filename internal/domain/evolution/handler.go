package evolution

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/physio/internal/platform/auth"
	"github.com/ehr/physio/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/evolution", auth.RequireRole(auth.RolePhysiotherapist, auth.RolePhysician))
	g.GET("/taxonomy", h.GetTaxonomy)
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/:id/dates", h.GetDates)
	g.GET("/patients/:id/comparison", h.GetComparison)
}

func (h *Handler) GetTaxonomy(c echo.Context) error {
	tax := h.svc.Taxonomy()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"groups":          tax.Groups,
		"attribute_count": tax.AttributeCount(),
	})
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetDates(c echo.Context) error {
	tl, err := h.svc.Timeline(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, datesResponse{
		PatientID:   tl.PatientID,
		PatientName: tl.PatientName,
		Dates:       formatDates(tl.Dates),
		Comparable:  tl.Comparable,
	})
}

func (h *Handler) GetComparison(c echo.Context) error {
	recent, err := optionalDay(c, "date")
	if err != nil {
		return err
	}
	baseline, err := optionalDay(c, "compare_to")
	if err != nil {
		return err
	}

	res, err := h.svc.Compare(c.Request().Context(), c.Param("id"), recent, baseline)
	if err != nil {
		return httpError(err)
	}

	resp := comparisonResponse{
		Status:         res.Status,
		PatientID:      res.PatientID,
		PatientName:    res.PatientName,
		AvailableDates: formatDates(res.AvailableDates),
		Summary:        res.Summary,
	}
	if res.Report != nil {
		resp.RecentDate = res.Report.RecentDate.Format(DateLayout)
		resp.BaselineDate = res.Report.BaselineDate.Format(DateLayout)
		resp.Columns = []string{ColumnAttribute, ColumnRecent, ColumnBaseline, ColumnResult}
		resp.Sections = res.Report.Sections
	}
	return c.JSON(http.StatusOK, resp)
}

type datesResponse struct {
	PatientID   string   `json:"patient_id"`
	PatientName string   `json:"patient_name"`
	Dates       []string `json:"dates"`
	Comparable  bool     `json:"comparable"`
}

type comparisonResponse struct {
	Status         ComparisonStatus `json:"status"`
	PatientID      string           `json:"patient_id"`
	PatientName    string           `json:"patient_name"`
	AvailableDates []string         `json:"available_dates"`
	RecentDate     string           `json:"recent_date,omitempty"`
	BaselineDate   string           `json:"baseline_date,omitempty"`
	Columns        []string         `json:"columns,omitempty"`
	Sections       []Section        `json:"sections,omitempty"`
	Summary        *Summary         `json:"summary,omitempty"`
}

// optionalDay parses a YYYY-MM-DD query parameter. An absent parameter
// yields the zero time, which the service resolves from the timeline.
func optionalDay(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := ParseDay(raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+", expected YYYY-MM-DD")
	}
	return t, nil
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(DateLayout)
	}
	return out
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no assessment recorded on that date")
	case errors.Is(err, ErrSameDate):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDataUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "assessment data is unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
