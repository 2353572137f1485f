package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

type Handler struct {
	service *core.QualityService
}

func NewHandler(service *core.QualityService) *Handler {
	return &Handler{service: service}
}

// NewRouter builds the gin engine with recovery, request logging and all
// routes.
func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/indicators", h.ListIndicators)
	router.GET("/reports", h.ListReports)
	router.GET("/layers", h.ListLayers)
	router.GET("/datasets", h.ListDatasets)

	router.GET("/indicator/:name", h.CreateIndicator)
	router.POST("/indicator/:name", h.CreateIndicator)
	router.GET("/report/:name", h.CreateReport)
	router.POST("/report/:name", h.CreateReport)

	router.GET("/results/:dataset/:featureId/:name", h.GetResult)
}

// QualityRequest carries the parameters of indicator and report requests,
// from the query string on GET and from a JSON body on POST.
type QualityRequest struct {
	LayerName         string          `json:"layerName" form:"layerName"`
	Bpolys            json.RawMessage `json:"bpolys" form:"-"`
	Dataset           string          `json:"dataset" form:"dataset"`
	FeatureID         *int            `json:"featureId" form:"featureId"`
	Force             bool            `json:"force" form:"force"`
	AsFeature         bool            `json:"asFeature" form:"asFeature"`
	IncludeData       bool            `json:"includeData" form:"includeData"`
	Flatten           bool            `json:"flatten" form:"flatten"`
	BlockingRed       *bool           `json:"blockingRed" form:"blockingRed"`
	BlockingUndefined *bool           `json:"blockingUndefined" form:"blockingUndefined"`
}

func bindQualityRequest(c *gin.Context) (*QualityRequest, core.Target, error) {
	var req QualityRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
		if bpolys := c.Query("bpolys"); bpolys != "" {
			req.Bpolys = json.RawMessage(bpolys)
		}
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		return nil, core.Target{}, fmt.Errorf("%w: %v", model.ErrInvalidAOI, err)
	}

	target := core.Target{Dataset: req.Dataset, FeatureID: req.FeatureID}
	if len(req.Bpolys) > 0 && string(req.Bpolys) != "null" {
		aoi, err := model.ParseAOI(req.Bpolys)
		if err != nil {
			return nil, core.Target{}, err
		}
		target.AOI = aoi
	}
	return &req, target, nil
}

// featurer is implemented by indicator and report views.
type featurer interface {
	Feature(opts core.FeatureOptions) (json.RawMessage, error)
}

func respondView(c *gin.Context, view featurer, req *QualityRequest) {
	if !req.AsFeature {
		c.JSON(http.StatusOK, CreateSuccessResponse(view))
		return
	}
	fc, err := view.Feature(core.FeatureOptions{IncludeData: req.IncludeData, Flatten: req.Flatten})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CreateSuccessResponse(fc))
}

func (h *Handler) CreateIndicator(c *gin.Context) {
	req, target, err := bindQualityRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.LayerName == "" {
		c.JSON(http.StatusBadRequest, CreateErrorResponse("INVALID_REQUEST", "layerName is required"))
		return
	}

	view, err := h.service.CreateIndicator(c.Request.Context(), core.IndicatorRequest{
		Name:   c.Param("name"),
		Layer:  req.LayerName,
		Target: target,
		Force:  req.Force,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, view, req)
}

func (h *Handler) CreateReport(c *gin.Context) {
	req, target, err := bindQualityRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := h.service.CreateReport(c.Request.Context(), core.ReportRequest{
		Name:              c.Param("name"),
		Target:            target,
		Force:             req.Force,
		BlockingRed:       req.BlockingRed,
		BlockingUndefined: req.BlockingUndefined,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, view, req)
}

func (h *Handler) GetResult(c *gin.Context) {
	featureID, err := strconv.Atoi(c.Param("featureId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, CreateErrorResponse("INVALID_REQUEST", "featureId must be an integer"))
		return
	}
	blob, err := h.service.StoredResult(c.Request.Context(), c.Param("dataset"), featureID, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CreateSuccessResponse(blob))
}

type listEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) ListIndicators(c *gin.Context) {
	manifest := h.service.Registry().Manifest()
	var out []listEntry
	for _, name := range h.service.Registry().IndicatorNames() {
		md, _ := manifest.Indicator(name)
		out = append(out, listEntry{Name: name, Description: md.Description})
	}
	c.JSON(http.StatusOK, CreateSuccessResponse(out))
}

func (h *Handler) ListReports(c *gin.Context) {
	manifest := h.service.Registry().Manifest()
	var out []listEntry
	for _, name := range h.service.Registry().ReportNames() {
		md, _ := manifest.Report(name)
		out = append(out, listEntry{Name: name, Description: md.Description})
	}
	c.JSON(http.StatusOK, CreateSuccessResponse(out))
}

func (h *Handler) ListLayers(c *gin.Context) {
	manifest := h.service.Registry().Manifest()
	var out []model.Layer
	for _, name := range manifest.LayerNames() {
		layer, _ := manifest.Layer(name)
		out = append(out, layer)
	}
	c.JSON(http.StatusOK, CreateSuccessResponse(out))
}

func (h *Handler) ListDatasets(c *gin.Context) {
	manifest := h.service.Registry().Manifest()
	var out []model.Dataset
	for _, name := range manifest.DatasetNames() {
		ds, _ := manifest.Dataset(name)
		out = append(out, ds)
	}
	c.JSON(http.StatusOK, CreateSuccessResponse(out))
}
