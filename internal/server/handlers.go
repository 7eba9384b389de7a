package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/record"
	"github.com/johnayoung/jazamiti-consensus/internal/rules"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ConfigErrorResponse is returned instead of processing records when the
// configuration is invalid.
type ConfigErrorResponse struct {
	ErrorResponse
	Report config.Report `json:"report"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Record record.Record `json:"record" binding:"required"`
}

// ValidateResponse is the body of a successful POST /v1/validate.
type ValidateResponse struct {
	RecordID  string           `json:"record_id"`
	Rules     []rules.Check    `json:"rules"`
	Consensus consensus.Result `json:"consensus"`
}

// InsightsRequest is the body of POST /v1/insights.
type InsightsRequest struct {
	Records record.Dataset `json:"records" binding:"required,min=1"`
}

// InsightsResponse is the body of a successful POST /v1/insights.
type InsightsResponse struct {
	Reports []provider.InsightReport `json:"reports"`
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

// HandleStatus handles GET /v1/status.
func (s *Server) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

// HandleConfigValidate handles GET /v1/config/validate.
//
// Response:
//
//	200 OK: config.Report, valid or not
func (s *Server) HandleConfigValidate(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.ValidateConfiguration())
}

// HandleValidate handles POST /v1/validate.
//
// Runs the rule checks over the single record and asks every backend for a
// verdict. Backend failures never produce an error status; they are folded
// into the consensus reasoning.
//
// Response:
//
//	200 OK: ValidateResponse
//	400 Bad Request: Missing or malformed record
//	503 Service Unavailable: ConfigErrorResponse
func (s *Server) HandleValidate(c *gin.Context) {
	logger := s.logger.With("request_id", c.GetString("request_id"), "handler", "HandleValidate")

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ds := record.Dataset{req.Record}
	res := s.engine.ValidateWithConsensus(c.Request.Context(), req.Record)

	logger.Info("Record validated",
		"record_id", req.Record.ID(),
		"final_decision", res.FinalDecision,
		"consensus_reached", res.ConsensusReached)

	c.JSON(http.StatusOK, ValidateResponse{
		RecordID:  req.Record.ID(),
		Rules:     rules.RunAll(ds),
		Consensus: res,
	})
}

// HandleInsights handles POST /v1/insights.
//
// Response:
//
//	200 OK: InsightsResponse, possibly with no reports
//	400 Bad Request: Missing or empty records
//	503 Service Unavailable: ConfigErrorResponse
func (s *Server) HandleInsights(c *gin.Context) {
	logger := s.logger.With("request_id", c.GetString("request_id"), "handler", "HandleInsights")

	var req InsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	reports := s.engine.GenerateInsightsWithConsensus(c.Request.Context(), req.Records)
	logger.Info("Insights generated", "records", len(req.Records), "reports", len(reports))

	c.JSON(http.StatusOK, InsightsResponse{Reports: reports})
}
