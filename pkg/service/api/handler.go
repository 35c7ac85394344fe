package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
)

func (s *Server) health(c *gin.Context) {
	h, err := s.deps.Roadmap.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, h)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.deps.Roadmap.Stats(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

const (
	modeAnswer = "answer"
	modeSearch = "search"
)

type queryRequest struct {
	Text      string   `json:"text"`
	Mode      string   `json:"mode"`
	Limit     int      `json:"limit"`
	Products  []string `json:"products"`
	Platforms []string `json:"platforms"`
	Statuses  []string `json:"statuses"`
}

type searchResponse struct {
	Count int         `json:"count"`
	Items []tool.Item `json:"items"`
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, goerr.Wrap(model.ErrInvalidArgument, "invalid request body", goerr.V("reason", err.Error())))
		return
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = modeAnswer
		if s.deps.Router == nil {
			mode = modeSearch
		}
	}

	switch mode {
	case modeSearch:
		s.search(c, req)
	case modeAnswer:
		if s.deps.Router == nil {
			abort(c, goerr.Wrap(model.ErrLLMUnavailable, "no LLM is configured"))
			return
		}
		turn, err := s.deps.Router.Handle(c.Request.Context(), req.Text)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, turn)
	default:
		abort(c, goerr.Wrap(model.ErrInvalidArgument, "unknown query mode", goerr.V("mode", req.Mode)))
	}
}

func (s *Server) search(c *gin.Context, req queryRequest) {
	filter := repository.Filter{Products: req.Products, Platforms: req.Platforms}
	for _, raw := range req.Statuses {
		status, ok := model.ParseStatus(raw)
		if !ok {
			abort(c, goerr.Wrap(model.ErrInvalidArgument, "unknown status", goerr.V("status", raw)))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	results, err := s.deps.Retrieval.Search(c.Request.Context(), retrieval.Query{
		Text:   req.Text,
		Limit:  req.Limit,
		Filter: filter,
	})
	if err != nil {
		abort(c, err)
		return
	}

	resp := searchResponse{Count: len(results), Items: make([]tool.Item, 0, len(results))}
	for _, r := range results {
		item := tool.NewItem(r.Item)
		score := r.Score
		item.Relevance = &score
		item.Rank = r.Rank
		resp.Items = append(resp.Items, item)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listCustomers(c *gin.Context) {
	customers, err := s.deps.Customers.List(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	if customers == nil {
		customers = []*model.Customer{}
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (s *Server) createCustomer(c *gin.Context) {
	var input customeruc.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abort(c, goerr.Wrap(model.ErrInvalidArgument, "invalid request body", goerr.V("reason", err.Error())))
		return
	}

	customer, err := s.deps.Customers.Create(c.Request.Context(), input)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (s *Server) getCustomer(c *gin.Context) {
	customer, err := s.deps.Customers.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *Server) updateCustomer(c *gin.Context) {
	var input customeruc.UpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abort(c, goerr.Wrap(model.ErrInvalidArgument, "invalid request body", goerr.V("reason", err.Error())))
		return
	}

	customer, err := s.deps.Customers.Update(c.Request.Context(), c.Param("name"), input)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *Server) deleteCustomer(c *gin.Context) {
	if err := s.deps.Customers.Delete(c.Request.Context(), c.Param("name")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reportRequest struct {
	Customers []string `json:"customers"`
	// Window is a Go duration such as "168h".
	Window string `json:"window"`
	// End is the exclusive end of the window, RFC 3339. Defaults to now.
	End string `json:"end"`
}

type reportView struct {
	Customer string `json:"customer"`
	Key      string `json:"key,omitempty"`
	Items    int    `json:"items"`
	Notable  int    `json:"notable"`
	Body     string `json:"body"`
}

type failureView struct {
	Customer string `json:"customer"`
	Error    string `json:"error"`
}

type reportResponse struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Reports  []reportView  `json:"reports"`
	Failures []failureView `json:"failures"`
	Digest   string        `json:"digest"`
}

func (s *Server) generateReports(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, goerr.Wrap(model.ErrInvalidArgument, "invalid request body", goerr.V("reason", err.Error())))
		return
	}

	length := s.deps.ReportWindow
	if req.Window != "" {
		d, err := time.ParseDuration(req.Window)
		if err != nil || d <= 0 {
			abort(c, goerr.Wrap(model.ErrInvalidArgument, "invalid window", goerr.V("window", req.Window)))
			return
		}
		length = d
	}
	end := s.now()
	if req.End != "" {
		t, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			abort(c, goerr.Wrap(model.ErrInvalidArgument, "invalid end time", goerr.V("end", req.End)))
			return
		}
		end = t
	}

	window := report.WindowEnding(end, length)
	batch, err := s.deps.Reports.Run(c.Request.Context(), window, req.Customers...)
	if err != nil {
		abort(c, err)
		return
	}

	resp := reportResponse{
		Start:    window.Start,
		End:      window.End,
		Reports:  make([]reportView, 0, len(batch.Reports)),
		Failures: make([]failureView, 0, len(batch.Failures)),
		Digest:   report.RenderBatch(batch),
	}
	for _, r := range batch.Reports {
		v := reportView{Customer: r.Customer.Name, Key: r.Key, Items: len(r.Assessments), Body: r.Body}
		for _, a := range r.Assessments {
			if a.Notable {
				v.Notable++
			}
		}
		resp.Reports = append(resp.Reports, v)
	}
	for _, f := range batch.Failures {
		resp.Failures = append(resp.Failures, failureView{Customer: f.Customer, Error: f.Err.Error()})
	}

	status := http.StatusOK
	if len(batch.Reports) == 0 && len(batch.Failures) > 0 {
		status = statusOf(batch.Failures[0].Err)
	}
	c.JSON(status, resp)
}
