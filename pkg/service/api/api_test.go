package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm/llmtest"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository/repositorytest"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/marioweid/evergreeen-multi-agents/pkg/router"
	"github.com/marioweid/evergreeen-multi-agents/pkg/service/api"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool/catalog"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
	roadmapuc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/roadmap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var reportEnd = time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC)

func newServer(t *testing.T, client llm.Client) http.Handler {
	t.Helper()
	gw, _ := repositorytest.NewGateway(t)
	repo := repositorytest.Seed(t, gw)
	engine := retrieval.New(gw, repo)
	scorer, err := impact.New(impact.DefaultConfig(), engine)
	gt.NoError(t, err)

	deps := api.Deps{
		Roadmap:   roadmapuc.New(repo, gw, gw.Dimension()),
		Customers: customeruc.New(repo),
		Retrieval: engine,
		Reports:   report.New(repo, scorer),
	}
	if client != nil {
		r, err := router.New(context.Background(), client, catalog.New(&tool.Client{
			Roadmap:   deps.Roadmap,
			Customers: deps.Customers,
			Retrieval: engine,
			Impact:    scorer,
		}))
		gt.NoError(t, err)
		deps.Router = r
	}
	return api.New(deps, api.WithClock(func() time.Time { return reportEnd })).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		gt.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthAndStats(t *testing.T) {
	h := newServer(t, nil)

	w := do(t, h, http.MethodGet, "/health", nil)
	gt.Equal(t, w.Code, http.StatusOK)
	health := decode[roadmapuc.Health](t, w)
	gt.Equal(t, health.Status, "ok")
	gt.Equal(t, health.Dimension, repositorytest.Dimension)
	gt.True(t, w.Header().Get("X-Request-ID") != "")

	w = do(t, h, http.MethodGet, "/stats", nil)
	gt.Equal(t, w.Code, http.StatusOK)
	stats := decode[model.RoadmapStats](t, w)
	gt.Equal(t, stats.Total, 5)
	gt.Equal(t, stats.ByStatus[model.StatusRollingOut], 2)

	w = do(t, h, http.MethodGet, "/metrics", nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.True(t, strings.Contains(w.Body.String(), "evergreen_retrieval_results"))
}

func TestCustomerLifecycle(t *testing.T) {
	h := newServer(t, nil)

	w := do(t, h, http.MethodPost, "/customers", map[string]any{
		"name":     "Contoso",
		"products": []string{"Teams"},
		"priority": "high",
	})
	gt.Equal(t, w.Code, http.StatusCreated)
	created := decode[model.Customer](t, w)
	gt.Equal(t, created.Priority, model.PriorityHigh)

	w = do(t, h, http.MethodPost, "/customers", map[string]any{"name": "Contoso"})
	gt.Equal(t, w.Code, http.StatusConflict)

	w = do(t, h, http.MethodPost, "/customers", map[string]any{"name": "Fabrikam", "priority": "urgent"})
	gt.Equal(t, w.Code, http.StatusBadRequest)

	w = do(t, h, http.MethodPatch, "/customers/Contoso", map[string]any{"notes": "renewal in Q3"})
	gt.Equal(t, w.Code, http.StatusOK)
	updated := decode[model.Customer](t, w)
	gt.Equal(t, updated.Notes, "renewal in Q3")
	gt.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	w = do(t, h, http.MethodPatch, "/customers/Contoso", map[string]any{})
	gt.Equal(t, w.Code, http.StatusBadRequest)

	w = do(t, h, http.MethodGet, "/customers", nil)
	gt.Equal(t, w.Code, http.StatusOK)
	list := decode[struct {
		Customers []model.Customer `json:"customers"`
	}](t, w)
	gt.A(t, list.Customers).Length(1)

	w = do(t, h, http.MethodDelete, "/customers/Contoso", nil)
	gt.Equal(t, w.Code, http.StatusNoContent)

	w = do(t, h, http.MethodGet, "/customers/Contoso", nil)
	gt.Equal(t, w.Code, http.StatusNotFound)
	gt.True(t, strings.Contains(w.Body.String(), "customer not found"))
}

func TestSearchQuery(t *testing.T) {
	h := newServer(t, nil)

	w := do(t, h, http.MethodPost, "/query", map[string]any{"text": "meeting recording transcript", "limit": 2})
	gt.Equal(t, w.Code, http.StatusOK)
	resp := decode[struct {
		Count int         `json:"count"`
		Items []tool.Item `json:"items"`
	}](t, w)
	gt.Equal(t, resp.Count, 2)
	gt.Equal(t, resp.Items[0].ID, int64(101))
	gt.Equal(t, resp.Items[0].Rank, 1)
	gt.True(t, *resp.Items[0].Relevance >= *resp.Items[1].Relevance)

	w = do(t, h, http.MethodPost, "/query", map[string]any{"text": "meeting", "statuses": []string{"paused"}})
	gt.Equal(t, w.Code, http.StatusBadRequest)

	w = do(t, h, http.MethodPost, "/query", map[string]any{"text": ""})
	gt.Equal(t, w.Code, http.StatusBadRequest)

	w = do(t, h, http.MethodPost, "/query", map[string]any{"text": "teams", "mode": "answer"})
	gt.Equal(t, w.Code, http.StatusServiceUnavailable)
}

func TestAnswerQuery(t *testing.T) {
	client := llmtest.New(
		llmtest.Call(router.ClassifyToolName, map[string]any{"intent": string(model.IntentRoadmapQA)}),
		llmtest.Call("get_roadmap_item", map[string]any{"id": 101}),
		llmtest.Text("Item 101 is rolling out."),
	)
	h := newServer(t, client)

	w := do(t, h, http.MethodPost, "/query", map[string]any{"text": "What is the status of 101?"})
	gt.Equal(t, w.Code, http.StatusOK)
	turn := decode[model.ConversationTurn](t, w)
	gt.Equal(t, turn.Intent, model.IntentRoadmapQA)
	gt.Equal(t, turn.Answer, "Item 101 is rolling out.")
	gt.A(t, turn.ToolCalls).Length(1)
	gt.Equal(t, turn.ToolCalls[0].Name, "get_roadmap_item")
}

func TestGenerateReports(t *testing.T) {
	h := newServer(t, nil)
	w := do(t, h, http.MethodPost, "/customers", map[string]any{"name": "Contoso", "products": []string{"Teams"}})
	gt.Equal(t, w.Code, http.StatusCreated)

	w = do(t, h, http.MethodPost, "/reports", map[string]any{"window": "168h"})
	gt.Equal(t, w.Code, http.StatusOK)
	resp := decode[struct {
		Start    time.Time `json:"start"`
		Reports  []struct {
			Customer string `json:"customer"`
			Items    int    `json:"items"`
			Notable  int    `json:"notable"`
			Body     string `json:"body"`
		} `json:"reports"`
		Failures []any  `json:"failures"`
		Digest   string `json:"digest"`
	}](t, w)
	gt.Equal(t, resp.Start, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	gt.A(t, resp.Reports).Length(1)
	gt.Equal(t, resp.Reports[0].Customer, "Contoso")
	gt.Equal(t, resp.Reports[0].Items, 2)
	gt.Equal(t, resp.Reports[0].Notable, 1)
	gt.A(t, resp.Failures).Length(0)
	gt.True(t, strings.Contains(resp.Digest, "## Medium priority customers"))

	w = do(t, h, http.MethodPost, "/reports", map[string]any{"customers": []string{"Ghost"}})
	gt.Equal(t, w.Code, http.StatusNotFound)

	w = do(t, h, http.MethodPost, "/reports", map[string]any{"window": "a week"})
	gt.Equal(t, w.Code, http.StatusBadRequest)
}
