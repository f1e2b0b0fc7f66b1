package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"origen/internal/origination/api"
	"origen/internal/origination/application"
	"origen/internal/origination/domain"
	"origen/internal/origination/infrastructure/memory"
)

// HandlerSuite tests HTTP handler behavior including error mapping.
//
// Justification: Error-to-status-code mapping is a boundary concern that requires
// HTTP-level testing. Domain errors must translate to appropriate HTTP responses.
type HandlerSuite struct {
	suite.Suite
	mux     *http.ServeMux
	service *application.LifecycleService
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	dataStore := memory.NewDataStore()
	refs := memory.NewReferenceDirectory()
	refs.AddClient(1)
	refs.AddVehicle(2)
	refs.AddSeller(3)

	policy := domain.ApprovalPolicy{
		Thresholds: domain.Thresholds{
			MaxInstallmentToIncome: decimal.RequireFromString("40.00"),
			MinInternalScore:       decimal.RequireFromString("600.00"),
			MinExternalScore:       decimal.RequireFromString("600.00"),
		},
		Mode: domain.PolicyModeAutomatic,
	}

	s.service = application.NewLifecycleService(dataStore, refs, policy)
	handler := api.NewHandler(s.service)

	s.mux = http.NewServeMux()
	handler.RegisterRoutes(s.mux)
}

func (s *HandlerSuite) doRequest(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func createBody(requestNumber string) map[string]any {
	return map[string]any{
		"request_number":        requestNumber,
		"client_id":             1,
		"vehicle_id":            2,
		"seller_id":             3,
		"amount":                "20000.00",
		"term_months":           60,
		"down_payment":          "5000.00",
		"annual_rate":           "12.50",
		"internal_score":        "720.00",
		"external_score":        "680.00",
		"installment_to_income": "35.00",
	}
}

// create posts a valid request and returns its id and version.
func (s *HandlerSuite) create(requestNumber string) (int64, int64) {
	rec := s.doRequest(http.MethodPost, "/credit-requests", createBody(requestNumber))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID      int64 `json:"id"`
		Version int64 `json:"version"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID, resp.Version
}

func (s *HandlerSuite) TestSuccessfulResponses() {
	s.Run("create returns 201 with the amortization plan", func() {
		rec := s.doRequest(http.MethodPost, "/credit-requests", createBody("SOL-2024-001"))

		s.Equal(http.StatusCreated, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("DRAFT", resp["state"])
		s.Equal("Borrador", resp["state_label"])
		s.Equal("337.47", resp["monthly_installment"])
		s.Equal("20248.20", resp["total_payable"])
		s.EqualValues(0, resp["version"])
	})

	s.Run("get returns 200", func() {
		id, _ := s.create("SOL-2024-002")

		rec := s.doRequest(http.MethodGet, fmt.Sprintf("/credit-requests/%d", id), nil)

		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("SOL-2024-002", resp["request_number"])
	})

	s.Run("list filters by state", func() {
		id, version := s.create("SOL-2024-003")
		s.create("SOL-2024-004")

		rec := s.doRequest(http.MethodPost, fmt.Sprintf("/credit-requests/%d/cancel", id),
			map[string]any{"expected_version": version})
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.doRequest(http.MethodGet, "/credit-requests?state=CANCELED", nil)

		s.Equal(http.StatusOK, rec.Code)

		var resp []map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Require().Len(resp, 1)
		s.Equal("CANCELED", resp[0]["state"])
	})

	s.Run("financial update recomputes the plan", func() {
		id, version := s.create("SOL-2024-005")

		rec := s.doRequest(http.MethodPatch, fmt.Sprintf("/credit-requests/%d/financials", id),
			map[string]any{"expected_version": version, "annual_rate": "0"})

		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("250.00", resp["monthly_installment"])
		s.EqualValues(1, resp["version"])
	})

	s.Run("submit then approve", func() {
		id, version := s.create("SOL-2024-006")

		rec := s.doRequest(http.MethodPost, fmt.Sprintf("/credit-requests/%d/submit", id),
			map[string]any{"expected_version": version})
		s.Require().Equal(http.StatusOK, rec.Code)

		var submitted map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &submitted))
		s.Equal("IN_REVIEW", submitted["state"])
		s.Equal("ADMISSIBLE", submitted["verdict"])

		rec = s.doRequest(http.MethodPost, fmt.Sprintf("/credit-requests/%d/decision", id),
			map[string]any{"expected_version": submitted["version"], "decision": "APPROVED"})

		s.Equal(http.StatusOK, rec.Code)

		var decided map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &decided))
		s.Equal("APPROVED", decided["state"])
		s.Equal("Aprobada", decided["state_label"])
	})
}

func (s *HandlerSuite) TestErrorMapping() {
	s.Run("unknown id returns 404", func() {
		rec := s.doRequest(http.MethodGet, "/credit-requests/9999", nil)

		s.Equal(http.StatusNotFound, rec.Code)
		s.Contains(rec.Body.String(), "not found")
	})

	s.Run("duplicate request number returns 409", func() {
		s.create("SOL-2024-001")

		rec := s.doRequest(http.MethodPost, "/credit-requests", createBody("SOL-2024-001"))

		s.Equal(http.StatusConflict, rec.Code)
		s.Contains(rec.Body.String(), "request number already exists")
	})

	s.Run("unknown reference returns 422", func() {
		body := createBody("SOL-2024-010")
		body["seller_id"] = 99

		rec := s.doRequest(http.MethodPost, "/credit-requests", body)

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Contains(rec.Body.String(), "seller")
	})

	s.Run("invalid financials return 400", func() {
		body := createBody("SOL-2024-011")
		body["down_payment"] = "20000.00"

		rec := s.doRequest(http.MethodPost, "/credit-requests", body)

		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("stale expected version returns 409", func() {
		id, version := s.create("SOL-2024-012")

		rec := s.doRequest(http.MethodPatch, fmt.Sprintf("/credit-requests/%d/financials", id),
			map[string]any{"expected_version": version, "term_months": 48})
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.doRequest(http.MethodPatch, fmt.Sprintf("/credit-requests/%d/financials", id),
			map[string]any{"expected_version": version, "term_months": 36})

		s.Equal(http.StatusConflict, rec.Code)
		s.Contains(rec.Body.String(), "concurrent modification")
	})

	s.Run("illegal transition returns 409", func() {
		id, version := s.create("SOL-2024-013")

		rec := s.doRequest(http.MethodPost, fmt.Sprintf("/credit-requests/%d/decision", id),
			map[string]any{"expected_version": version, "decision": "APPROVED"})

		s.Equal(http.StatusConflict, rec.Code)
		s.Contains(rec.Body.String(), "illegal state transition")
	})

	s.Run("update outside DRAFT returns 409", func() {
		id, version := s.create("SOL-2024-014")

		rec := s.doRequest(http.MethodPost, fmt.Sprintf("/credit-requests/%d/submit", id),
			map[string]any{"expected_version": version})
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.doRequest(http.MethodPatch, fmt.Sprintf("/credit-requests/%d/financials", id),
			map[string]any{"expected_version": 1, "term_months": 36})

		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("override without permission returns 422", func() {
		// Advisory mode keeps a reject verdict in review, which is the only
		// state where an override can even be asked for.
		dataStore := memory.NewDataStore()
		refs := memory.NewReferenceDirectory()
		refs.AddClient(1)
		refs.AddVehicle(2)
		refs.AddSeller(3)
		policy := domain.ApprovalPolicy{
			Thresholds: domain.Thresholds{
				MaxInstallmentToIncome: decimal.RequireFromString("40.00"),
				MinInternalScore:       decimal.RequireFromString("600.00"),
				MinExternalScore:       decimal.RequireFromString("600.00"),
			},
			Mode: domain.PolicyModeAdvisory,
		}
		mux := http.NewServeMux()
		api.NewHandler(application.NewLifecycleService(dataStore, refs, policy)).RegisterRoutes(mux)

		do := func(method, path string, body any) *httptest.ResponseRecorder {
			jsonBody, _ := json.Marshal(body)
			req := httptest.NewRequest(method, path, bytes.NewBuffer(jsonBody))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			return rec
		}

		body := createBody("SOL-2024-015")
		body["installment_to_income"] = "55.00"
		rec := do(http.MethodPost, "/credit-requests", body)
		s.Require().Equal(http.StatusCreated, rec.Code)

		var created map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))
		id := int64(created["id"].(float64))

		rec = do(http.MethodPost, fmt.Sprintf("/credit-requests/%d/submit", id),
			map[string]any{"expected_version": 0})
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = do(http.MethodPost, fmt.Sprintf("/credit-requests/%d/decision", id),
			map[string]any{"expected_version": 1, "decision": "APPROVED", "override": true})

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Contains(rec.Body.String(), "override")
	})
}

func (s *HandlerSuite) TestRequestValidation() {
	s.Run("invalid JSON returns 400", func() {
		req := httptest.NewRequest(http.MethodPost, "/credit-requests", bytes.NewBufferString("{invalid"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, req)

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "invalid request body")
	})

	s.Run("missing request_number returns 400", func() {
		body := createBody("")

		rec := s.doRequest(http.MethodPost, "/credit-requests", body)

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "request_number is required")
	})

	s.Run("non-numeric id returns 400", func() {
		rec := s.doRequest(http.MethodGet, "/credit-requests/not-a-number", nil)

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "invalid credit request id")
	})

	s.Run("invalid state filter returns 400", func() {
		rec := s.doRequest(http.MethodGet, "/credit-requests?state=PENDING", nil)

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "invalid state filter")
	})

	s.Run("unknown decision returns 400", func() {
		id, version := s.create("SOL-2024-020")
		rec := s.doRequest(http.MethodPost, fmt.Sprintf("/credit-requests/%d/submit", id),
			map[string]any{"expected_version": version})
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.doRequest(http.MethodPost, fmt.Sprintf("/credit-requests/%d/decision", id),
			map[string]any{"expected_version": 1, "decision": "MAYBE"})

		s.Equal(http.StatusBadRequest, rec.Code)
	})
}
