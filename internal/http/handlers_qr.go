package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/qr"
)

type qrDataURLResponse struct {
	Success     bool         `json:"success"`
	DataURL     string       `json:"dataUrl"`
	CustomerURL string       `json:"customerUrl"`
	TableID     core.TableID `json:"tableId"`
	TableName   string       `json:"tableName"`
}

// qrParams reads the table from the path and the rest from the query string.
// The tenant id is resolved the same way request creation resolves it.
func (s *Service) qrParams(r *http.Request) (qr.Params, error) {
	q := r.URL.Query()
	tenantID, err := s.requests.Tenants().Resolve(q.Get("tenant_id"))
	if err != nil {
		return qr.Params{}, err
	}
	decorate, _ := strconv.ParseBool(q.Get("decorate"))
	return qr.Params{
		TableID:   core.TableID(chi.URLParam(r, "tableId")),
		TableName: q.Get("table_name"),
		TenantID:  tenantID,
		Business:  q.Get("business"),
		BaseURL:   q.Get("custom_url"),
		Decorate:  decorate,
	}, nil
}

func (s *Service) handleQRDataURL(w http.ResponseWriter, r *http.Request) {
	p, err := s.qrParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	code, err := s.qr.Generate(p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qrDataURLResponse{
		Success:     true,
		DataURL:     qr.DataURL(code.PNG),
		CustomerURL: code.Link,
		TableID:     code.TableID,
		TableName:   code.TableName,
	})
}

func (s *Service) handleQRDownload(w http.ResponseWriter, r *http.Request) {
	p, err := s.qrParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	code, err := s.qr.Generate(p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "table-"+string(code.TableID)+"-qr.png"))
	w.Header().Set("Content-Length", strconv.Itoa(len(code.PNG)))
	_, _ = w.Write(code.PNG)
}
