// Package ingest pulls procurement awards from the external open-data source
// and turns them into borrowers, awards and PENDING applications. The sweep is
// rerunnable at any time: deterministic identity plus database uniqueness make
// a second pass over the same window a sequence of benign skips.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	pkgerrors "credere/pkg/errors"
)

// ContractRecord is one normalized upstream contract entry.
type ContractRecord struct {
	SourceContractID     string
	SupplierID           string
	SupplierName         string
	Title                string
	Description          string
	BuyerName            string
	SourceURL            string
	EntityCode           string
	AwardAmount          decimal.Decimal
	AwardCurrency        string
	AwardDate            *time.Time
	ContractStartDate    *time.Time
	ContractEndDate      *time.Time
	SourceLastUpdatedAt  *time.Time
	ContractStatus       string
	ProcurementMethod    string
	ContractingProcessID string
	ProcurementCategory  string
	PaymentMethod        json.RawMessage
	Raw                  json.RawMessage
}

// SupplierRecord is the upstream's view of one supplier.
type SupplierRecord struct {
	LegalName string
	Email     string
	Address   string
	Type      string
	Sector    string
	Raw       json.RawMessage
}

// Source is the read API the ingestor paginates. An empty page terminates
// pagination.
type Source interface {
	NewContracts(ctx context.Context, page int, since time.Time) ([]ContractRecord, error)
	PreviousContracts(ctx context.Context, supplierID string) ([]ContractRecord, error)
	Supplier(ctx context.Context, supplierID string) (SupplierRecord, error)
}

// HTTPSource reads the SECOP open-data datasets. Transient failures are
// retried with exponential backoff; 4xx responses are permanent and fail the
// request immediately.
type HTTPSource struct {
	client      *http.Client
	baseURL     string
	appToken    string
	pageLimit   int
	maxAttempts uint64
}

type HTTPSourceConfig struct {
	BaseURL     string
	AppToken    string
	PageLimit   int
	Timeout     time.Duration
	MaxAttempts uint64
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 4
	}
	return &HTTPSource{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		appToken:    cfg.AppToken,
		pageLimit:   cfg.PageLimit,
		maxAttempts: cfg.MaxAttempts,
	}
}

// sourceTimeLayout is the upstream's floating timestamp format.
const sourceTimeLayout = "2006-01-02T15:04:05.000"

func (s *HTTPSource) NewContracts(ctx context.Context, page int, since time.Time) ([]ContractRecord, error) {
	q := url.Values{}
	q.Set("$limit", fmt.Sprint(s.pageLimit))
	q.Set("$offset", fmt.Sprint(page*s.pageLimit))
	q.Set("$order", "ultima_actualizacion desc null last")
	q.Set("$where", fmt.Sprintf("es_pyme = 'Si' AND ultima_actualizacion >= '%s'",
		since.UTC().Format(sourceTimeLayout)))

	var raw []json.RawMessage
	if err := s.get(ctx, "/contracts.json", q, &raw); err != nil {
		return nil, err
	}
	return decodeContracts(raw)
}

func (s *HTTPSource) PreviousContracts(ctx context.Context, supplierID string) ([]ContractRecord, error) {
	q := url.Values{}
	q.Set("$where", fmt.Sprintf("documento_proveedor = '%s' AND fecha_de_firma IS NOT NULL", supplierID))

	var raw []json.RawMessage
	if err := s.get(ctx, "/contracts.json", q, &raw); err != nil {
		return nil, err
	}
	return decodeContracts(raw)
}

func (s *HTTPSource) Supplier(ctx context.Context, supplierID string) (SupplierRecord, error) {
	q := url.Values{}
	q.Set("nit_entidad", supplierID)

	var raw []json.RawMessage
	if err := s.get(ctx, "/suppliers.json", q, &raw); err != nil {
		return SupplierRecord{}, err
	}
	if len(raw) == 0 {
		return SupplierRecord{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "supplier %s not found upstream", supplierID)
	}

	var entry struct {
		LegalName string `json:"nombre_entidad"`
		Email     string `json:"correo_entidad"`
		Address   string `json:"direccion"`
		Type      string `json:"tipo_organizacion"`
		Sector    string `json:"sector"`
	}
	if err := json.Unmarshal(raw[0], &entry); err != nil {
		return SupplierRecord{}, pkgerrors.Wrap(err, pkgerrors.CodeSourceFormat, "malformed supplier record")
	}
	return SupplierRecord{
		LegalName: entry.LegalName,
		Email:     entry.Email,
		Address:   entry.Address,
		Type:      entry.Type,
		Sector:    entry.Sector,
		Raw:       raw[0],
	}, nil
}

// get performs one retried GET. 5xx and transport errors back off; 4xx is
// permanent.
func (s *HTTPSource) get(ctx context.Context, path string, q url.Values, out any) error {
	u := s.baseURL + path + "?" + q.Encode()

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if s.appToken != "" {
			req.Header.Set("X-App-Token", s.appToken)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("upstream returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(pkgerrors.Newf(pkgerrors.CodeBadRequest,
				"upstream rejected request with %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(pkgerrors.Wrap(err, pkgerrors.CodeSourceFormat, "malformed upstream response"))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxAttempts),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		var de *pkgerrors.DomainError
		if errors.As(err, &de) {
			return err
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "upstream request failed")
	}
	return nil
}

type rawContract struct {
	SourceContractID     string          `json:"id_contrato"`
	SupplierID           string          `json:"documento_proveedor"`
	SupplierName         string          `json:"proveedor_adjudicado"`
	Title                string          `json:"nombre_del_procedimiento"`
	Description          string          `json:"descripci_n_del_procedimiento"`
	BuyerName            string          `json:"nombre_entidad"`
	EntityCode           string          `json:"codigo_entidad"`
	AwardAmount          string          `json:"valor_del_contrato"`
	AwardDate            string          `json:"fecha_adjudicacion"`
	StartDate            string          `json:"fecha_de_inicio_del_contrato"`
	EndDate              string          `json:"fecha_de_fin_del_contrato"`
	LastUpdated          string          `json:"ultima_actualizacion"`
	ContractStatus       string          `json:"estado_contrato"`
	ProcurementMethod    string          `json:"modalidad_de_contratacion"`
	ContractingProcessID string          `json:"proceso_de_compra"`
	ProcurementCategory  string          `json:"tipo_de_contrato"`
	SourceURL            json.RawMessage `json:"urlproceso"`
	AdvancePayment       string          `json:"habilita_pago_adelantado"`
	AdvancePaymentAmount string          `json:"valor_de_pago_adelantado"`
}

func (rc rawContract) paymentMethod() json.RawMessage {
	if rc.AdvancePayment == "" && rc.AdvancePaymentAmount == "" {
		return nil
	}
	b, err := json.Marshal(map[string]string{
		"habilita_pago_adelantado": rc.AdvancePayment,
		"valor_de_pago_adelantado": rc.AdvancePaymentAmount,
	})
	if err != nil {
		return nil
	}
	return b
}

func decodeContracts(raw []json.RawMessage) ([]ContractRecord, error) {
	records := make([]ContractRecord, 0, len(raw))
	for _, entry := range raw {
		var rc rawContract
		if err := json.Unmarshal(entry, &rc); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeSourceFormat, "malformed contract record")
		}

		amount, err := decimal.NewFromString(rc.AwardAmount)
		if err != nil {
			amount = decimal.Zero
		}

		var sourceURL string
		if len(rc.SourceURL) > 0 {
			var u struct {
				URL string `json:"url"`
			}
			_ = json.Unmarshal(rc.SourceURL, &u)
			sourceURL = u.URL
		}

		records = append(records, ContractRecord{
			SourceContractID:     rc.SourceContractID,
			SupplierID:           rc.SupplierID,
			SupplierName:         rc.SupplierName,
			Title:                rc.Title,
			Description:          rc.Description,
			BuyerName:            rc.BuyerName,
			SourceURL:            sourceURL,
			EntityCode:           rc.EntityCode,
			AwardAmount:          amount,
			AwardCurrency:        "COP",
			AwardDate:            parseSourceTime(rc.AwardDate),
			ContractStartDate:    parseSourceTime(rc.StartDate),
			ContractEndDate:      parseSourceTime(rc.EndDate),
			SourceLastUpdatedAt:  parseSourceTime(rc.LastUpdated),
			ContractStatus:       rc.ContractStatus,
			ProcurementMethod:    rc.ProcurementMethod,
			ContractingProcessID: rc.ContractingProcessID,
			ProcurementCategory:  rc.ProcurementCategory,
			PaymentMethod:        rc.paymentMethod(),
			Raw:                  entry,
		})
	}
	return records, nil
}

func parseSourceTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{sourceTimeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
