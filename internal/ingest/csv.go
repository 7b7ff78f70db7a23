// Package ingest reads raw procurement exports and maps them onto the
// canonical tender model. Source systems publish wildly different column
// headers for the same concepts, so ingestion resolves each canonical field
// through an ordered synonym list before any validation runs.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Canonical field names.
const (
	FieldID          = "id"
	FieldDate        = "date"
	FieldDepartment  = "department"
	FieldVendor      = "vendor"
	FieldAmount      = "amount"
	FieldBidderCount = "bidder_count"
	FieldDuration    = "duration_days"
	FieldMethod      = "procurement_method"
	FieldDescription = "description"
)

// columnSynonyms maps each canonical field to the headers seen across state
// procurement portals, in priority order. Matching is case-insensitive.
var columnSynonyms = map[string][]string{
	FieldID:          {"id", "tender_id", "contract_id", "ocid"},
	FieldDate:        {"date", "pub_date", "publish_date", "tender_datepublished", "tender_bidopening_date", "tender_tenderperiod_startdate", "award_date"},
	FieldDepartment:  {"department", "dept_name", "buyer_name", "ministry"},
	FieldVendor:      {"vendor", "vendor_name", "supplier", "awarded_supplier"},
	FieldAmount:      {"amount", "contract_amount", "tender_value_amount", "amount_inr", "value"},
	FieldBidderCount: {"bidder_count", "tender_numberoftenderers", "num_bids", "number_of_bids"},
	FieldDuration:    {"duration_days", "contract_duration_days", "contract_duration", "duration"},
	FieldMethod:      {"procurement_method", "proc_method", "tender_procurementmethod", "procedure_type"},
	FieldDescription: {"description", "title", "tender_title", "item_description"},
}

// dateLayouts are tried in order. Portals publish both day-first and ISO
// timestamps.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"02/01/2006",
}

// Reader parses one CSV export into tenders.
type Reader struct {
	// columns maps canonical field -> resolved column index, -1 when the
	// source carries no matching header.
	columns map[string]int
	cr      *csv.Reader
	line    int
	seen    map[string]struct{}
}

// NewReader reads the header row and resolves the column mapping. A source
// without any recognizable amount column is rejected outright: per-cell
// recovery can impute an occasional bad value, not a field the source never
// carries.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, domain.WrapError(domain.KindSchema, domain.BatchScope, "failed to read CSV header", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	columns := make(map[string]int, len(columnSynonyms))
	for field, synonyms := range columnSynonyms {
		columns[field] = -1
		for _, syn := range synonyms {
			if i, ok := index[syn]; ok {
				columns[field] = i
				break
			}
		}
	}

	if columns[FieldAmount] < 0 {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			"no amount column found; expected one of "+strings.Join(columnSynonyms[FieldAmount], ", "))
	}

	return &Reader{
		columns: columns,
		cr:      cr,
		line:    1,
		seen:    make(map[string]struct{}),
	}, nil
}

// HasColumn reports whether the source resolved a column for the field.
func (r *Reader) HasColumn(field string) bool {
	i, ok := r.columns[field]
	return ok && i >= 0
}

// ReadAll consumes the remaining rows. Duplicate tender IDs keep the first
// occurrence. Recoverable issues (bad amounts, bad dates, bad counts) are
// annotated on the tender instead of rejecting it; a zero amount is imputed
// from the batch median downstream.
func (r *Reader) ReadAll() ([]*domain.Tender, error) {
	var tenders []*domain.Tender
	for {
		t, err := r.Next()
		if err == io.EOF {
			return tenders, nil
		}
		if err != nil {
			return nil, err
		}
		if t != nil {
			tenders = append(tenders, t)
		}
	}
}

// Next parses one row. It returns (nil, nil) for duplicate IDs and io.EOF at
// end of input.
func (r *Reader) Next() (*domain.Tender, error) {
	row, err := r.cr.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.line++
	if err != nil {
		return nil, domain.WrapError(domain.KindSchema, fmt.Sprintf("line %d", r.line), "malformed CSV row", err)
	}

	get := func(field string) string {
		i := r.columns[field]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	id := get(FieldID)
	if id == "" {
		id = uuid.New().String()
	}
	if _, dup := r.seen[id]; dup {
		return nil, nil
	}
	r.seen[id] = struct{}{}

	t := &domain.Tender{
		ID:                id,
		Department:        get(FieldDepartment),
		Vendor:            get(FieldVendor),
		ProcurementMethod: get(FieldMethod),
		Description:       get(FieldDescription),
	}

	rawAmount := get(FieldAmount)
	if amount, err := strconv.ParseFloat(strings.ReplaceAll(rawAmount, ",", ""), 64); err == nil {
		t.Amount = amount
	} else {
		issue := "missing amount"
		if rawAmount != "" {
			issue = "non-numeric amount: " + rawAmount
		}
		t.Quality = append(t.Quality, domain.QualityNote{
			Kind: domain.KindDataQuality, Field: FieldAmount, Issue: issue, Action: "imputed from batch median",
		})
	}

	if raw := get(FieldBidderCount); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			t.Quality = append(t.Quality, domain.QualityNote{
				Kind: domain.KindDataQuality, Field: FieldBidderCount, Issue: "non-numeric bidder count: " + raw, Action: "treated as missing",
			})
			n = -1
		}
		t.BidderCount = n
	} else if r.HasColumn(FieldBidderCount) {
		t.BidderCount = -1
		t.Quality = append(t.Quality, domain.QualityNote{
			Kind: domain.KindDataQuality, Field: FieldBidderCount, Issue: "missing bidder count", Action: "treated as missing",
		})
	} else {
		t.BidderCount = -1
	}

	if raw := get(FieldDuration); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			t.Quality = append(t.Quality, domain.QualityNote{
				Kind: domain.KindDataQuality, Field: FieldDuration, Issue: "non-numeric duration: " + raw, Action: "treated as missing",
			})
			n = 0
		}
		t.DurationDays = n
	}

	if raw := get(FieldDate); raw != "" {
		ts, ok := parseDate(raw)
		if !ok {
			t.Quality = append(t.Quality, domain.QualityNote{
				Kind: domain.KindDataQuality, Field: FieldDate, Issue: "unparseable date: " + raw, Action: "timing features disabled",
			})
		} else {
			t.PublishDate = ts
		}
	} else if r.HasColumn(FieldDate) {
		t.Quality = append(t.Quality, domain.QualityNote{
			Kind: domain.KindDataQuality, Field: FieldDate, Issue: "missing publish date", Action: "timing features disabled",
		})
	}

	return t, nil
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// MapRequest converts one API payload into a tender, applying the same
// recoverable-issue annotation as CSV ingestion.
func MapRequest(req *domain.TenderRequest) (*domain.Tender, error) {
	if req.Amount == nil {
		return nil, domain.NewError(domain.KindSchema, req.ID, "amount is required")
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	t := &domain.Tender{
		ID:                id,
		Department:        req.Department,
		Vendor:            req.Vendor,
		Amount:            *req.Amount,
		ProcurementMethod: req.ProcurementMethod,
		Description:       req.Description,
	}
	if req.DurationDays != nil {
		t.DurationDays = *req.DurationDays
	}

	if req.BidderCount == nil {
		t.BidderCount = -1
		t.Quality = append(t.Quality, domain.QualityNote{
			Kind: domain.KindDataQuality, Field: FieldBidderCount, Issue: "missing bidder count", Action: "treated as missing",
		})
	} else {
		t.BidderCount = *req.BidderCount
	}

	if req.Date == "" {
		t.Quality = append(t.Quality, domain.QualityNote{
			Kind: domain.KindDataQuality, Field: FieldDate, Issue: "missing publish date", Action: "timing features disabled",
		})
	} else if ts, ok := parseDate(req.Date); ok {
		t.PublishDate = ts
	} else {
		t.Quality = append(t.Quality, domain.QualityNote{
			Kind: domain.KindDataQuality, Field: FieldDate, Issue: "unparseable date: " + req.Date, Action: "timing features disabled",
		})
	}

	return t, nil
}
