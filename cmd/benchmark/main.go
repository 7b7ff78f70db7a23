// Benchmark tool for testing Kestrel against labeled procurement data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/labeled_tenders.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled tender data (with a fraud/suspicious label column)
//   2. Submits the tenders to Kestrel in batches for scoring
//   3. Compares Kestrel's risk category with the actual labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// LabeledTender is a row from a labeled procurement dataset.
type LabeledTender struct {
	ID           string
	Date         string
	Department   string
	Vendor       string
	Amount       float64
	BidderCount  int
	DurationDays int
	Method       string
	IsSuspicious bool
}

// BatchRequest is the Kestrel API request format.
type BatchRequest struct {
	Label   string          `json:"label,omitempty"`
	Tenders []TenderRequest `json:"tenders"`
}

// TenderRequest mirrors the API's tender submission shape.
type TenderRequest struct {
	ID                string   `json:"id"`
	Date              string   `json:"date"`
	Department        string   `json:"department"`
	Vendor            string   `json:"vendor"`
	Amount            *float64 `json:"amount"`
	BidderCount       *int     `json:"bidder_count,omitempty"`
	DurationDays      *int     `json:"duration_days,omitempty"`
	ProcurementMethod string   `json:"procurement_method"`
}

// BatchResponse is the Kestrel API response format.
type BatchResponse struct {
	BatchID string `json:"batchId"`
	Status  string `json:"status"`
	Size    int    `json:"size"`
}

// RiskReport is the subset of the report payload the benchmark needs.
type RiskReport struct {
	TenderID        string  `json:"tenderId"`
	FusedScore      float64 `json:"fusedScore"`
	RiskCategory    string  `json:"riskCategory"`
	DetectionSource string  `json:"detectionSource"`
	HiddenRisk      bool    `json:"hiddenRisk"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int // Suspicious scored MEDIUM or HIGH
	FalsePositives int // Clean scored MEDIUM or HIGH
	TrueNegatives  int // Clean scored LOW
	FalseNegatives int // Suspicious scored LOW (missed!)

	TotalProcessed  int
	TotalSuspicious int
	TotalClean      int
	HiddenRisks     int
	TotalErrors     int
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled tender CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum tenders to process (0 = all)")
	batchSize := flag.Int("batch", 500, "Tenders per scoring batch")
	highOnly := flag.Bool("high-only", false, "Count only HIGH as a positive prediction")
	verbose := flag.Bool("verbose", false, "Print each tender result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labeled_tenders.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("================================================================")
	fmt.Println("        KESTREL BENCHMARK - Labeled Procurement Data")
	fmt.Println("================================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Batch Size:  %d\n", *batchSize)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("High Only:   %v\n", *highOnly)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nReading labeled data from %s...\n", *csvPath)
	tenders, err := readLabeledCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d tenders\n", len(tenders))

	suspicious := 0
	for _, t := range tenders {
		if t.IsSuspicious {
			suspicious++
		}
	}
	fmt.Printf("  - Suspicious: %d (%.2f%%)\n", suspicious, 100*float64(suspicious)/float64(len(tenders)))
	fmt.Printf("  - Clean:      %d (%.2f%%)\n", len(tenders)-suspicious, 100*float64(len(tenders)-suspicious)/float64(len(tenders)))

	fmt.Printf("\nScoring in batches of %d...\n", *batchSize)
	startTime := time.Now()
	metrics := runBenchmark(tenders, *baseURL, *tenantID, *batchSize, *highOnly, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// labelColumns are accepted names for the ground-truth label.
var labelColumns = []string{"is_suspicious", "is_fraud", "label"}

func readLabeledCSV(path string, limit int) ([]LabeledTender, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	labelCol := -1
	for _, name := range labelColumns {
		if idx, ok := colIndex[name]; ok {
			labelCol = idx
			break
		}
	}
	if labelCol < 0 {
		return nil, fmt.Errorf("no label column found (expected one of %v)", labelColumns)
	}

	col := func(record []string, name string) string {
		if idx, ok := colIndex[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	var tenders []LabeledTender
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(col(record, "contract_amount"), 64)
		if err != nil {
			continue
		}
		bidders, _ := strconv.Atoi(col(record, "num_bids"))
		duration, _ := strconv.Atoi(col(record, "contract_duration_days"))

		t := LabeledTender{
			ID:           col(record, "tender_id"),
			Date:         col(record, "pub_date"),
			Department:   col(record, "dept_name"),
			Vendor:       col(record, "vendor_name"),
			Amount:       amount,
			BidderCount:  bidders,
			DurationDays: duration,
			Method:       col(record, "proc_method"),
			IsSuspicious: record[labelCol] == "1" || strings.EqualFold(record[labelCol], "true"),
		}

		tenders = append(tenders, t)
		if limit > 0 && len(tenders) >= limit {
			break
		}
	}

	return tenders, nil
}

func runBenchmark(tenders []LabeledTender, baseURL, tenantID string, batchSize int, highOnly, verbose bool) *Metrics {
	metrics := &Metrics{}
	client := &http.Client{Timeout: 120 * time.Second}

	for start := 0; start < len(tenders); start += batchSize {
		end := start + batchSize
		if end > len(tenders) {
			end = len(tenders)
		}
		chunk := tenders[start:end]

		reports, err := scoreBatch(client, baseURL, tenantID, chunk)
		if err != nil {
			fmt.Printf("ERROR: batch %d-%d failed: %v\n", start, end, err)
			metrics.TotalErrors += len(chunk)
			continue
		}

		byID := make(map[string]*RiskReport, len(reports))
		for i := range reports {
			byID[reports[i].TenderID] = &reports[i]
		}

		for _, t := range chunk {
			report, ok := byID[t.ID]
			if !ok {
				metrics.TotalErrors++
				continue
			}
			metrics.TotalProcessed++

			if t.IsSuspicious {
				metrics.TotalSuspicious++
			} else {
				metrics.TotalClean++
			}
			if report.HiddenRisk {
				metrics.HiddenRisks++
			}

			predicted := report.RiskCategory == "HIGH"
			if !highOnly {
				predicted = predicted || report.RiskCategory == "MEDIUM"
			}
			actual := t.IsSuspicious

			switch {
			case predicted && actual:
				metrics.TruePositives++
			case predicted && !actual:
				metrics.FalsePositives++
			case !predicted && !actual:
				metrics.TrueNegatives++
			default:
				metrics.FalseNegatives++
			}

			if verbose {
				status := "ok  "
				if predicted != actual {
					status = "MISS"
				}
				fmt.Printf("%s %-14s | Amount: %12.2f | Suspicious: %-5v | Kestrel: %-6s (%.1f) | Source: %s\n",
					status, t.ID, t.Amount, t.IsSuspicious,
					report.RiskCategory, report.FusedScore, report.DetectionSource)
			}
		}
	}

	return metrics
}

func scoreBatch(client *http.Client, baseURL, tenantID string, chunk []LabeledTender) ([]RiskReport, error) {
	req := BatchRequest{Label: "benchmark", Tenders: make([]TenderRequest, 0, len(chunk))}
	for i := range chunk {
		t := chunk[i]
		amount := t.Amount
		tr := TenderRequest{
			ID:                t.ID,
			Date:              t.Date,
			Department:        t.Department,
			Vendor:            t.Vendor,
			Amount:            &amount,
			ProcurementMethod: t.Method,
		}
		if t.BidderCount > 0 {
			bidders := t.BidderCount
			tr.BidderCount = &bidders
		}
		if t.DurationDays > 0 {
			duration := t.DurationDays
			tr.DurationDays = &duration
		}
		req.Tenders = append(req.Tenders, tr)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("submit status %d", resp.StatusCode)
	}

	var batchResp BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batchResp); err != nil {
		return nil, err
	}

	// Fetch the scored reports for the batch
	listReq, err := http.NewRequest(http.MethodGet, baseURL+"/batches/"+batchResp.BatchID+"/reports", nil)
	if err != nil {
		return nil, err
	}
	listReq.Header.Set("X-Tenant-ID", tenantID)

	listResp, err := client.Do(listReq)
	if err != nil {
		return nil, err
	}
	defer listResp.Body.Close()

	if listResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list status %d", listResp.StatusCode)
	}

	var result struct {
		Reports []RiskReport `json:"reports"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Reports, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n================================================================")
	fmt.Println("                      BENCHMARK RESULTS")
	fmt.Println("================================================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Suspicious: %d\n", m.TotalSuspicious)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Hidden Risks:     %d\n", m.HiddenRisks)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   RISK        LOW")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  S  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("           C  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	accuracy := float64(0)
	if m.TotalProcessed > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(m.TotalProcessed)
	}

	fmt.Printf("\nPERFORMANCE METRICS\n")
	fmt.Printf("   Precision: %.4f  (of flagged, how many were suspicious)\n", precision)
	fmt.Printf("   Recall:    %.4f  (of suspicious, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:  %.4f\n", f1)
	fmt.Printf("   Accuracy:  %.4f\n", accuracy)

	fmt.Printf("\nTHROUGHPUT\n")
	fmt.Printf("   Duration:     %v\n", duration.Round(time.Millisecond))
	if duration > 0 && m.TotalProcessed > 0 {
		fmt.Printf("   Tenders/sec:  %.1f\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
