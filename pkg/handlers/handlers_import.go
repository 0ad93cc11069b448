package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

var requiredCostColumns = []string{"customer", "project_name", "cost_type", "hours"}

// parseCostLines reads an estimate export into jobs keyed by their derived
// key. Rows that cannot be read are counted and skipped.
func parseCostLines(r io.Reader) ([]models.Job, int, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int)
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredCostColumns {
		if _, ok := cols[name]; !ok {
			return nil, 0, 0, fmt.Errorf("missing column %q", name)
		}
	}
	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(record []string, name string) float64 {
		s := strings.NewReplacer(",", "", "$", "").Replace(field(record, name))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}

	byKey := make(map[string]*models.Job)
	var order []string
	lines, skipped := 0, 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		customer, name := field(record, "customer"), field(record, "project_name")
		if customer == "" || name == "" {
			skipped++
			continue
		}
		job := models.NewJob(customer, field(record, "project_number"), name, field(record, "status"))
		existing, ok := byKey[job.Key]
		if !ok {
			existing = &job
			byKey[job.Key] = existing
			order = append(order, job.Key)
		}
		if existing.Status == "" {
			existing.Status = job.Status
		}
		existing.CostLines = append(existing.CostLines, models.CostLine{
			JobKey:   job.Key,
			Group:    field(record, "group"),
			CostType: field(record, "cost_type"),
			CostItem: field(record, "cost_item"),
			Sales:    number(record, "sales"),
			Cost:     number(record, "cost"),
			Hours:    number(record, "hours"),
		})
		lines++
	}

	jobs := make([]models.Job, 0, len(order))
	for _, k := range order {
		jobs = append(jobs, *byKey[k])
	}
	return jobs, lines, skipped, nil
}

// ImportCostLines replaces the cost lines of every job named in an uploaded
// CSV file.
func (h *Handler) ImportCostLines(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open upload"})
		return
	}
	defer f.Close()

	jobs, lines, skipped, err := parseCostLines(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.Store.UpsertJobs(ctx, jobs); err != nil {
		fail(c, err)
		return
	}
	h.Planner.InvalidateAll(ctx)
	h.RecordUsage(c, usage{costLines: lines})

	keys := make([]string, 0, len(jobs))
	for _, j := range jobs {
		keys = append(keys, j.Key)
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":       keys,
		"cost_lines": lines,
		"skipped":    skipped,
	})
}
