package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

// Dataset is a portable snapshot of everything the planner reads. Both YAML and
// JSON files load.
type Dataset struct {
	Jobs []struct {
		Customer      string            `json:"customer"`
		ProjectNumber string            `json:"project_number"`
		ProjectName   string            `json:"project_name"`
		Status        string            `json:"status"`
		CostLines     []models.CostLine `json:"cost_lines"`
		Phases        []models.Phase    `json:"phases"`
		CrewSheets    []struct {
			Month string           `json:"month"`
			Days  []models.CrewDay `json:"days"`
		} `json:"crew_sheets"`
		Forecasts []struct {
			Month string                `json:"month"`
			Weeks []models.ForecastWeek `json:"weeks"`
		} `json:"forecasts"`
		Allocation map[string]float64 `json:"allocation"`
	} `json:"jobs"`
	Workers []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Role   string `json:"role"`
		Active *bool  `json:"active"`
	} `json:"workers"`
	TimeOff []models.TimeOff `json:"time_off"`
}

// ParseDataset decodes YAML or JSON. The document is routed through JSON so
// the models' json field names apply.
func ParseDataset(data []byte) (Dataset, error) {
	var ds Dataset
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ds, err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return ds, err
	}
	err = json.Unmarshal(b, &ds)
	return ds, err
}

// LoadFile reads a dataset file into a new store.
func LoadFile(ctx context.Context, path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	s := New()
	if err := s.Seed(ctx, ds); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed writes a dataset into the store. Keys are always derived from the
// job's identity fields.
func (s *Store) Seed(ctx context.Context, ds Dataset) error {
	for _, dj := range ds.Jobs {
		job := models.NewJob(dj.Customer, dj.ProjectNumber, dj.ProjectName, dj.Status)
		job.CostLines = dj.CostLines
		if err := s.UpsertJobs(ctx, []models.Job{job}); err != nil {
			return err
		}
		for _, p := range dj.Phases {
			p.JobKey = job.Key
			p.Virtual = false
			if p.Hours == 0 && p.Manpower > 0 {
				models.ApplyManpower(&p, p.Manpower)
			}
			if err := s.SavePhase(ctx, &p); err != nil {
				return fmt.Errorf("seed phase %q: %w", p.Title, err)
			}
		}
		for _, cs := range dj.CrewSheets {
			sheet := models.CrewSheet{JobKey: job.Key, Month: cs.Month, Weeks: []models.CrewWeek{{Days: cs.Days}}}
			if err := s.PutCrewSheet(ctx, sheet); err != nil {
				return err
			}
		}
		for _, f := range dj.Forecasts {
			if err := s.PutForecast(ctx, models.WeeklyForecast{JobKey: job.Key, Month: f.Month, Weeks: f.Weeks}); err != nil {
				return err
			}
		}
		if len(dj.Allocation) > 0 {
			if err := s.PutAllocation(ctx, models.MonthlyAllocation{JobKey: job.Key, Percentages: dj.Allocation}); err != nil {
				return err
			}
		}
	}
	for _, dw := range ds.Workers {
		w := models.Worker{ID: dw.ID, Name: dw.Name, Role: dw.Role, Active: dw.Active == nil || *dw.Active}
		if err := s.PutWorker(ctx, w); err != nil {
			return err
		}
	}
	for _, t := range ds.TimeOff {
		if err := s.PutTimeOff(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
