package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/crew"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

// Store is the gorm-backed persistence collaborator.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps an open database.
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

func (s *Store) Jobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := s.DB.WithContext(ctx).Preload("CostLines").Order("key").Find(&jobs).Error
	return jobs, err
}

func (s *Store) Job(ctx context.Context, key string) (*models.Job, error) {
	var job models.Job
	if err := s.DB.WithContext(ctx).Preload("CostLines").Where("key = ?", key).First(&job).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// UpsertJobs writes each job under its derived key and replaces its cost
// lines. Phases and schedules attached to the key are left alone.
func (s *Store) UpsertJobs(ctx context.Context, jobs []models.Job) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, j := range jobs {
			j.DeriveKey()
			lines := j.CostLines
			j.CostLines = nil

			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"customer", "project_number", "project_name", "status", "updated_at"}),
			}).Create(&j).Error
			if err != nil {
				return err
			}
			if err := tx.Where("job_key = ?", j.Key).Delete(&models.CostLine{}).Error; err != nil {
				return err
			}
			if len(lines) == 0 {
				continue
			}
			for i := range lines {
				lines[i].ID = 0
				lines[i].JobKey = j.Key
			}
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Phases(ctx context.Context, jobKey string) ([]models.Phase, error) {
	var phases []models.Phase
	err := s.DB.WithContext(ctx).Where("job_key = ?", jobKey).Order("start_date, title, id").Find(&phases).Error
	return phases, err
}

func (s *Store) Phase(ctx context.Context, id string) (*models.Phase, error) {
	var p models.Phase
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// SavePhase creates or replaces a phase. Virtual phases are refused.
func (s *Store) SavePhase(ctx context.Context, p *models.Phase) error {
	if p.Virtual {
		return models.ErrVirtualPhase
	}
	db := s.DB.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Job{}).Where("key = ?", p.JobKey).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Tasks == nil {
		p.Tasks = []string{}
	}
	return db.Save(p).Error
}

func (s *Store) DeletePhase(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Phase{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) CrewSheets(ctx context.Context, jobKey string) ([]models.CrewSheet, error) {
	var sheets []models.CrewSheet
	err := s.DB.WithContext(ctx).Where("job_key = ?", jobKey).Order("month").Find(&sheets).Error
	return sheets, err
}

// PutCrewSheet upserts on (job_key, month).
func (s *Store) PutCrewSheet(ctx context.Context, cs models.CrewSheet) error {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_key"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"weeks", "updated_at"}),
	}).Create(&cs).Error
}

func (s *Store) Forecasts(ctx context.Context, jobKey string) ([]models.WeeklyForecast, error) {
	var out []models.WeeklyForecast
	err := s.DB.WithContext(ctx).Where("job_key = ?", jobKey).Order("month").Find(&out).Error
	return out, err
}

// PutForecast upserts on (job_key, month).
func (s *Store) PutForecast(ctx context.Context, f models.WeeklyForecast) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_key"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"weeks", "updated_at"}),
	}).Create(&f).Error
}

// Allocation returns nil when the job has none.
func (s *Store) Allocation(ctx context.Context, jobKey string) (*models.MonthlyAllocation, error) {
	var a models.MonthlyAllocation
	err := s.DB.WithContext(ctx).Where("job_key = ?", jobKey).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) PutAllocation(ctx context.Context, a models.MonthlyAllocation) error {
	return s.DB.WithContext(ctx).Save(&a).Error
}

func (s *Store) Workers(ctx context.Context) ([]models.Worker, error) {
	var ws []models.Worker
	err := s.DB.WithContext(ctx).Order("id").Find(&ws).Error
	return ws, err
}

func (s *Store) PutWorker(ctx context.Context, w models.Worker) error {
	return s.DB.WithContext(ctx).Save(&w).Error
}

// TimeOffOn returns leave requests covering date. SQL narrows on the end
// date; coverage is decided after parsing.
func (s *Store) TimeOffOn(ctx context.Context, date string) ([]models.TimeOff, error) {
	d, ok := calendar.ParseDate(date)
	if !ok {
		return nil, crew.ErrInvalidDate
	}
	dk := calendar.DateKey(d)
	var rows []models.TimeOff
	err := s.DB.WithContext(ctx).
		Where("end_date >= ?", dk).
		Order("id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, t := range rows {
		if t.Covers(d) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) PutTimeOff(ctx context.Context, t models.TimeOff) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Save(&t).Error
}

// DayAssignments reads the ledger row for date. Before the first write the
// crews come from that month's crew sheets at version zero.
func (s *Store) DayAssignments(ctx context.Context, date string) (crew.Snapshot, error) {
	return dayAssignments(s.DB.WithContext(ctx), date)
}

func dayAssignments(db *gorm.DB, date string) (crew.Snapshot, error) {
	snap := crew.Snapshot{Date: date, Crews: map[string][]string{}}
	var row CrewLedger
	err := db.Where("date = ?", date).First(&row).Error
	if err == nil {
		snap.Version = row.Version
		for l, ws := range row.Crews {
			snap.Crews[l] = ws
		}
		return snap, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, err
	}

	sheets, err := sheetsForDate(db, date)
	if err != nil {
		return snap, err
	}
	for _, cs := range sheets {
		d, ok := cs.Day(date)
		if !ok || d.CrewLeaderID == "" {
			continue
		}
		for _, w := range d.WorkerIDs {
			if !contains(snap.Crews[d.CrewLeaderID], w) {
				snap.Crews[d.CrewLeaderID] = append(snap.Crews[d.CrewLeaderID], w)
			}
		}
	}
	return snap, nil
}

func sheetsForDate(db *gorm.DB, date string) ([]models.CrewSheet, error) {
	if len(date) < 7 {
		return nil, crew.ErrInvalidDate
	}
	var sheets []models.CrewSheet
	err := db.Where("month = ?", date[:7]).Find(&sheets).Error
	return sheets, err
}

// SaveCrew writes one leader's crew when the ledger row is still at
// expectedVersion, then mirrors the worker list into the crew sheets.
func (s *Store) SaveCrew(ctx context.Context, date, leader string, workers []string, expectedVersion int64) (int64, error) {
	var next int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snap, err := dayAssignments(tx, date)
		if err != nil {
			return err
		}
		if snap.Version != expectedVersion {
			return crew.ErrVersionConflict
		}
		if len(workers) == 0 {
			delete(snap.Crews, leader)
		} else {
			snap.Crews[leader] = workers
		}
		next = expectedVersion + 1
		row := CrewLedger{Date: date, Version: next, Crews: snap.Crews, UpdatedAt: time.Now()}

		if expectedVersion == 0 {
			// A concurrent first write loses on the primary key.
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return crew.ErrVersionConflict
			}
		} else {
			res := tx.Model(&CrewLedger{}).
				Where("date = ? AND version = ?", date, expectedVersion).
				Select("version", "crews", "updated_at").
				Updates(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return crew.ErrVersionConflict
			}
		}
		return mirrorCrew(tx, date, leader, workers)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func mirrorCrew(tx *gorm.DB, date, leader string, workers []string) error {
	sheets, err := sheetsForDate(tx, date)
	if err != nil {
		return err
	}
	for i := range sheets {
		d, ok := sheets[i].Day(date)
		if !ok || d.CrewLeaderID != leader {
			continue
		}
		d.WorkerIDs = append([]string{}, workers...)
		if err := tx.Model(&sheets[i]).Select("weeks", "updated_at").Updates(&sheets[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
