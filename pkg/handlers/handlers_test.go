package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arnavshah/capacity-scheduler-api/pkg/auth"
	"github.com/arnavshah/capacity-scheduler-api/pkg/cache"
	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
	"github.com/arnavshah/capacity-scheduler-api/pkg/crew"
	"github.com/arnavshah/capacity-scheduler-api/pkg/database"
	"github.com/arnavshah/capacity-scheduler-api/pkg/memstore"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	store  *memstore.Store
	key    string
	job    models.Job
	resync []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("API_MASTER_SECRET", "test-secret")
	t.Setenv("JWT_SECRET", "jwt-secret")

	db, err := database.Open("", filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	store := memstore.New()
	job := models.NewJob("Acme", "100", "Depot", "In Progress")
	job.CostLines = []models.CostLine{
		{CostType: "Labor", Group: "Flatwork", CostItem: "Flatwork pour", Hours: 50},
		{CostType: "Labor", Group: "Forming", CostItem: "Forming", Hours: 30},
	}
	if err := store.UpsertJobs(ctx, []models.Job{job}); err != nil {
		t.Fatal(err)
	}
	for _, w := range []models.Worker{
		{ID: "W1", Name: "Ana", Role: "Laborer", Active: true},
		{ID: "W2", Name: "Ben", Role: "Laborer", Active: true},
		{ID: "W3", Name: "Cal", Role: "Laborer", Active: true},
	} {
		if err := store.PutWorker(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{
		CompanyCapacityHours: 400,
		FetchTimeout:         time.Second,
		Rules:                config.DefaultRules(),
	}
	env := &testEnv{store: store, job: job, db: db}
	notifier := crew.NotifierFunc(func(_ context.Context, jobKey, date string) error {
		env.resync = append(env.resync, jobKey+"@"+date)
		return nil
	})
	h := New(db, store, cfg, cache.NewMemory(time.Minute, nil), notifier)
	env.router = NewRouter(h)

	key, err := auth.GenerateHMACKey("dispatch")
	if err != nil {
		t.Fatal(err)
	}
	env.key = key
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.key)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("Could not decode %q: %v", w.Body.String(), err)
	}
}

func TestAPI_RequiresKey(t *testing.T) {
	env := newTestEnv(t)
	env.key = ""
	if w := env.do(t, http.MethodGet, "/api/jobs", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a key, got %d", w.Code)
	}
	env.key = "dispatch.deadbeef"
	if w := env.do(t, http.MethodGet, "/api/jobs", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a forged key, got %d", w.Code)
	}
}

func TestAPI_ListJobsAndVirtualPhases(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var jobs struct {
		Jobs []jobSummary `json:"jobs"`
	}
	decode(t, w, &jobs)
	if len(jobs.Jobs) != 1 || jobs.Jobs[0].TotalBudgetedHours != 80 {
		t.Errorf("Expected one job with 80 budgeted hours, got %+v", jobs.Jobs)
	}

	w = env.do(t, http.MethodGet, "/api/jobs/phases?key="+url.QueryEscape(env.job.Key), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var phases struct {
		Phases []struct {
			ID           string  `json:"id"`
			Virtual      bool    `json:"virtual"`
			MatchedHours float64 `json:"matched_hours"`
		} `json:"phases"`
	}
	decode(t, w, &phases)
	if len(phases.Phases) != 2 || !phases.Phases[0].Virtual {
		t.Errorf("Expected two virtual phases, got %+v", phases.Phases)
	}

	w = env.do(t, http.MethodGet, "/api/jobs/phases?key=nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown job, got %d", w.Code)
	}
}

func TestAPI_PhaseLifecycleAndSchedule(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/phases", map[string]any{
		"job_key":    env.job.Key,
		"title":      "Flatwork",
		"start_date": "2026-03-02",
		"end_date":   "2026-03-06",
		"manpower":   1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Phase    models.Phase `json:"phase"`
		Capacity struct {
			Days []struct {
				Remaining float64 `json:"remaining"`
			} `json:"days"`
		} `json:"capacity"`
	}
	decode(t, w, &created)
	if created.Phase.ID == "" || created.Phase.Hours != 50 {
		t.Fatalf("Expected stored phase with 50 hours, got %+v", created.Phase)
	}
	if len(created.Capacity.Days) != 5 || created.Capacity.Days[0].Remaining != 390 {
		t.Errorf("Expected five days of advice at 390 remaining, got %+v", created.Capacity.Days)
	}

	w = env.do(t, http.MethodGet, "/api/jobs/schedule?key="+url.QueryEscape(env.job.Key)+"&mode=day&anchor=2026-03-04&count=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sched struct {
		Buckets []struct {
			Key   string  `json:"key"`
			Hours float64 `json:"hours"`
		} `json:"buckets"`
	}
	decode(t, w, &sched)
	// Matched hours come from the "Flatwork pour" line: 50 over five workdays.
	if len(sched.Buckets) != 1 || sched.Buckets[0].Hours != 10 {
		t.Errorf("Expected 10 hours on 2026-03-04, got %+v", sched.Buckets)
	}

	w = env.do(t, http.MethodPut, "/api/phases/"+created.Phase.ID, map[string]any{"manpower": 2.5})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated struct {
		Phase models.Phase `json:"phase"`
	}
	decode(t, w, &updated)
	if updated.Phase.Hours != 125 {
		t.Errorf("Expected manpower 2.5 over 5 workdays to give 125 hours, got %v", updated.Phase.Hours)
	}

	w = env.do(t, http.MethodGet, "/api/schedule?mode=week&anchor=2026-03-02&count=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var company struct {
		Capacity []bucketCapacity `json:"capacity"`
	}
	decode(t, w, &company)
	if len(company.Capacity) != 1 || company.Capacity[0].Capacity != 2000 || company.Capacity[0].Committed != 50 {
		t.Errorf("Expected 2000 hours of weekly capacity with 50 committed, got %+v", company.Capacity)
	}

	if w := env.do(t, http.MethodPut, "/api/phases/virtual:Flatwork", map[string]any{"manpower": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected virtual phase edit to be refused, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/phases/"+created.Phase.ID, nil); w.Code != http.StatusOK {
		t.Errorf("Expected delete to succeed, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/phases/"+created.Phase.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected second delete to 404, got %d", w.Code)
	}
}

func TestAPI_DateEditKeepsHours(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/phases", map[string]any{
		"job_key":    env.job.Key,
		"title":      "Curbs",
		"start_date": "2026-03-02",
		"end_date":   "2026-03-06",
		"manpower":   2,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Phase models.Phase `json:"phase"`
	}
	decode(t, w, &created)

	if w := env.do(t, http.MethodPut, "/api/phases/"+created.Phase.ID, map[string]any{"hours": 500}); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPut, "/api/phases/"+created.Phase.ID, map[string]any{"end_date": "2026-03-13"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated struct {
		Phase models.Phase `json:"phase"`
	}
	decode(t, w, &updated)
	if updated.Phase.Hours != 500 || updated.Phase.Manpower != 2 {
		t.Errorf("Expected a date-only edit to keep 500 hours and manpower 2, got %v hours, manpower %v", updated.Phase.Hours, updated.Phase.Manpower)
	}
	if updated.Phase.EndDate != "2026-03-13" {
		t.Errorf("Expected end date 2026-03-13, got %s", updated.Phase.EndDate)
	}
}

func TestAPI_PhaseValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []map[string]any{
		{"title": "No job"},
		{"job_key": env.job.Key},
		{"job_key": env.job.Key, "title": "X", "start_date": "March 2"},
		{"job_key": env.job.Key, "title": "X", "start_date": "2026-03-06", "end_date": "2026-03-02"},
		{"job_key": env.job.Key, "title": "X", "manpower": -1},
	}
	for _, body := range cases {
		if w := env.do(t, http.MethodPost, "/api/phases", body); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %v, got %d", body, w.Code)
		}
	}
	if w := env.do(t, http.MethodPost, "/api/phases", map[string]any{"job_key": "missing", "title": "X"}); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown job, got %d", w.Code)
	}
}

func TestAPI_CrewAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := &models.Phase{JobKey: env.job.Key, Title: "Flatwork", StartDate: "2026-03-02", EndDate: "2026-03-06", Manpower: 1, Hours: 50}
	if err := env.store.SavePhase(ctx, p); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/api/crews/2026-03-02/A", map[string]any{"worker_ids": []string{"W1", "W2"}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/api/crews/2026-03-02/B", map[string]any{"worker_ids": []string{"W2", "W3"}})
	var res crew.AssignResult
	decode(t, w, &res)
	if len(res.Accepted) != 1 || res.Accepted[0] != "W3" || len(res.Rejected) != 1 || res.Rejected[0].ClaimedBy != "A" {
		t.Errorf("Expected W2 rejected in favour of A, got %+v", res)
	}
	if len(env.resync) != 2 || !strings.HasPrefix(env.resync[0], env.job.Key) {
		t.Errorf("Expected a resync per assignment for the active job, got %v", env.resync)
	}

	w = env.do(t, http.MethodGet, "/api/crews/2026-03-02", nil)
	var snap crew.Snapshot
	decode(t, w, &snap)
	if len(snap.Crews["A"]) != 2 || len(snap.Crews["B"]) != 1 {
		t.Errorf("Unexpected crews: %+v", snap.Crews)
	}

	w = env.do(t, http.MethodGet, "/api/crews/2026-03-02/available?leader=C", nil)
	var avail struct {
		Workers []models.Worker `json:"workers"`
	}
	decode(t, w, &avail)
	if len(avail.Workers) != 0 {
		t.Errorf("Expected nobody left for C, got %+v", avail.Workers)
	}

	if w := env.do(t, http.MethodGet, "/api/crews/someday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad date, got %d", w.Code)
	}
}

func TestAPI_CapacityCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := &models.Phase{JobKey: env.job.Key, Title: "Flatwork", StartDate: "2026-03-02", EndDate: "2026-03-06", Manpower: 30}
	if err := env.store.SavePhase(ctx, p); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/api/capacity/check", map[string]any{
		"date":  "2026-03-04",
		"phase": map[string]any{"start_date": "2026-03-04", "end_date": "2026-03-04", "manpower": 15},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var adv struct {
		Remaining     float64 `json:"remaining"`
		OverCommitted bool    `json:"over_committed"`
	}
	decode(t, w, &adv)
	if adv.Remaining != -50 || !adv.OverCommitted {
		t.Errorf("Expected a 50 hour deficit, got %+v", adv)
	}
}

func TestAPI_ImportCostLines(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "estimate.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("Customer,Project_Number,Project_Name,Status,Group,Cost_Type,Cost_Item,Sales,Cost,Hours\n" +
		"Beta Corp,200,Plaza,In Progress,Paving,Labor,Asphalt,\"1,000\",500,40\n" +
		"Beta Corp,200,Plaza,In Progress,Paving,Project Management,PM,0,0,10\n" +
		",,,,,,,,,\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import/cost-lines", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.key)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Jobs      []string `json:"jobs"`
		CostLines int      `json:"cost_lines"`
		Skipped   int      `json:"skipped"`
	}
	decode(t, w, &out)
	if len(out.Jobs) != 1 || out.Jobs[0] != "Beta Corp | 200 | Plaza" || out.CostLines != 2 || out.Skipped != 1 {
		t.Errorf("Unexpected import result: %+v", out)
	}

	job, err := env.store.Job(context.Background(), out.Jobs[0])
	if err != nil {
		t.Fatal(err)
	}
	if job.TotalBudgetedHours() != 40 || job.CostLines[0].Sales != 1000 {
		t.Errorf("Expected 40 field hours and parsed sales, got %+v", job)
	}

	w = env.do(t, http.MethodGet, "/api/usage", nil)
	var usage struct {
		Totals struct {
			Requests          int `json:"requests"`
			CostLinesImported int `json:"cost_lines_imported"`
		} `json:"totals"`
	}
	decode(t, w, &usage)
	if usage.Totals.CostLinesImported != 2 || usage.Totals.Requests != 1 {
		t.Errorf("Expected the import to be recorded once, got %+v", usage.Totals)
	}
}

func TestAdmin_LoginAndKeys(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("ADMIN_USERNAME", "ops")
	t.Setenv("ADMIN_PASSWORD", "pw")
	if err := auth.EnsureAdminExists(context.Background(), env.db); err != nil {
		t.Fatal(err)
	}

	send := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	if w := send(http.MethodPost, "/admin/login", "", `{"username":"ops","password":"nope"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a wrong password, got %d", w.Code)
	}
	if w := send(http.MethodGet, "/admin/keys", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", w.Code)
	}

	w := send(http.MethodPost, "/admin/login", "", `{"username":"ops","password":"pw"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &login)

	w = send(http.MethodPost, "/admin/keys", login.AccessToken, `{"name":"yard-board"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var issued struct {
		Key string `json:"key"`
	}
	decode(t, w, &issued)

	env.key = issued.Key
	if w := env.do(t, http.MethodGet, "/api/jobs", nil); w.Code != http.StatusOK {
		t.Errorf("Expected the issued key to work, got %d", w.Code)
	}

	w = send(http.MethodGet, "/admin/keys", login.AccessToken, "")
	var keys struct {
		Keys []database.APIKey `json:"keys"`
	}
	decode(t, w, &keys)
	if len(keys.Keys) != 1 || keys.Keys[0].Name != "yard-board" || keys.Keys[0].RateLimit != 10000 {
		t.Errorf("Expected one listed key, got %+v", keys.Keys)
	}
}
