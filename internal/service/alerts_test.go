package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mzansi-solutions/farm-alert-service/internal/alerts"
	"github.com/mzansi-solutions/farm-alert-service/internal/client"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// scriptedProvider returns queued observations; each call may wait on its own gate.
type scriptedProvider struct {
	mu       sync.Mutex
	queue    []models.Observation
	gates    []chan struct{}
	forecast models.Forecast
	err      error
	errFor   map[string]error
	calls    int32
}

func (p *scriptedProvider) GetCurrent(ctx context.Context, location string) (models.Observation, error) {
	atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	if err, ok := p.errFor[location]; ok {
		p.mu.Unlock()
		return models.Observation{}, err
	}
	if p.err != nil {
		p.mu.Unlock()
		return models.Observation{}, p.err
	}
	obs := hotObservation()
	if len(p.queue) > 0 {
		obs = p.queue[0]
		p.queue = p.queue[1:]
	}
	var gate chan struct{}
	if len(p.gates) > 0 {
		gate = p.gates[0]
		p.gates = p.gates[1:]
	}
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return obs, nil
}

func (p *scriptedProvider) GetForecast(ctx context.Context, location string, days int) (models.Forecast, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return models.Forecast{}, p.err
	}
	return p.forecast, nil
}

func newAlertService(p WeatherProvider) (*AlertService, *alerts.Board) {
	clock := clockwork.NewFakeClockAt(fixedNow)
	board := alerts.NewBoard(clock)
	return NewAlertService(p, alerts.NewClassifier(alerts.WithClock(clock)), board, clock), board
}

func hazards(records []models.AlertRecord) []models.Hazard {
	out := make([]models.Hazard, 0, len(records))
	for _, r := range records {
		out = append(out, r.Hazard)
	}
	return out
}

func containsHazard(records []models.AlertRecord, h models.Hazard) bool {
	for _, r := range records {
		if r.Hazard == h {
			return true
		}
	}
	return false
}

// TestAlertService_CurrentAlerts_Publishes verifies a classification is returned
// and becomes the board's latest set.
func TestAlertService_CurrentAlerts_Publishes(t *testing.T) {
	svc, _ := newAlertService(&scriptedProvider{})

	res, err := svc.CurrentAlerts(context.Background(), "Musina", false)
	if err != nil {
		t.Fatalf("CurrentAlerts() error = %v", err)
	}
	if !res.Published {
		t.Error("Published = false, want true")
	}
	if res.Mode != models.ModeCurrent {
		t.Errorf("Mode = %q, want %q", res.Mode, models.ModeCurrent)
	}
	if !containsHazard(res.Alerts, models.HazardHeat) {
		t.Fatalf("alerts = %v, want a heat alert", hazards(res.Alerts))
	}
	if !res.GeneratedAt.Equal(fixedNow) {
		t.Errorf("GeneratedAt = %v, want %v", res.GeneratedAt, fixedNow)
	}

	snap, ok := svc.LatestAlerts("musina", models.ModeCurrent)
	if !ok {
		t.Fatal("LatestAlerts() found nothing after publish")
	}
	if len(snap.Records) != len(res.Alerts) {
		t.Errorf("board holds %d records, want %d", len(snap.Records), len(res.Alerts))
	}
}

// TestAlertService_CurrentAlerts_Detailed verifies instructions are appended to the
// response while the board keeps plain descriptions.
func TestAlertService_CurrentAlerts_Detailed(t *testing.T) {
	svc, _ := newAlertService(&scriptedProvider{})

	res, err := svc.CurrentAlerts(context.Background(), "Musina", true)
	if err != nil {
		t.Fatal(err)
	}
	var heat *models.AlertRecord
	for i := range res.Alerts {
		if res.Alerts[i].Hazard == models.HazardHeat {
			heat = &res.Alerts[i]
		}
	}
	if heat == nil || !strings.Contains(heat.Description, "Detailed Instructions") {
		t.Fatalf("detailed heat alert missing instructions: %+v", heat)
	}

	snap, _ := svc.LatestAlerts("Musina", models.ModeCurrent)
	for _, r := range snap.Records {
		if strings.Contains(r.Description, "Detailed Instructions") {
			t.Errorf("board record %q carries instructions", r.Title)
		}
	}
}

// TestAlertService_NoAlertsIsEmptyList verifies calm weather yields an empty, non-nil list.
func TestAlertService_NoAlertsIsEmptyList(t *testing.T) {
	calm := models.Observation{
		Temperature: models.Float(22),
		Humidity:    models.Float(55),
		WindSpeed:   models.Float(5),
		Description: "Few clouds",
	}
	svc, _ := newAlertService(&scriptedProvider{queue: []models.Observation{calm}})

	res, err := svc.CurrentAlerts(context.Background(), "George", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Alerts == nil || len(res.Alerts) != 0 {
		t.Errorf("Alerts = %#v, want empty non-nil slice", res.Alerts)
	}
	if _, ok := svc.LatestAlerts("George", ""); !ok {
		t.Error("empty result was not published")
	}
}

// TestAlertService_StaleResultIsDiscarded verifies that when two requests for one
// location overlap, the one that started last wins the board even if it finishes first.
func TestAlertService_StaleResultIsDiscarded(t *testing.T) {
	slowGate := make(chan struct{})
	calm := models.Observation{Temperature: models.Float(20), Humidity: models.Float(50), WindSpeed: models.Float(3), Description: "Clear"}
	p := &scriptedProvider{
		queue: []models.Observation{hotObservation(), calm},
		gates: []chan struct{}{slowGate, nil},
	}
	svc, _ := newAlertService(p)

	slowDone := make(chan AlertResult, 1)
	go func() {
		res, _ := svc.CurrentAlerts(context.Background(), "Upington", false)
		slowDone <- res
	}()
	for atomic.LoadInt32(&p.calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	fast, err := svc.CurrentAlerts(context.Background(), "Upington", false)
	if err != nil {
		t.Fatal(err)
	}
	if !fast.Published {
		t.Error("newer result was not published")
	}

	close(slowGate)
	slow := <-slowDone
	if slow.Published {
		t.Error("older result was published over a newer one")
	}
	if !containsHazard(slow.Alerts, models.HazardHeat) {
		t.Error("older caller should still receive its own classification")
	}

	snap, _ := svc.LatestAlerts("Upington", models.ModeCurrent)
	if containsHazard(snap.Records, models.HazardHeat) {
		t.Errorf("board shows superseded heat alert: %v", hazards(snap.Records))
	}
}

// TestAlertService_ForecastDoesNotSupersedeCurrent verifies a forecast request that
// starts while a current-mode request is in flight leaves the current result publishable.
func TestAlertService_ForecastDoesNotSupersedeCurrent(t *testing.T) {
	gate := make(chan struct{})
	p := &scriptedProvider{
		gates:    []chan struct{}{gate},
		forecast: models.Forecast{Days: []models.Observation{{Date: "2025-01-15", Temperature: models.Float(22), WindUnit: models.WindUnitMPS}}},
	}
	svc, _ := newAlertService(p)

	curDone := make(chan AlertResult, 1)
	go func() {
		res, _ := svc.CurrentAlerts(context.Background(), "Kimberley", false)
		curDone <- res
	}()
	for atomic.LoadInt32(&p.calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	fc, err := svc.ForecastAlerts(context.Background(), "Kimberley", 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if !fc.Published {
		t.Error("forecast result was not published")
	}

	close(gate)
	cur := <-curDone
	if !cur.Published {
		t.Error("current result was superseded by a forecast request")
	}

	snap, ok := svc.LatestAlerts("Kimberley", models.ModeCurrent)
	if !ok || !containsHazard(snap.Records, models.HazardHeat) {
		t.Errorf("current snapshot = %+v, want the heat alert", snap)
	}
	if _, ok := svc.LatestAlerts("Kimberley", models.ModeForecast); !ok {
		t.Error("forecast snapshot missing")
	}
}

func TestAlertService_ForecastAlerts(t *testing.T) {
	day := func(date string, temp, precip float64) models.Observation {
		return models.Observation{
			Date:          date,
			Temperature:   models.Float(temp),
			MinTemp:       models.Float(temp - 8),
			Humidity:      models.Float(60),
			WindSpeed:     models.Float(4),
			Precipitation: models.Float(precip),
			Description:   "Overcast",
			WindUnit:      models.WindUnitMPS,
		}
	}
	p := &scriptedProvider{forecast: models.Forecast{
		Days:  []models.Observation{day("2025-01-15", 24, 2), day("2025-01-16", 25, 65)},
		Stale: true,
	}}
	svc, _ := newAlertService(p)

	res, err := svc.ForecastAlerts(context.Background(), "Durban", 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != models.ModeForecast || !res.Stale {
		t.Errorf("Mode=%q Stale=%v, want forecast, true", res.Mode, res.Stale)
	}
	if !containsHazard(res.Alerts, models.HazardFlooding) {
		t.Errorf("alerts = %v, want flooding", hazards(res.Alerts))
	}
	snap, ok := svc.LatestAlerts("Durban", models.ModeForecast)
	if !ok || snap.Mode != models.ModeForecast {
		t.Errorf("board snapshot = %+v, want forecast mode", snap)
	}
}

// TestAlertService_FetchError verifies provider errors are returned and nothing is published.
func TestAlertService_FetchError(t *testing.T) {
	svc, _ := newAlertService(&scriptedProvider{err: client.ErrLocationNotFound})

	if _, err := svc.CurrentAlerts(context.Background(), "Atlantis", false); !errors.Is(err, client.ErrLocationNotFound) {
		t.Errorf("CurrentAlerts() error = %v, want ErrLocationNotFound", err)
	}
	if _, err := svc.ForecastAlerts(context.Background(), "Atlantis", 7, false); !errors.Is(err, client.ErrLocationNotFound) {
		t.Errorf("ForecastAlerts() error = %v, want ErrLocationNotFound", err)
	}
	if _, ok := svc.LatestAlerts("Atlantis", ""); ok {
		t.Error("LatestAlerts() found a set after failed fetches")
	}
}
