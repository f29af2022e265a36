package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/CTAG07/Pronostico/pkg/markov"
)

func TestInsertAndGetModelInfo(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	// Test success case
	inserted, err := s.InsertModel(ctx, "test_model")
	if err != nil {
		t.Fatalf("InsertModel() failed: %v", err)
	}
	if inserted.Id == 0 {
		t.Error("expected a non-zero model id")
	}

	m, err := s.GetModelInfo(ctx, "test_model")
	if err != nil {
		t.Errorf("GetModelInfo: expected no error, got %v", err)
	}
	if m != inserted {
		t.Errorf("got %+v, want %+v", m, inserted)
	}

	// Test failure case (nonexistent)
	_, err = s.GetModelInfo(ctx, "nonexistent_model")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for nonexistent model, got %v", err)
	}

	// Test failure case (duplicate name)
	if _, err = s.InsertModel(ctx, "test_model"); err == nil {
		t.Errorf("expected an error when inserting a model with a duplicate name, but got nil")
	}

	// Test failure case (empty name)
	if _, err = s.InsertModel(ctx, ""); err == nil {
		t.Errorf("expected an error when inserting a model without a name, but got nil")
	}
}

func TestEnsureModel(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	first, err := s.EnsureModel(ctx, "madrid")
	if err != nil {
		t.Fatalf("EnsureModel() failed: %v", err)
	}
	second, err := s.EnsureModel(ctx, "madrid")
	if err != nil {
		t.Fatalf("EnsureModel() second call failed: %v", err)
	}
	if first != second {
		t.Errorf("EnsureModel returned different models: %+v vs %+v", first, second)
	}
}

func TestGetModelInfos(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, _ = s.InsertModel(ctx, "test_model")
	_, _ = s.InsertModel(ctx, "another_model")

	models, err := s.GetModelInfos(ctx)
	if err != nil {
		t.Fatalf("GetModelInfos failed: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected 2 models, got %d", len(models))
	}
	if _, ok := models["test_model"]; !ok {
		t.Error("expected to find 'test_model'")
	}
	if _, ok := models["another_model"]; !ok {
		t.Error("expected to find 'another_model'")
	}
}

func TestRemoveModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	m1, _ := s.InsertModel(ctx, "to_delete")
	m2, _ := s.InsertModel(ctx, "to_keep")
	_ = s.AddObservations(ctx, m1, testObservations)
	_ = s.AddObservations(ctx, m2, testObservations)

	if err := s.RemoveModel(ctx, m1); err != nil {
		t.Fatalf("RemoveModel failed: %v", err)
	}

	// Verify model m1 is gone
	_, err := s.GetModelInfo(ctx, m1.Name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for deleted model, got %v", err)
	}

	// Verify observations for m1 are gone
	var count int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM weather_observations WHERE model_id = ?", m1.Id).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 observations for deleted model, found %d", count)
	}

	// Verify model m2 and its observations still exist
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM weather_observations WHERE model_id = ?", m2.Id).Scan(&count)
	if count != len(testObservations) {
		t.Errorf("expected %d observations for kept model, found %d", len(testObservations), count)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx, s, model := setupTestDBWithObservations(t)

	// 1. Export the model to an in-memory buffer
	var buf bytes.Buffer
	if err := s.ExportModel(ctx, model, &buf); err != nil {
		t.Fatalf("ExportModel failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"name": "test_model"`) {
		t.Errorf("export does not carry the model name: %s", buf.String())
	}

	// 2. Set up a completely new, empty database
	_, s2 := setupTestDB(t)

	// 3. Import from the buffer into the new DB
	imported, err := s2.ImportModel(ctx, &buf)
	if err != nil {
		t.Fatalf("ImportModel failed: %v", err)
	}
	if imported.Name != model.Name {
		t.Errorf("imported into %q, want %q", imported.Name, model.Name)
	}

	// 4. Verify the imported data estimates the same matrix
	wantSpace, want, _ := s.Estimate(ctx, model)
	gotSpace, got, err := s2.Estimate(ctx, imported)
	if err != nil {
		t.Fatalf("Estimate on imported model failed: %v", err)
	}
	if !reflect.DeepEqual(gotSpace.Labels(), wantSpace.Labels()) {
		t.Errorf("states = %v, want %v", gotSpace.Labels(), wantSpace.Labels())
	}
	for r := 0; r < want.Size(); r++ {
		if !reflect.DeepEqual(got.Row(r), want.Row(r)) {
			t.Errorf("row %d = %v, want %v", r, got.Row(r), want.Row(r))
		}
	}
}

func TestImportMergesIntoExistingModel(t *testing.T) {
	ctx, s, model := setupTestDBWithObservations(t)

	payload := `{"name": "test_model", "observations": [{"day": 5, "state": "sol"}, {"day": 1, "state": "nublado"}]}`
	if _, err := s.ImportModel(ctx, strings.NewReader(payload)); err != nil {
		t.Fatalf("ImportModel failed: %v", err)
	}

	obs, err := s.Observations(ctx, model)
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	if len(obs) != len(testObservations)+1 {
		t.Fatalf("expected %d observations after merge, got %d", len(testObservations)+1, len(obs))
	}
	if obs[0] != (markov.Observation{Day: 1, State: "nublado"}) {
		t.Errorf("expected day 1 to be overwritten with nublado, got %+v", obs[0])
	}
	if obs[4] != (markov.Observation{Day: 5, State: "sol"}) {
		t.Errorf("expected the day 5 gap to be filled, got %+v", obs[4])
	}
}

func TestImportRejectsBadPayload(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	testCases := []struct {
		name    string
		payload string
	}{
		{name: "Not JSON", payload: "dia,estado\n1,sol\n"},
		{name: "No name", payload: `{"observations": [{"day": 1, "state": "sol"}]}`},
		{name: "Empty state", payload: `{"name": "bad", "observations": [{"day": 1, "state": ""}]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.ImportModel(ctx, strings.NewReader(tc.payload)); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}

	// The failed import must not leave a half-created model behind.
	if _, err := s.GetModelInfo(ctx, "bad"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected rolled back import, got %v", err)
	}
}
