package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/CTAG07/Pronostico/pkg/markov"
)

func TestAddObservations(t *testing.T) {
	ctx, s, model := setupTestDBWithObservations(t)

	obs, err := s.Observations(ctx, model)
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	if !reflect.DeepEqual(obs, testObservations) {
		t.Errorf("Observations() = %+v, want %+v", obs, testObservations)
	}

	// Re-adding a day overwrites its state instead of duplicating it.
	if err = s.AddObservations(ctx, model, []markov.Observation{{Day: 3, State: "nublado"}}); err != nil {
		t.Fatalf("AddObservations overwrite failed: %v", err)
	}
	obs, _ = s.Observations(ctx, model)
	if len(obs) != len(testObservations) {
		t.Errorf("expected %d observations after overwrite, got %d", len(testObservations), len(obs))
	}
	if obs[2].State != "nublado" {
		t.Errorf("expected day 3 to be nublado, got %q", obs[2].State)
	}
}

func TestAddObservationsIsAtomic(t *testing.T) {
	ctx, s, model := setupTestDBWithObservations(t)

	bad := []markov.Observation{{Day: 10, State: "sol"}, {Day: 11, State: ""}}
	err := s.AddObservations(ctx, model, bad)
	if !errors.Is(err, ErrEmptyState) {
		t.Fatalf("expected ErrEmptyState, got %v", err)
	}

	obs, _ := s.Observations(ctx, model)
	if len(obs) != len(testObservations) {
		t.Errorf("a failed batch must not store anything, found %d observations", len(obs))
	}
}

func TestStoreEstimate(t *testing.T) {
	ctx, s, model := setupTestDBWithObservations(t)

	space, matrix, err := s.Estimate(ctx, model)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	wantSpace, want := markov.Estimate(testObservations)
	if !reflect.DeepEqual(space.Labels(), wantSpace.Labels()) {
		t.Errorf("states = %v, want %v", space.Labels(), wantSpace.Labels())
	}
	for r := 0; r < want.Size(); r++ {
		if !reflect.DeepEqual(matrix.Row(r), want.Row(r)) {
			t.Errorf("row %d = %v, want %v", r, matrix.Row(r), want.Row(r))
		}
	}

	// An empty model estimates to an empty matrix, not an error.
	empty, _ := s.InsertModel(ctx, "empty")
	space, matrix, err = s.Estimate(ctx, empty)
	if err != nil {
		t.Fatalf("Estimate on empty model failed: %v", err)
	}
	if space.Len() != 0 || matrix.Size() != 0 {
		t.Errorf("expected empty estimation, got %d states", space.Len())
	}
}

func TestModelSource(t *testing.T) {
	ctx, s, model := setupTestDBWithObservations(t)

	src := s.Source(model)
	obs, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(obs) != len(testObservations) {
		t.Errorf("expected %d observations, got %d", len(testObservations), len(obs))
	}
	if src.String() != "model:test_model" {
		t.Errorf("unexpected source name %q", src.String())
	}
}

func BenchmarkAddObservations(b *testing.B) {
	ctx := context.Background()
	obs, _ := markov.GenerateObservations(rand.New(rand.NewPCG(1, 2)), 3650, markov.DefaultWeights())

	_, s := setupTestDBBench(b)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		model, err := s.InsertModel(ctx, fmt.Sprintf("bench_%d", i))
		if err != nil {
			b.Fatalf("InsertModel failed: %v", err)
		}
		if err = s.AddObservations(ctx, model, obs); err != nil {
			b.Fatalf("AddObservations failed: %v", err)
		}
	}
}
