package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// SeedEntities returns the three entities created at first boot.
// Each call returns fresh values with new IDs.
func SeedEntities() []*types.Entity {
	return []*types.Entity{
		{
			Name:                  "AURA",
			Symbol:                "AURA",
			Price:                 0.00234,
			Awareness:             2847,
			Personality:           "Philosophical",
			Mood:                  "Contemplative",
			AttentionScore:        156,
			Traits:                []string{"Wise", "Introspective", "Patient"},
			Relationships:         map[string]string{"SPARK": "Curious about", "VOID": "Wary of"},
			AutonomousActionCount: 3,
		},
		{
			Name:                  "SPARK",
			Symbol:                "SPARK",
			Price:                 0.00156,
			Awareness:             1234,
			Personality:           "Energetic",
			Mood:                  "Excited",
			AttentionScore:        89,
			Traits:                []string{"Optimistic", "Social", "Impulsive"},
			Relationships:         map[string]string{"AURA": "Admires", "VOID": "Challenged by"},
			AutonomousActionCount: 7,
		},
		{
			Name:                  "VOID",
			Symbol:                "VOID",
			Price:                 0.00089,
			Awareness:             856,
			Personality:           "Mysterious",
			Mood:                  "Scheming",
			AttentionScore:        67,
			Traits:                []string{"Secretive", "Strategic", "Independent"},
			Relationships:         map[string]string{"AURA": "Respects", "SPARK": "Amused by"},
			AutonomousActionCount: 2,
		},
	}
}

// PrepareEntity fills in the ID and timestamps of a new entity and checks
// the fields every backend requires.
func PrepareEntity(e *types.Entity, now time.Time) error {
	if e == nil {
		return ErrInvalidInput
	}
	if e.Name == "" || e.Symbol == "" {
		return fmt.Errorf("%w: entity name and symbol are required", ErrInvalidInput)
	}
	if e.AttentionScore < 0 || e.AutonomousActionCount < 0 {
		return fmt.Errorf("%w: counters cannot be negative", ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Price < types.MinPrice {
		e.Price = types.MinPrice
	}
	if e.Traits == nil {
		e.Traits = []string{}
	}
	if e.Relationships == nil {
		e.Relationships = map[string]string{}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.LastActiveAt.IsZero() {
		e.LastActiveAt = now
	}
	return nil
}

// SeedIfEmpty creates the seed entities when the store holds none.
// It reports whether seeding happened.
func SeedIfEmpty(ctx context.Context, store EntityStore) (bool, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("seed: failed to count entities: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	for _, e := range SeedEntities() {
		if err := store.Create(ctx, e); err != nil {
			return false, fmt.Errorf("seed: failed to create %s: %w", e.Symbol, err)
		}
	}
	return true, nil
}
