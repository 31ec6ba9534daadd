package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/healthtrack/internal/config"
)

func TestNewMemoryRepositorySeedsProfiles(t *testing.T) {
	repo, seeded, err := newMemoryRepository(config.Config{SeedPatients: []string{"p1:8:10000", "p2"}})
	require.NoError(t, err)
	require.Equal(t, 2, seeded)

	profile, err := repo.FindPatientProfile(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 8, profile.WaterGoal)
	require.Equal(t, 10000, profile.StepsGoal)

	profile, err = repo.FindPatientProfile(context.Background(), "p2")
	require.NoError(t, err)
	require.Zero(t, profile.WaterGoal)
}

func TestNewMemoryRepositoryRejectsMalformedSeeds(t *testing.T) {
	for _, seeds := range [][]string{{"p1:8"}, {":8:100"}, {"p1:x:100"}, {"p1:8:-1"}} {
		repo, seeded, err := newMemoryRepository(config.Config{SeedPatients: seeds})
		require.Error(t, err, seeds)
		require.Nil(t, repo)
		require.Zero(t, seeded)
	}
}
