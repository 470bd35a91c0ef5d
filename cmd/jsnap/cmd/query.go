package cmd

import (
	"context"

	"github.com/jsnap/internal/analyzer"
	"github.com/jsnap/internal/repository"
)

// withRepositories opens the database of an analysed dump for the duration of fn.
func withRepositories(ctx context.Context, location string, fn func(repository.SnapshotRepository) error) error {
	a := analyzer.NewSnapshotAnalyzer(cfg, analyzer.WithLogger(logger))
	repos, err := a.OpenRepositories(ctx, location)
	if err != nil {
		return err
	}
	defer repos.Close()
	return fn(repos.Snapshot)
}
