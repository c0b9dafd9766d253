package database_test

import (
	"testing"

	"github.com/localnerve/qatrack/internal/database"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/testutil"
)

// TestServerDatabases migrates and exercises the cascade against real
// database servers. Docker is required; the test skips without it.
func TestServerDatabases(t *testing.T) {
	for _, dbType := range []string{"postgres", "mariadb"} {
		t.Run(dbType, func(t *testing.T) {
			cfg := testutil.StartDatabase(t, dbType)

			db, err := database.Connect(cfg)
			if err != nil {
				t.Fatalf("Failed to connect: %v", err)
			}
			defer database.Close(db)

			if err := database.AutoMigrate(db); err != nil {
				t.Fatalf("Failed to migrate: %v", err)
			}

			title := "Container project"
			responsibles := []string{"Ana", " ana ", "Bob"}
			project, err := services.CreateProject(db, services.ProjectInput{
				Title:        &title,
				Responsibles: &responsibles,
			})
			if err != nil {
				t.Fatalf("Failed to create project: %v", err)
			}
			if len(project.Responsibles) != 2 {
				t.Errorf("Expected 2 distinct responsibles, got %d", len(project.Responsibles))
			}

			name := "Container demand"
			demand, err := services.CreateDemand(db, services.DemandInput{Name: &name, ProjectID: &project.ID})
			if err != nil {
				t.Fatalf("Failed to create demand: %v", err)
			}

			scenarioTitle := "Container scenario"
			if _, err := services.CreateScenario(db, services.ScenarioInput{Title: &scenarioTitle, DemandID: &demand.ID}); err != nil {
				t.Fatalf("Failed to create scenario: %v", err)
			}

			stats, err := services.ComputeStats(db, services.StatsFilter{})
			if err != nil {
				t.Fatalf("Failed to compute stats: %v", err)
			}
			if stats.TotalScenarios != 1 {
				t.Errorf("Expected 1 scenario in stats, got %d", stats.TotalScenarios)
			}

			if _, err := services.DeleteProject(db, project.ID); err != nil {
				t.Fatalf("Failed to delete project: %v", err)
			}

			var remaining int64
			db.Model(&models.Scenario{}).Count(&remaining)
			if remaining != 0 {
				t.Errorf("Expected scenarios to cascade, %d left", remaining)
			}
		})
	}
}
