// stats.go
//
// QA statistics aggregation for qatrack
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"sort"

	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// DeletedProjectTitle names hours whose project no longer exists.
const DeletedProjectTitle = "(Deleted Project)"

// topFailedLimit is how many demands the failed ranking reports.
const topFailedLimit = 5

// StatsFilter narrows ComputeStats. Ids that are not well formed are ignored.
type StatsFilter struct {
	ProjectID     string
	ResponsibleID string
}

// FailedDemand is an entry of the failed-scenario ranking.
type FailedDemand struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DisplayID string `json:"demandId"`
	Failed    int64  `json:"failedCount"`
}

// ProjectHours is the estimated effort of one project's matched demands.
type ProjectHours struct {
	ProjectID string  `json:"projectId"`
	Title     string  `json:"title"`
	Hours     float64 `json:"hours"`
}

// Stats is the dashboard bundle.
type Stats struct {
	TotalProjects         int64              `json:"totalProjects"`
	TotalDemands          int64              `json:"totalDemandas"`
	TotalScenarios        int64              `json:"totalScenarios"`
	DemandsAwaitingFix    int64              `json:"demandasAguardandoCorrecao"`
	CoveredDemands        int64              `json:"totalDemandasCobertas"`
	TotalEstimatedHours   float64            `json:"totalHorasEstimadas"`
	ScenariosByStatus     map[string]int64   `json:"scenariosByStatus"`
	DemandsByStatus       map[string]int64   `json:"demandasByStatus"`
	ProjectsByStatus      map[string]int64   `json:"projectsByStatus"`
	TopFailedDemands      []FailedDemand     `json:"topFailedDemandas"`
	HoursPerProject       []ProjectHours     `json:"horasPorProjeto"`
	DemandsPerResponsible map[string]int64   `json:"demandasPorResponsavel"`
	HoursPerResponsible   map[string]float64 `json:"horasPorResponsavel"`
	TestingPerResponsible map[string]int64   `json:"demandasEmTestePorResponsavel"`
}

type statsScope struct {
	db            *gorm.DB
	projectID     string
	responsibleID string
}

// projects matches projects by id and by responsible membership.
func (s statsScope) projects(db *gorm.DB) *gorm.DB {
	q := db.Model(&models.Project{})
	if s.projectID != "" {
		q = q.Where("id = ?", s.projectID)
	}
	if s.responsibleID != "" {
		q = q.Where("id IN (?)", s.db.Table("project_responsibles").Select("project_id").Where("responsible_id = ?", s.responsibleID))
	}
	return q
}

// demands matches demands by owning project and by responsible membership.
func (s statsScope) demands(db *gorm.DB) *gorm.DB {
	q := db.Model(&models.Demand{})
	if s.projectID != "" {
		q = q.Where("project_id = ?", s.projectID)
	}
	if s.responsibleID != "" {
		q = q.Where("id IN (?)", s.db.Table("demand_responsibles").Select("demand_id").Where("responsible_id = ?", s.responsibleID))
	}
	return q
}

// scenarios matches scenarios owned by the matched demands.
func (s statsScope) scenarios(db *gorm.DB) *gorm.DB {
	q := db.Model(&models.Scenario{})
	if s.projectID != "" || s.responsibleID != "" {
		q = q.Where("demand_id IN (?)", s.demands(s.db).Select("id"))
	}
	return q
}

func (s statsScope) filtered() bool {
	return s.projectID != "" || s.responsibleID != ""
}

// ComputeStats aggregates projects, demands and scenarios for the dashboard.
// Every read is tagged so the queries can be told apart in the database logs.
func ComputeStats(db *gorm.DB, f StatsFilter) (*Stats, error) {
	scope := statsScope{db: db}
	if models.IsID(f.ProjectID) {
		scope.projectID = f.ProjectID
	}
	if models.IsID(f.ResponsibleID) {
		scope.responsibleID = f.ResponsibleID
	}

	tagged := db.Clauses(hints.Comment("select", "qatrack:stats")).Session(&gorm.Session{})
	stats := &Stats{}

	if err := scope.projects(tagged).Count(&stats.TotalProjects).Error; err != nil {
		return nil, err
	}
	if err := scope.demands(tagged).Count(&stats.TotalDemands).Error; err != nil {
		return nil, err
	}
	if err := scope.scenarios(tagged).Count(&stats.TotalScenarios).Error; err != nil {
		return nil, err
	}
	if err := scope.demands(tagged).Where("status = ?", models.DemandAwaitingFix).Count(&stats.DemandsAwaitingFix).Error; err != nil {
		return nil, err
	}
	if err := scope.scenarios(tagged).Distinct("demand_id").Count(&stats.CoveredDemands).Error; err != nil {
		return nil, err
	}
	if err := scope.demands(tagged).Select("COALESCE(SUM(estimated_hours), 0)").Scan(&stats.TotalEstimatedHours).Error; err != nil {
		return nil, err
	}

	var err error
	if stats.ScenariosByStatus, err = countByStatus(scope.scenarios(tagged)); err != nil {
		return nil, err
	}
	if stats.DemandsByStatus, err = countByStatus(scope.demands(tagged)); err != nil {
		return nil, err
	}
	if stats.ProjectsByStatus, err = countByStatus(scope.projects(tagged)); err != nil {
		return nil, err
	}
	if stats.TopFailedDemands, err = topFailedDemands(tagged, scope); err != nil {
		return nil, err
	}
	if stats.HoursPerProject, err = hoursPerProject(tagged, scope); err != nil {
		return nil, err
	}
	if err := perResponsible(tagged, scope, stats); err != nil {
		return nil, err
	}

	return stats, nil
}

func countByStatus(q *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := q.Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.Total > 0 {
			out[r.Status] = r.Total
		}
	}
	return out, nil
}

func topFailedDemands(db *gorm.DB, scope statsScope) ([]FailedDemand, error) {
	var rows []struct {
		DemandID string
		Failed   int64
	}
	if err := scope.scenarios(db).Select("demand_id, COUNT(*) AS failed").
		Where("status = ?", models.ScenarioFailed).
		Group("demand_id").Order("failed DESC").Limit(topFailedLimit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]FailedDemand, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.DemandID)
	}
	var demands []models.Demand
	if err := db.Select("id", "name", "display_id").Where("id IN ?", ids).Find(&demands).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Demand, len(demands))
	for _, d := range demands {
		byID[d.ID] = d
	}

	for _, r := range rows {
		d := byID[r.DemandID]
		out = append(out, FailedDemand{ID: r.DemandID, Name: d.Name, DisplayID: d.DisplayID, Failed: r.Failed})
	}
	return out, nil
}

func hoursPerProject(db *gorm.DB, scope statsScope) ([]ProjectHours, error) {
	var projects []models.Project
	if err := scope.projects(db).Select("id", "title").Find(&projects).Error; err != nil {
		return nil, err
	}

	var sums []struct {
		ProjectID string
		Hours     float64
	}
	if err := scope.demands(db).Select("project_id, COALESCE(SUM(estimated_hours), 0) AS hours").
		Group("project_id").Scan(&sums).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]*ProjectHours, len(projects)+len(sums))
	out := make([]ProjectHours, 0, len(projects)+len(sums))
	for _, p := range projects {
		out = append(out, ProjectHours{ProjectID: p.ID, Title: p.Title})
	}
	for i := range out {
		byID[out[i].ProjectID] = &out[i]
	}

	var unmatched []string
	for _, s := range sums {
		if ph, ok := byID[s.ProjectID]; ok {
			ph.Hours = s.Hours
			continue
		}
		unmatched = append(unmatched, s.ProjectID)
	}

	if len(unmatched) > 0 {
		var others []models.Project
		if err := db.Select("id", "title").Where("id IN ?", unmatched).Find(&others).Error; err != nil {
			return nil, err
		}
		titles := make(map[string]string, len(others))
		for _, p := range others {
			titles[p.ID] = p.Title
		}
		for _, s := range sums {
			if _, ok := byID[s.ProjectID]; ok {
				continue
			}
			title, ok := titles[s.ProjectID]
			if !ok {
				title = DeletedProjectTitle
			}
			out = append(out, ProjectHours{ProjectID: s.ProjectID, Title: title, Hours: s.Hours})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Hours != out[j].Hours {
			return out[i].Hours > out[j].Hours
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func perResponsible(db *gorm.DB, scope statsScope, stats *Stats) error {
	var rows []struct {
		Name    string
		Demands int64
		Hours   float64
		Testing int64
	}

	q := db.Table("demand_responsibles").
		Select("responsibles.name AS name, COUNT(*) AS demands, COALESCE(SUM(demands.estimated_hours), 0) AS hours, "+
			"SUM(CASE WHEN demands.status = ? THEN 1 ELSE 0 END) AS testing", models.DemandTesting).
		Joins("JOIN responsibles ON responsibles.id = demand_responsibles.responsible_id").
		Joins("JOIN demands ON demands.id = demand_responsibles.demand_id").
		Group("responsibles.name")
	if scope.filtered() {
		q = q.Where("demand_responsibles.demand_id IN (?)", scope.demands(scope.db).Select("id"))
	}
	if scope.responsibleID != "" {
		q = q.Where("demand_responsibles.responsible_id = ?", scope.responsibleID)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return err
	}

	stats.DemandsPerResponsible = make(map[string]int64, len(rows))
	stats.HoursPerResponsible = make(map[string]float64, len(rows))
	stats.TestingPerResponsible = make(map[string]int64, len(rows))
	for _, r := range rows {
		stats.DemandsPerResponsible[r.Name] = r.Demands
		stats.HoursPerResponsible[r.Name] = r.Hours
		stats.TestingPerResponsible[r.Name] = r.Testing
	}

	// A single queried responsible is always reported, even with no demands
	if scope.responsibleID != "" && len(rows) == 0 {
		var names []string
		if err := scope.db.Model(&models.Responsible{}).Where("id = ?", scope.responsibleID).Pluck("name", &names).Error; err != nil {
			return err
		}
		for _, name := range names {
			stats.DemandsPerResponsible[name] = 0
			stats.HoursPerResponsible[name] = 0
			stats.TestingPerResponsible[name] = 0
		}
	}
	return nil
}
