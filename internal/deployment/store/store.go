// Package store persists deployment records per owner. Every backend upserts
// on the natural key (owner, namespace, deployment name), so concurrent
// back-fills of the same cluster state converge on one row each.
package store

import (
	"sort"

	"deploygate/internal/deployment/models"
	id "deploygate/pkg/domain"
)

// sortNewestFirst orders by creation time descending, ties broken by name.
func sortNewestFirst(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		if records[i].Namespace != records[j].Namespace {
			return records[i].Namespace < records[j].Namespace
		}
		return records[i].DeploymentName < records[j].DeploymentName
	})
}

func assignID(r *models.Record) {
	if r.ID.IsNil() {
		r.ID = id.NewRecordID()
	}
}
