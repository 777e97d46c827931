package analysis

import (
	"fmt"
	"sort"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

// ClusterProfile describes the rows assigned to one cluster
type ClusterProfile struct {
	Cluster int
	Size    int
	Summary *stats.Summary
	// Counts is the frequency table of the profile column, if one is set
	Counts []stats.Count
}

// ProfileOptions configures Profiles
type ProfileOptions struct {
	// Column is a categorical column tabulated per cluster (e.g. GENDER_R)
	Column string
	// Summary options passed to stats.Summarize for each cluster
	Summary []stats.Option
}

// Profiles splits t by cluster label and summarises each part. Clusters
// are returned in ascending label order.
func Profiles(t *model.Table, labels []int, opts ProfileOptions) ([]ClusterProfile, error) {
	if len(labels) != t.NumRows() {
		return nil, fmt.Errorf("%d labels for %d rows of table %q", len(labels), t.NumRows(), t.Name)
	}
	if opts.Column != "" && t.ColumnIndex(opts.Column) < 0 {
		return nil, fmt.Errorf("profile column %q does not exist in table %q", opts.Column, t.Name)
	}

	parts := map[int]*model.Table{}
	for i, row := range t.Rows {
		l := labels[i]
		part, ok := parts[l]
		if !ok {
			part = model.NewTable(fmt.Sprintf("%s_cluster%d", t.Name, l), t.Columns)
			parts[l] = part
		}
		part.Rows = append(part.Rows, row)
	}

	ids := make([]int, 0, len(parts))
	for l := range parts {
		ids = append(ids, l)
	}
	sort.Ints(ids)

	profiles := make([]ClusterProfile, 0, len(ids))
	for _, l := range ids {
		part := parts[l]
		s, err := stats.Summarize(part, opts.Summary...)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", l, err)
		}
		p := ClusterProfile{Cluster: l, Size: part.NumRows(), Summary: s}
		if opts.Column != "" {
			if p.Counts, err = stats.ValueCounts(part, opts.Column); err != nil {
				return nil, fmt.Errorf("cluster %d: %w", l, err)
			}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// ProfileCountsTable renders the per-cluster frequency tables in long form
func ProfileCountsTable(name, column string, profiles []ClusterProfile) *model.Table {
	t := model.NewTable(name, []model.Column{
		{Name: "cluster", Kind: model.KindNumber},
		{Name: column, Kind: model.KindText},
		{Name: "label", Kind: model.KindText},
		{Name: "n", Kind: model.KindNumber},
		{Name: "share", Kind: model.KindNumber},
	})
	for _, p := range profiles {
		for _, c := range p.Counts {
			t.AppendRow([]model.Value{
				model.Number(float64(p.Cluster)),
				model.Text(c.Value.String(valueKind(c.Value))),
				model.Text(c.Label),
				model.Number(float64(c.N)),
				model.Number(float64(c.N) / float64(p.Size)),
			})
		}
	}
	return t
}

// ClusterSizesTable lists the number of rows per cluster
func ClusterSizesTable(name string, profiles []ClusterProfile) *model.Table {
	t := model.NewTable(name, []model.Column{
		{Name: "cluster", Kind: model.KindNumber},
		{Name: "size", Kind: model.KindNumber},
	})
	for _, p := range profiles {
		t.AppendRow([]model.Value{model.Number(float64(p.Cluster)), model.Number(float64(p.Size))})
	}
	return t
}

func valueKind(v model.Value) model.Kind {
	if v.Text != "" {
		return model.KindText
	}
	return model.KindNumber
}
