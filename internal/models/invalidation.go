package models

import "strings"

// View names a cached read view of the stores.
type View string

const (
	ViewWatchlist View = "watchlist"
	ViewArchive   View = "archive"
)

// Mutation names a client-visible write operation.
type Mutation string

const (
	MutationAdd             Mutation = "add"
	MutationRemove          Mutation = "remove"
	MutationToggleFavourite Mutation = "toggle_favourite"
	MutationDeleteArchived  Mutation = "delete_archived"
	MutationStartRefresh    Mutation = "start_refresh"
)

var invalidationTable = map[Mutation][]View{
	MutationAdd:             {ViewWatchlist, ViewArchive},
	MutationRemove:          {ViewWatchlist, ViewArchive},
	MutationToggleFavourite: {ViewWatchlist},
	MutationDeleteArchived:  {ViewArchive},
	MutationStartRefresh:    {ViewWatchlist, ViewArchive},
}

// InvalidatedViews returns exactly the views a mutation can make stale.
// Unknown mutations invalidate everything.
func InvalidatedViews(m Mutation) []View {
	views, ok := invalidationTable[m]
	if !ok {
		return []View{ViewWatchlist, ViewArchive}
	}
	out := make([]View, len(views))
	copy(out, views)
	return out
}

// JoinViews renders views for the X-Invalidate-Views header.
func JoinViews(views []View) string {
	parts := make([]string, len(views))
	for i, v := range views {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}
