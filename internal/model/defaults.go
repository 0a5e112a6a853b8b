package model

// Shared defaults used by the server, the CLI and the query layers.
const (
	DefaultPage            = 1
	DefaultLimit           = 50
	MaxLimit               = 100
	MaxSearchLength        = 100
	DefaultSortField       = FieldCreatedAt
	DefaultSortOrder       = SortDesc
	DefaultSampleSize      = 10
	DefaultFacetLimit      = 20
	DefaultFieldFacetLimit = 50
	DefaultExportLimit     = 10000
	DefaultOverviewLimit   = 10
	MaxOverviewLimit       = 1000
)

// Sort directions accepted by the read API.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)
