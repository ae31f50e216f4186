package domain

const (
	// DEFAULT_MAX_CHAIN_WALK_HOPS bounds the parent-lineage walk when
	// resolving a chain root
	DEFAULT_MAX_CHAIN_WALK_HOPS = 50

	// DEFAULT_PIXEL_BUDGET_MS is the per-request budget for the pixel
	// channel before remaining stages are completed asynchronously
	DEFAULT_PIXEL_BUDGET_MS = 150
)
