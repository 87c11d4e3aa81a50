package graph

import "time"

// GraphClient connects segments internally and merges them into the global
// record set.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	parallelRequests int
	maxRetries       int
	searchLimit      int
	retryBackoff     time.Duration
	now              func() time.Time
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// ParallelRequests bounds how many record categories are resolved at once.
// MaxRetries is the number of attempts for each global upsert.
// SearchLimit is the number of hits requested per store query.
type NewGraphClientParams struct {
	ParallelRequests int
	MaxRetries       int
	SearchLimit      int
	RetryBackoff     time.Duration
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters. Zero values fall back to 10 parallel requests,
// 3 retries and 5 hits per query.
//
// Example:
//
//	client := graph.NewGraphClient(graph.NewGraphClientParams{
//		ParallelRequests: 10,
//		MaxRetries:       3,
//	})
//	res, err := client.MergeSegmentIntoGlobal(ctx, segment, store)
func NewGraphClient(params NewGraphClientParams) *GraphClient {
	parallel := params.ParallelRequests
	if parallel <= 0 {
		parallel = 10
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	limit := params.SearchLimit
	if limit <= 0 {
		limit = 5
	}
	return &GraphClient{
		parallelRequests: parallel,
		maxRetries:       maxRetries,
		searchLimit:      limit,
		retryBackoff:     params.RetryBackoff,
		now:              time.Now,
	}
}
