package domain

import "slices"

// Round is a named funding cycle grouping submissions. SubmissionIDs reflects
// the last successful round fetch; membership is eventually consistent between
// polls.
type Round struct {
	ID            int
	Title         string
	SubmissionIDs []int
}

// Clone returns a copy safe to hand outside the cache.
func (r Round) Clone() Round {
	out := r
	out.SubmissionIDs = slices.Clone(r.SubmissionIDs)
	return out
}
