// Package sync is the action/effect layer: it issues fetches against the API
// boundary, drives the per-key fetch lifecycle in the store, owns polling
// timers, and runs the optimistic note-draft workflow. It is the cache's only
// writer.
package sync

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hylla/ansok/internal/domain"
	"github.com/hylla/ansok/internal/store"
)

// Service dispatches fetch lifecycles into the store. Overlapping requests
// for the same key are permitted and never cancelled; instead every issue
// takes a sequence number and responses carrying a stale sequence are
// discarded, so the latest-issued request wins rather than whichever happens
// to resolve last.
type Service struct {
	store  *store.Store
	api    API
	logger *log.Logger

	mu  sync.Mutex
	seq map[store.Key]uint64
}

// NewService constructs the effect layer over a cache and an API boundary.
func NewService(cache *store.Store, api API, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(nil)
	}
	return &Service{
		store:  cache,
		api:    api,
		logger: logger,
		seq:    map[store.Key]uint64{},
	}
}

// Store exposes the cache for read-only selector access.
func (s *Service) Store() *store.Store {
	return s.store
}

// LoadRound fetches one round's submissions and merges them. A failure marks
// the key failed but leaves previously merged data visible.
func (s *Service) LoadRound(ctx context.Context, roundID int) error {
	key := store.RoundKey(roundID)
	seq := s.issue(key)
	s.store.BeginFetch(key)

	subs, err := s.api.FetchSubmissionsByRound(ctx, roundID)
	if s.stale(key, seq) {
		s.logger.Debug("discarding stale round response", "round", roundID, "seq", seq)
		return nil
	}
	if err != nil {
		s.store.FailFetch(key, err.Error())
		return err
	}
	s.store.MergeRoundListing(roundID, subs)
	s.store.FinishFetch(key)
	return nil
}

// LoadStatuses fetches the listing for a status set and merges it, rebuilding
// the bucket for every requested status. The requested set becomes the active
// listing immediately, before the response lands.
func (s *Service) LoadStatuses(ctx context.Context, statuses []domain.Status) error {
	key := store.StatusesKey(statuses)
	seq := s.issue(key)
	s.store.SetCurrentStatuses(statuses)
	s.store.BeginFetch(key)

	subs, err := s.api.FetchSubmissionsByStatuses(ctx, statuses)
	if s.stale(key, seq) {
		s.logger.Debug("discarding stale statuses response", "key", key, "seq", seq)
		return nil
	}
	if err != nil {
		s.store.FailFetch(key, err.Error())
		return err
	}
	s.store.MergeStatusListing(statuses, subs)
	s.store.FinishFetch(key)
	return nil
}

// LoadNotes fetches a submission's notes; the fetched list replaces the
// submission's comment ordering wholesale.
func (s *Service) LoadNotes(ctx context.Context, submissionID int) error {
	key := store.NotesKey(submissionID)
	seq := s.issue(key)
	s.store.BeginFetch(key)

	notes, err := s.api.FetchNotes(ctx, submissionID)
	if s.stale(key, seq) {
		s.logger.Debug("discarding stale notes response", "submission", submissionID, "seq", seq)
		return nil
	}
	if err != nil {
		s.store.FailFetch(key, err.Error())
		return err
	}
	s.store.MergeNotesFromList(submissionID, notes)
	s.store.FinishFetch(key)
	return nil
}

// OpenSubmission makes a submission current and fetches its notes.
func (s *Service) OpenSubmission(ctx context.Context, submissionID int) error {
	s.store.SetCurrentSubmission(submissionID)
	return s.LoadNotes(ctx, submissionID)
}

// issue records a new outstanding request for the key and returns its
// sequence number.
func (s *Service) issue(key store.Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[key]++
	return s.seq[key]
}

// stale reports whether a newer request for the key has been issued since.
func (s *Service) stale(key store.Key, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq[key] != seq
}
