package cleanup

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dcervantes/rutalert/internal/dispatch"
	"github.com/dcervantes/rutalert/internal/registry"
)

// TokenValidator probes a token without delivering anything. Implemented by
// the FCM client's validate-only send.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) error
}

type Report struct {
	Checked int    `json:"checked"`
	Removed int    `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// Sanitizer prunes dead device tokens from the registry. Each run is
// self-contained: snapshot, validate everything concurrently, remove what
// the provider says is gone, report.
type Sanitizer struct {
	store         registry.Store
	validator     TokenValidator
	numValidators int
}

func NewSanitizer(store registry.Store, validator TokenValidator, numValidators int) *Sanitizer {
	if numValidators <= 0 {
		numValidators = 10
	}
	return &Sanitizer{
		store:         store,
		validator:     validator,
		numValidators: numValidators,
	}
}

func (s *Sanitizer) Run(ctx context.Context) *Report {
	log.Println("Starting token cleanup")

	snapshot, err := s.store.Users(ctx)
	if err != nil {
		log.Printf("Error during token cleanup: %v", err)
		return &Report{Error: err.Error()}
	}

	type candidate struct {
		userID string
		token  string
	}

	var candidates []candidate
	for userID, user := range snapshot {
		if user.FCMToken != "" {
			candidates = append(candidates, candidate{userID: userID, token: user.FCMToken})
		}
	}

	candidateChan := make(chan candidate)
	var removed atomic.Int64
	var wg sync.WaitGroup

	workers := s.numValidators
	if workers > len(candidates) {
		workers = len(candidates)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range candidateChan {
				if s.validateAndPrune(ctx, c.userID, c.token) {
					removed.Add(1)
				}
			}
		}()
	}

	for _, c := range candidates {
		candidateChan <- c
	}
	close(candidateChan)
	wg.Wait()

	report := &Report{Checked: len(candidates), Removed: int(removed.Load())}
	log.Printf("Cleanup complete. Removed %d invalid tokens", report.Removed)
	return report
}

// validateAndPrune returns true only when the token was actually removed.
// Removal happens on exactly two provider codes; anything else, including
// transport errors, leaves the token alone so a transient failure can
// never delete a live token.
func (s *Sanitizer) validateAndPrune(ctx context.Context, userID, token string) bool {
	err := s.validator.ValidateToken(ctx, token)
	if err == nil {
		return false
	}

	var se *dispatch.SendError
	if !errors.As(err, &se) {
		return false
	}

	if se.Code != dispatch.CodeInvalidToken && se.Code != dispatch.CodeTokenUnregistered {
		return false
	}

	log.Printf("Removing invalid token for user %s", userID)

	if err := s.store.RemoveToken(ctx, userID); err != nil {
		log.Printf("Error removing token for user %s: %v", userID, err)
		return false
	}

	return true
}
