package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/dcervantes/rutalert/internal/payload"
	"github.com/dcervantes/rutalert/internal/registry"
)

// Recipient pairs a device token with the user that owns it, so a failed
// send can be traced back for remediation.
type Recipient struct {
	UserID string
	Token  string
}

// MaxBatchSize is the provider-imposed ceiling on recipients per
// multicast call.
const MaxBatchSize = 500

// DirectTransport fans a notification out to individual device tokens. It
// snapshots the registry, picks every user who favorited the route and has
// a token, and multicasts in concurrent batches.
type DirectTransport struct {
	reader    registry.Reader
	client    MulticastClient
	batchSize int
}

func NewDirectTransport(reader registry.Reader, client MulticastClient, batchSize int) *DirectTransport {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &DirectTransport{
		reader:    reader,
		client:    client,
		batchSize: batchSize,
	}
}

func (t *DirectTransport) SendToRoute(ctx context.Context, routeName string, n *payload.Notification) (*Result, error) {
	snapshot, err := t.reader.Users(ctx)
	if err != nil {
		return nil, err
	}

	recipients := RecipientsForRoute(snapshot, routeName)
	if len(recipients) == 0 {
		log.Printf("No users have %s as favorite", routeName)
		return &Result{}, nil
	}

	log.Printf("Sending notification to %d user(s) on route %s", len(recipients), routeName)

	batches := Partition(recipients, t.batchSize)

	type batchOutcome struct {
		recipients []Recipient
		resp       *BatchResponse
		err        error
	}

	outcomes := make([]batchOutcome, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []Recipient) {
			defer wg.Done()

			tokens := make([]string, len(batch))
			for j, r := range batch {
				tokens[j] = r.Token
			}

			resp, err := t.client.SendEachForMulticast(ctx, tokens, n)
			outcomes[i] = batchOutcome{recipients: batch, resp: resp, err: err}
		}(i, batch)
	}
	wg.Wait()

	result := &Result{}
	failedBatches := 0
	var firstErr error

	for _, out := range outcomes {
		if out.err != nil {
			// A wholesale batch failure (network, auth) still must not
			// abort delivery already attempted by the other batches.
			failedBatches++
			if firstErr == nil {
				firstErr = out.err
			}
			result.FailureCount += len(out.recipients)
			for _, r := range out.recipients {
				result.Failures = append(result.Failures, Failure{
					UserID: r.UserID,
					Token:  r.Token,
					Code:   errCode(out.err),
				})
			}
			continue
		}

		result.SuccessCount += out.resp.SuccessCount
		result.FailureCount += out.resp.FailureCount
		for j, sr := range out.resp.Responses {
			if sr.Success {
				continue
			}
			result.Failures = append(result.Failures, Failure{
				UserID: out.recipients[j].UserID,
				Token:  out.recipients[j].Token,
				Code:   errCode(sr.Error),
			})
		}
	}

	if failedBatches == len(batches) {
		return nil, firstErr
	}

	return result, nil
}

// RecipientsForRoute selects every user with the route favorited and a
// non-empty token. Iteration order over the snapshot is not significant;
// no ordering is promised to callers.
func RecipientsForRoute(snapshot registry.Snapshot, routeName string) []Recipient {
	var recipients []Recipient
	for userID, user := range snapshot {
		if user.FavoriteRoutes[routeName] && user.FCMToken != "" {
			recipients = append(recipients, Recipient{UserID: userID, Token: user.FCMToken})
		}
	}
	return recipients
}

// Partition splits recipients into batches of at most size, preserving
// order within and across batches. A non-positive size falls back to the
// provider maximum so the loop always advances.
func Partition(recipients []Recipient, size int) [][]Recipient {
	if size <= 0 {
		size = MaxBatchSize
	}

	var batches [][]Recipient
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		batches = append(batches, recipients[start:end])
	}
	return batches
}

func errCode(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	if err == nil {
		return ""
	}
	return "unavailable"
}
