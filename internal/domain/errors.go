package domain

import "errors"

var (
	// ErrContentNotFound is returned when a content id cannot be resolved.
	ErrContentNotFound = errors.New("content not found")
	// ErrAggregateNotFound signals a user without a provisioned gamification aggregate.
	ErrAggregateNotFound = errors.New("gamification aggregate not found")
	// ErrAggregateExists is returned when provisioning a user twice.
	ErrAggregateExists = errors.New("gamification aggregate already exists")
	// ErrInvalidSubmission rejects malformed score submissions before any write happens.
	ErrInvalidSubmission = errors.New("invalid score submission")
	// ErrInvalidContentType indicates an unknown content type in a query or seed file.
	ErrInvalidContentType = errors.New("invalid content type")
	// ErrInvalidQuery rejects malformed read parameters such as a leaderboard limit.
	ErrInvalidQuery = errors.New("invalid query")
)
