package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/discord"
	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

// DragOutcome classifies what happened to one user during a drag.
type DragOutcome string

const (
	OutcomeJoined        DragOutcome = "joined"         // 201: user added
	OutcomeAlreadyMember DragOutcome = "already_member" // 204
	OutcomeAdded         DragOutcome = "added"          // any other 2xx
	OutcomeAddFailed     DragOutcome = "add_failed"     // Discord answered non-2xx
	OutcomeUnreachable   DragOutcome = "unreachable"    // transport error or timeout
	OutcomeRefreshFailed DragOutcome = "refresh_failed" // expired token could not be renewed
)

// DragResult is the per-user line of a drag report. Status is Discord's
// HTTP status, or 0 when no add request got an answer.
type DragResult struct {
	UserID  snowflake.ID `json:"user_id"`
	Status  int          `json:"status"`
	Outcome DragOutcome  `json:"outcome"`
	Error   string       `json:"error,omitempty"`
}

// Succeeded reports whether the user ended up in the guild.
func (r DragResult) Succeeded() bool {
	switch r.Outcome {
	case OutcomeJoined, OutcomeAlreadyMember, OutcomeAdded:
		return true
	}
	return false
}

// DragService force-joins every stored user into a guild.
type DragService struct {
	users   repository.IdentityRepository
	oauth   OAuthProvider
	members MemberAdder
	workers int
	now     func() time.Time
	logger  *slog.Logger
}

// NewDragService creates a DragService that runs up to workers adds at
// once. With one worker results follow store order.
func NewDragService(users repository.IdentityRepository, oauth OAuthProvider, members MemberAdder, workers int, logger *slog.Logger) *DragService {
	if workers < 1 {
		workers = 1
	}
	return &DragService{
		users:   users,
		oauth:   oauth,
		members: members,
		workers: workers,
		now:     time.Now,
		logger:  logger,
	}
}

// Drag snapshots the stored users and returns a sequence yielding one
// result per user. Failures are reported per user and never stop the
// batch; nothing is rolled back. Only failing to read the store is an error.
//
// The adds run while the sequence is consumed. Stopping early cancels the
// users not yet processed.
func (s *DragService) Drag(ctx context.Context, guildID snowflake.ID) (iter.Seq[DragResult], error) {
	identities, err := s.users.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/drag: listing users: %w", err)
	}

	s.logger.Info("drag started",
		slog.String("guildID", guildID.String()),
		slog.Int("users", len(identities)),
		slog.Int("workers", s.workers),
	)

	if s.workers == 1 || len(identities) < 2 {
		return func(yield func(DragResult) bool) {
			for _, identity := range identities {
				if !yield(s.dragOne(ctx, guildID, identity)) {
					return
				}
			}
		}, nil
	}

	return func(yield func(DragResult) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		jobs := make(chan model.Identity)
		results := make(chan DragResult)

		go func() {
			defer close(jobs)
			for _, identity := range identities {
				select {
				case jobs <- identity:
				case <-ctx.Done():
					return
				}
			}
		}()

		var wg sync.WaitGroup
		for range min(s.workers, len(identities)) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for identity := range jobs {
					r := s.dragOne(ctx, guildID, identity)
					select {
					case results <- r:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		for r := range results {
			if !yield(r) {
				cancel()
				for range results {
				}
				return
			}
		}
	}, nil
}

// dragOne refreshes the user's token if needed and adds them to the guild.
func (s *DragService) dragOne(ctx context.Context, guildID snowflake.ID, identity model.Identity) DragResult {
	result := DragResult{UserID: identity.ID}

	token := identity.AccessToken
	if token == "" || identity.Expired(s.now()) {
		creds, err := s.oauth.Refresh(ctx, identity.RefreshToken)
		if err != nil {
			result.Outcome = OutcomeRefreshFailed
			result.Error = err.Error()
			s.record(result)
			return result
		}
		token = creds.AccessToken

		if err := s.users.UpdateTokens(ctx, identity.ID, creds.AccessToken, creds.RefreshToken, creds.ExpiresAt); err != nil {
			// the add can still go ahead with the fresh token
			s.logger.Warn("persisting refreshed token failed",
				slog.String("userID", identity.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	status, err := s.members.AddGuildMember(ctx, guildID, identity.ID, token)
	var apiErr *discord.APIError
	switch {
	case err == nil:
		result.Status = status
		switch status {
		case http.StatusCreated:
			result.Outcome = OutcomeJoined
		case http.StatusNoContent:
			result.Outcome = OutcomeAlreadyMember
		default:
			result.Outcome = OutcomeAdded
		}
	case errors.As(err, &apiErr):
		result.Status = apiErr.Status
		result.Outcome = OutcomeAddFailed
		result.Error = string(bytes.TrimSpace(apiErr.Body))
	default:
		result.Outcome = OutcomeUnreachable
		result.Error = err.Error()
	}

	s.record(result)
	return result
}

func (s *DragService) record(r DragResult) {
	dragResults.WithLabelValues(string(r.Outcome)).Inc()
	if r.Succeeded() {
		s.logger.Debug("user dragged",
			slog.String("userID", r.UserID.String()),
			slog.String("outcome", string(r.Outcome)),
		)
		return
	}
	s.logger.Warn("user not dragged",
		slog.String("userID", r.UserID.String()),
		slog.String("outcome", string(r.Outcome)),
		slog.Int("status", r.Status),
		slog.String("error", r.Error),
	)
}
