package postgres

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/meikuraledutech/chatbridge"
)

// maxErrorLen bounds the stored error text. Blocked-candidate dumps can be
// as long as the reply itself.
const maxErrorLen = 4096

// AddRequestLog records a model call that is about to start. Status,
// counters and timestamps come from the column defaults.
func (s *PGStore) AddRequestLog(ctx context.Context, log chatbridge.RequestLog) (*chatbridge.RequestLog, error) {
	log.ID = uuid.New().String()
	log.FinalStatus = chatbridge.StatusPending

	err := s.db.QueryRow(ctx, `
		INSERT INTO chatbridge_request_logs (id, session_id, model, mode, prompt, final_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		log.ID, log.SessionID, log.Model, log.Mode, log.Prompt, log.FinalStatus,
	).Scan(&log.CreatedAt, &log.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("chatbridge: add request log: %w", err)
	}
	return &log, nil
}

// UpdateRequestLog stores the outcome of a logged call. A nil usage leaves
// the token counters at zero.
func (s *PGStore) UpdateRequestLog(ctx context.Context, id string, response string, status string, failReason string, errorMsg string, usage *chatbridge.Usage) error {
	var u chatbridge.Usage
	if usage != nil {
		u = *usage
	}
	errorMsg = truncateUTF8(errorMsg, maxErrorLen)

	tag, err := s.db.Exec(ctx, `
		UPDATE chatbridge_request_logs
		SET response = $2, final_status = $3, fail_reason = $4, error_message = $5,
		    prompt_tokens = $6, response_tokens = $7, total_tokens = $8, thought_tokens = $9,
		    updated_at = NOW()
		WHERE id = $1`,
		id, response, status, failReason, errorMsg,
		u.PromptTokens, u.ResponseTokens, u.TotalTokens, u.ThoughtTokens,
	)
	if err != nil {
		return fmt.Errorf("chatbridge: update request log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chatbridge: update request log: no log with id %s", id)
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
