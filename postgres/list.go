package postgres

import (
	"context"
	"fmt"

	"github.com/meikuraledutech/chatbridge"
)

// ListRequestLogs returns the logs of a session, oldest first. An empty
// sessionID lists the most recent logs across all sessions.
func (s *PGStore) ListRequestLogs(ctx context.Context, sessionID string, limit int) ([]chatbridge.RequestLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, model, mode, prompt, response, final_status, fail_reason, error_message,
		        prompt_tokens, response_tokens, total_tokens, thought_tokens, created_at, updated_at
		 FROM (
		   SELECT * FROM chatbridge_request_logs
		   WHERE $1 = '' OR session_id = $1
		   ORDER BY created_at DESC
		   LIMIT $2
		 ) recent
		 ORDER BY created_at ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("chatbridge: list request logs: %w", err)
	}
	defer rows.Close()

	var logs []chatbridge.RequestLog
	for rows.Next() {
		var log chatbridge.RequestLog
		err := rows.Scan(
			&log.ID, &log.SessionID, &log.Model, &log.Mode, &log.Prompt, &log.Response,
			&log.FinalStatus, &log.FailReason, &log.ErrorMsg,
			&log.Usage.PromptTokens, &log.Usage.ResponseTokens, &log.Usage.TotalTokens, &log.Usage.ThoughtTokens,
			&log.CreatedAt, &log.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("chatbridge: scan request log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatbridge: list request logs: %w", err)
	}

	return logs, nil
}
