package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"leadbridge/internal/leads"
	"leadbridge/pkg/utils"
)

// PostgresRepo persists lead snapshots. One row per lead; replayed
// completions are absorbed by the conflict clause rather than erroring.
//
// Schema (managed externally):
//
//	CREATE TABLE lead_snapshots (
//	    lead_id                 TEXT PRIMARY KEY,
//	    contact_call_id         TEXT NOT NULL,
//	    sales_call_id           TEXT NOT NULL,
//	    conversation_id         TEXT NOT NULL DEFAULT '',
//	    outcome                 TEXT NOT NULL,
//	    bridged                 BOOLEAN NOT NULL,
//	    is_voicemail            BOOLEAN NOT NULL,
//	    sales_team_unavailable  BOOLEAN NOT NULL,
//	    needs_follow_up         BOOLEAN NOT NULL,
//	    lead                    JSONB NOT NULL,
//	    transcript_turns        JSONB NOT NULL DEFAULT '[]',
//	    derived_intent          JSONB,
//	    finished_at             TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// SaveSnapshot implements leads.Archive.
func (r *PostgresRepo) SaveSnapshot(ctx context.Context, snap leads.Snapshot) error {
	leadJSON, err := json.Marshal(snap.Lead)
	if err != nil {
		return fmt.Errorf("archive: marshal lead: %w", err)
	}
	turnsJSON, err := json.Marshal(snap.TranscriptTurns)
	if err != nil {
		return fmt.Errorf("archive: marshal turns: %w", err)
	}
	var intentJSON []byte
	if snap.DerivedIntent != nil {
		intentJSON, err = json.Marshal(snap.DerivedIntent)
		if err != nil {
			return fmt.Errorf("archive: marshal intent: %w", err)
		}
	}

	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lead_snapshots (
				lead_id, contact_call_id, sales_call_id, conversation_id,
				outcome, bridged, is_voicemail, sales_team_unavailable,
				needs_follow_up, lead, transcript_turns, derived_intent, finished_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (lead_id) DO NOTHING`,
			snap.LeadID,
			snap.ContactCallID,
			snap.SalesCallID,
			snap.ConversationID,
			string(snap.Outcome),
			snap.Bridged,
			snap.IsVoicemail,
			snap.SalesTeamUnavailable,
			snap.NeedsFollowUp,
			leadJSON,
			turnsJSON,
			nullableJSON(intentJSON),
			snap.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("archive: insert snapshot %s: %w", snap.LeadID, err)
		}
		return nil
	})
}

// GetSnapshot loads one archived lead.
func (r *PostgresRepo) GetSnapshot(ctx context.Context, leadID string) (leads.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT lead_id, contact_call_id, sales_call_id, conversation_id,
		       outcome, bridged, is_voicemail, sales_team_unavailable,
		       needs_follow_up, lead, transcript_turns, derived_intent, finished_at
		FROM lead_snapshots
		WHERE lead_id = $1`, leadID)

	var snap leads.Snapshot
	var outcome string
	var leadJSON, turnsJSON []byte
	var intentJSON sql.Null[[]byte]
	err := row.Scan(
		&snap.LeadID, &snap.ContactCallID, &snap.SalesCallID, &snap.ConversationID,
		&outcome, &snap.Bridged, &snap.IsVoicemail, &snap.SalesTeamUnavailable,
		&snap.NeedsFollowUp, &leadJSON, &turnsJSON, &intentJSON, &snap.FinishedAt,
	)
	if err != nil {
		return leads.Snapshot{}, fmt.Errorf("archive: get snapshot %s: %w", leadID, err)
	}
	snap.Outcome = leads.Outcome(outcome)
	if err := json.Unmarshal(leadJSON, &snap.Lead); err != nil {
		return leads.Snapshot{}, fmt.Errorf("archive: decode lead: %w", err)
	}
	if err := json.Unmarshal(turnsJSON, &snap.TranscriptTurns); err != nil {
		return leads.Snapshot{}, fmt.Errorf("archive: decode turns: %w", err)
	}
	if intentJSON.Valid && len(intentJSON.V) > 0 {
		if err := json.Unmarshal(intentJSON.V, &snap.DerivedIntent); err != nil {
			return leads.Snapshot{}, fmt.Errorf("archive: decode intent: %w", err)
		}
	}
	return snap, nil
}

// ListSnapshots returns archived leads, most recent first. Bounded so the
// reporting endpoint stays cheap on a large archive.
func (r *PostgresRepo) ListSnapshots(ctx context.Context) ([]leads.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT lead_id, outcome, bridged, is_voicemail, sales_team_unavailable,
		       needs_follow_up, derived_intent, finished_at
		FROM lead_snapshots
		ORDER BY finished_at DESC
		LIMIT 10000`)
	if err != nil {
		return nil, fmt.Errorf("archive: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []leads.Snapshot
	for rows.Next() {
		var snap leads.Snapshot
		var outcome string
		var intentJSON sql.Null[[]byte]
		if err := rows.Scan(
			&snap.LeadID, &outcome, &snap.Bridged, &snap.IsVoicemail,
			&snap.SalesTeamUnavailable, &snap.NeedsFollowUp, &intentJSON, &snap.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("archive: scan snapshot: %w", err)
		}
		snap.Outcome = leads.Outcome(outcome)
		if intentJSON.Valid && len(intentJSON.V) > 0 {
			if err := json.Unmarshal(intentJSON.V, &snap.DerivedIntent); err != nil {
				return nil, fmt.Errorf("archive: decode intent: %w", err)
			}
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
