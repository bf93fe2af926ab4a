package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anthropics/worldengine/internal/worldstate"
)

const (
	defaultSQLiteMaxConnections = 4
	sqliteConnMaxLifetime       = 30 * time.Minute
	sqliteConnectTimeout        = 5 * time.Second
)

// SQLiteStore is the relational Execution Store backend (spec.md §4.E):
// receipts, pending markers, and projected chronicle/history records
// live in their own tables rather than inside the world document, and
// SyncWorldMemory refreshes world_chronicle_records from a snapshot on
// demand. Grounded on pkg/server/session_database.go's
// sql.Open/connection-pool/driver-keyed-DDL shape.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStore opens (creating if absent) the SQLite database at path
// and bootstraps its schema.
func NewSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path cannot be empty")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(defaultSQLiteMaxConnections)
	db.SetMaxIdleConns(defaultSQLiteMaxConnections / 2)
	db.SetConnMaxLifetime(sqliteConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), sqliteConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info("sqlite execution store initialized", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema bootstraps the four tables. The tables are independent of
// one another, so their CREATE TABLE + index statements run concurrently.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.execAll(gctx,
			`CREATE TABLE IF NOT EXISTS execution_receipts (
				execution_id TEXT PRIMARY KEY,
				handoff_id TEXT NOT NULL,
				idempotency_key TEXT NOT NULL,
				proposal_id TEXT,
				proposal_type TEXT,
				actor_id TEXT,
				town_id TEXT,
				command TEXT,
				authority_commands TEXT,
				status TEXT NOT NULL,
				accepted BOOLEAN NOT NULL,
				executed BOOLEAN NOT NULL,
				reason_code TEXT,
				snapshot_hash TEXT,
				decision_epoch INTEGER,
				post_execution_snapshot_hash TEXT,
				post_execution_decision_epoch INTEGER,
				payload TEXT,
				at INTEGER NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_execution_receipts_handoff_idem ON execution_receipts (handoff_id, idempotency_key)`,
			`CREATE INDEX IF NOT EXISTS idx_execution_receipts_town ON execution_receipts (town_id)`,
			`CREATE INDEX IF NOT EXISTS idx_execution_receipts_at ON execution_receipts (at)`,
		)
	})

	g.Go(func() error {
		return s.execAll(gctx,
			`CREATE TABLE IF NOT EXISTS execution_pending (
				handoff_id TEXT NOT NULL,
				idempotency_key TEXT NOT NULL,
				proposal_type TEXT,
				actor_id TEXT,
				town_id TEXT,
				authority_commands TEXT,
				completed_command_count INTEGER NOT NULL DEFAULT 0,
				staged_at INTEGER NOT NULL,
				PRIMARY KEY (handoff_id, idempotency_key)
			)`,
		)
	})

	g.Go(func() error {
		return s.execAll(gctx,
			`CREATE TABLE IF NOT EXISTS execution_event_ledger (
				event_id TEXT PRIMARY KEY,
				at INTEGER NOT NULL,
				kind TEXT,
				payload TEXT
			)`,
		)
	})

	g.Go(func() error {
		return s.execAll(gctx,
			`CREATE TABLE IF NOT EXISTS world_chronicle_records (
				record_id TEXT PRIMARY KEY,
				source_id TEXT,
				town_id TEXT,
				faction_id TEXT,
				at INTEGER NOT NULL,
				type TEXT,
				msg TEXT,
				meta TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_world_chronicle_town ON world_chronicle_records (town_id)`,
			`CREATE INDEX IF NOT EXISTS idx_world_chronicle_faction ON world_chronicle_records (faction_id)`,
			`CREATE INDEX IF NOT EXISTS idx_world_chronicle_at ON world_chronicle_records (at)`,
		)
	})

	return g.Wait()
}

func (s *SQLiteStore) execAll(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) StagePendingExecution(pending *worldstate.PendingExecution) error {
	cmds, err := json.Marshal(pending.AuthorityCommands)
	if err != nil {
		return fmt.Errorf("failed to marshal authority commands: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO execution_pending (handoff_id, idempotency_key, proposal_type, actor_id, town_id, authority_commands, completed_command_count, staged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handoff_id, idempotency_key) DO UPDATE SET
			completed_command_count = excluded.completed_command_count,
			staged_at = excluded.staged_at`,
		pending.HandoffID, pending.IdempotencyKey, pending.ProposalType, pending.ActorID, pending.TownID,
		string(cmds), pending.CompletedCommandCount, pending.StagedAt)
	if err != nil {
		return fmt.Errorf("failed to stage pending execution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordResult(receipt *worldstate.ExecutionReceipt) error {
	cmds, err := json.Marshal(receipt.AuthorityCommands)
	if err != nil {
		return fmt.Errorf("failed to marshal authority commands: %w", err)
	}
	payload, err := json.Marshal(receipt.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt payload: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO execution_receipts (
			execution_id, handoff_id, idempotency_key, proposal_id, proposal_type, actor_id, town_id,
			command, authority_commands, status, accepted, executed, reason_code, snapshot_hash, decision_epoch,
			post_execution_snapshot_hash, post_execution_decision_epoch, payload, at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ExecutionID, receipt.HandoffID, receipt.IdempotencyKey, receipt.ProposalID, receipt.ProposalType,
		receipt.ActorID, receipt.TownID, receipt.Command, string(cmds), receipt.Status, receipt.Accepted, receipt.Executed,
		receipt.ReasonCode, receipt.SnapshotHash, receipt.DecisionEpoch, receipt.PostExecutionSnapshotHash,
		receipt.PostExecutionDecisionEpoch, string(payload), receipt.At)
	if err != nil {
		return fmt.Errorf("failed to record execution receipt: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM execution_pending WHERE handoff_id = ? AND idempotency_key = ?`,
		receipt.HandoffID, receipt.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to clear pending marker: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) FindReceipt(handoffID, idempotencyKey string) (*worldstate.ExecutionReceipt, error) {
	row := s.db.QueryRow(`
		SELECT execution_id, handoff_id, idempotency_key, proposal_id, proposal_type, actor_id, town_id,
			command, authority_commands, status, accepted, executed, reason_code, snapshot_hash, decision_epoch,
			post_execution_snapshot_hash, post_execution_decision_epoch, payload, at
		FROM execution_receipts WHERE handoff_id = ? AND idempotency_key = ?`, handoffID, idempotencyKey)
	receipt, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt: %w", err)
	}
	return receipt, nil
}

func (s *SQLiteStore) FindPendingExecution(handoffID, idempotencyKey string) (*worldstate.PendingExecution, error) {
	row := s.db.QueryRow(`
		SELECT handoff_id, idempotency_key, proposal_type, actor_id, town_id, authority_commands, completed_command_count, staged_at
		FROM execution_pending WHERE handoff_id = ? AND idempotency_key = ?`, handoffID, idempotencyKey)
	pending, err := scanPending(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending execution: %w", err)
	}
	return pending, nil
}

func (s *SQLiteStore) ListPendingExecutions() ([]*worldstate.PendingExecution, error) {
	rows, err := s.db.Query(`
		SELECT handoff_id, idempotency_key, proposal_type, actor_id, town_id, authority_commands, completed_command_count, staged_at
		FROM execution_pending ORDER BY staged_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending executions: %w", err)
	}
	defer rows.Close()

	var out []*worldstate.PendingExecution
	for rows.Next() {
		pending, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending execution: %w", err)
		}
		out = append(out, pending)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListChronicleRecords(townID, factionID, search string, limit int) ([]*worldstate.ChronicleRecord, error) {
	if limit <= 0 || limit > worldstate.MaxContextChronicleRecords {
		limit = worldstate.MaxContextChronicleRecords
	}
	query := `SELECT record_id, source_id, town_id, faction_id, at, type, msg, meta FROM world_chronicle_records WHERE 1=1`
	var args []interface{}
	if townID != "" {
		query += " AND town_id = ?"
		args = append(args, townID)
	}
	if factionID != "" {
		query += " AND faction_id = ?"
		args = append(args, factionID)
	}
	if search != "" {
		query += " AND msg LIKE ?"
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY at DESC, record_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chronicle records: %w", err)
	}
	defer rows.Close()

	var out []*worldstate.ChronicleRecord
	for rows.Next() {
		var r worldstate.ChronicleRecord
		var meta string
		if err := rows.Scan(&r.RecordID, &r.SourceID, &r.TownID, &r.FactionID, &r.At, &r.Type, &r.Msg, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan chronicle record: %w", err)
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &r.Meta)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListHistoryRecords(townID, factionID string, limit int) ([]*worldstate.ExecutionReceipt, error) {
	if limit <= 0 || limit > worldstate.MaxContextHistoryRecords {
		limit = worldstate.MaxContextHistoryRecords
	}
	query := `
		SELECT execution_id, handoff_id, idempotency_key, proposal_id, proposal_type, actor_id, town_id,
			command, authority_commands, status, accepted, executed, reason_code, snapshot_hash, decision_epoch,
			post_execution_snapshot_hash, post_execution_decision_epoch, payload, at
		FROM execution_receipts WHERE 1=1`
	var args []interface{}
	if townID != "" {
		query += " AND town_id = ?"
		args = append(args, townID)
	}
	query += " ORDER BY at DESC, execution_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}
	defer rows.Close()

	var out []*worldstate.ExecutionReceipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution receipt: %w", err)
		}
		out = append(out, receipt)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetTownHistorySummary(townID string) (TownHistorySummary, error) {
	summary := TownHistorySummary{}
	rows, err := s.db.Query(`SELECT status FROM execution_receipts WHERE town_id = ?`, townID)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize town history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return summary, fmt.Errorf("failed to scan status: %w", err)
		}
		summary.HistoryCount++
		tallyExecutionCount(&summary.ExecutionCounts, status)
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM world_chronicle_records WHERE town_id = ?`, townID).Scan(&summary.ChronicleCount); err != nil {
		return summary, fmt.Errorf("failed to count chronicle records: %w", err)
	}
	return summary, nil
}

func (s *SQLiteStore) GetFactionHistorySummary(factionID string) (FactionHistorySummary, error) {
	summary := FactionHistorySummary{}
	rows, err := s.db.Query(`SELECT status FROM execution_receipts WHERE town_id = ''`)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize faction history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return summary, fmt.Errorf("failed to scan status: %w", err)
		}
		summary.HistoryCount++
		tallyExecutionCount(&summary.ExecutionCounts, status)
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM world_chronicle_records WHERE faction_id = ?`, factionID).Scan(&summary.ChronicleCount); err != nil {
		return summary, fmt.Errorf("failed to count chronicle records: %w", err)
	}
	return summary, nil
}

// SyncWorldMemory refreshes world_chronicle_records from the projected
// document: each source chronicle entry is upserted by record id, and
// any row whose record id no longer exists in the document (trimmed by
// the bound) is deleted, keeping the table capped at
// worldstate.MaxChronicleRecords without relying on a query-time LIMIT.
func (s *SQLiteStore) SyncWorldMemory(doc *worldstate.Document) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	keep := make([]string, 0, len(doc.World.Chronicle))
	for _, r := range doc.World.Chronicle {
		meta, err := json.Marshal(r.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal chronicle meta: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO world_chronicle_records (record_id, source_id, town_id, faction_id, at, type, msg, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(record_id) DO UPDATE SET
				source_id = excluded.source_id, town_id = excluded.town_id, faction_id = excluded.faction_id,
				at = excluded.at, type = excluded.type, msg = excluded.msg, meta = excluded.meta`,
			r.RecordID, r.SourceID, r.TownID, r.FactionID, r.At, r.Type, r.Msg, string(meta))
		if err != nil {
			return fmt.Errorf("failed to upsert chronicle record %s: %w", r.RecordID, err)
		}
		keep = append(keep, r.RecordID)
	}

	if len(keep) > 0 {
		placeholders := strings.Repeat("?,", len(keep))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, len(keep))
		for i, id := range keep {
			args[i] = id
		}
		if _, err := tx.Exec(`DELETE FROM world_chronicle_records WHERE record_id NOT IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("failed to prune stale chronicle records: %w", err)
		}
	} else {
		if _, err := tx.Exec(`DELETE FROM world_chronicle_records`); err != nil {
			return fmt.Errorf("failed to clear chronicle records: %w", err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(row rowScanner) (*worldstate.ExecutionReceipt, error) {
	var r worldstate.ExecutionReceipt
	var cmds, payload string
	if err := row.Scan(
		&r.ExecutionID, &r.HandoffID, &r.IdempotencyKey, &r.ProposalID, &r.ProposalType, &r.ActorID, &r.TownID,
		&r.Command, &cmds, &r.Status, &r.Accepted, &r.Executed, &r.ReasonCode, &r.SnapshotHash, &r.DecisionEpoch,
		&r.PostExecutionSnapshotHash, &r.PostExecutionDecisionEpoch, &payload, &r.At,
	); err != nil {
		return nil, err
	}
	r.ResultID = "result_" + strings.TrimPrefix(r.ExecutionID, "result_")
	if cmds != "" {
		_ = json.Unmarshal([]byte(cmds), &r.AuthorityCommands)
	}
	if payload != "" {
		_ = json.Unmarshal([]byte(payload), &r.Payload)
	}
	return &r, nil
}

func scanPending(row rowScanner) (*worldstate.PendingExecution, error) {
	var p worldstate.PendingExecution
	var cmds string
	if err := row.Scan(&p.HandoffID, &p.IdempotencyKey, &p.ProposalType, &p.ActorID, &p.TownID, &cmds, &p.CompletedCommandCount, &p.StagedAt); err != nil {
		return nil, err
	}
	if cmds != "" {
		_ = json.Unmarshal([]byte(cmds), &p.AuthorityCommands)
	}
	return &p, nil
}
