package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/pkg/db"
)

const (
	kvHistory     = "trade_history"
	kvDailyProfit = "daily_profit"
)

// PgStore хранит снапшот в postgres: позиции блобами в tracked_positions,
// хвост журнала и дневную прибыль — в engine_kv.
type PgStore struct {
	db *db.PgTxManager
}

func NewPgStore(m *db.PgTxManager) *PgStore {
	return &PgStore{db: m}
}

func (s *PgStore) Ensure(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.Ensure: %w", err)
		}
	}()

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			CREATE TABLE IF NOT EXISTS tracked_positions (
				id         TEXT PRIMARY KEY,
				data       JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctxTx, `
			CREATE TABLE IF NOT EXISTS engine_kv (
				key   TEXT PRIMARY KEY,
				value JSONB NOT NULL
			)`)
		return err
	})
}

// Save — replace-all в одной транзакции.
func (s *PgStore) Save(ctx context.Context, snap Snapshot) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.Save: %w", err)
		}
	}()

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx, `DELETE FROM tracked_positions`); err != nil {
			return err
		}
		for i := range snap.Positions {
			data, err := sonic.Marshal(&snap.Positions[i])
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctxTx,
				`INSERT INTO tracked_positions (id, data, updated_at) VALUES ($1, $2, now())`,
				snap.Positions[i].ID, data)
			if err != nil {
				return err
			}
		}

		if err := upsertKV(ctxTx, tx, kvHistory, snap.History); err != nil {
			return err
		}
		return upsertKV(ctxTx, tx, kvDailyProfit, snap.DailyProfit)
	})
}

func (s *PgStore) Load(ctx context.Context) (snap Snapshot, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.Load: %w", err)
		}
	}()

	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, `SELECT data FROM tracked_positions`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			var pos models.TrackedPosition
			if err := sonic.Unmarshal(data, &pos); err != nil {
				return err
			}
			snap.Positions = append(snap.Positions, pos)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if err := readKV(ctxTx, tx, kvHistory, &snap.History); err != nil {
			return err
		}
		return readKV(ctxTx, tx, kvDailyProfit, &snap.DailyProfit)
	})
	return snap, err
}

func upsertKV(ctx context.Context, tx pgx.Tx, key string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO engine_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, data)
	return err
}

func readKV(ctx context.Context, tx pgx.Tx, key string, out any) error {
	var data []byte
	err := tx.QueryRow(ctx, `SELECT value FROM engine_kv WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, out)
}
