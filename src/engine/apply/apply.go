// Package apply implements the Action Applier: applying
// one or more Doc Actions inside a single immediate-mode SQLite
// transaction, with broadcast stripping for oversized actions. Grounded
// on the connection-state discipline of src/driver/run.go and
// src/driver/pooled_conn.go, generalized from a Bolt session's one-query-
// at-a-time model to a full DDL/DML action batch.
package apply

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/gristlabs/gristmux/src/model"
)

// DefaultMaxSmallActionRowIDs is the threshold above which a committed
// action's broadcast payload is stripped.
const DefaultMaxSmallActionRowIDs = 100

// actionLogTable persists the action-number counter so a read transaction
// can observe the exact version its own snapshot corresponds to, rather
// than a value raced against a concurrent Apply on another connection.
const actionLogTable = "_grist_action_log"

// Applier applies Doc Actions and tracks a monotonically increasing
// action number, incremented once per successfully committed action set.
type Applier struct {
	maxSmallActionRowIDs int
	actionNum            int64
}

// NewApplier creates an Applier. A non-positive maxSmallActionRowIDs
// falls back to DefaultMaxSmallActionRowIDs.
func NewApplier(maxSmallActionRowIDs int) *Applier {
	if maxSmallActionRowIDs <= 0 {
		maxSmallActionRowIDs = DefaultMaxSmallActionRowIDs
	}
	return &Applier{maxSmallActionRowIDs: maxSmallActionRowIDs}
}

// ActionNum returns the last action number this Applier observed without
// advancing it. It is a cache updated after each commit, not a transaction
// read; callers needing the exact version a read transaction's snapshot
// corresponds to should use ReadActionNum on that transaction's connection
// instead.
func (a *Applier) ActionNum() int64 {
	return atomic.LoadInt64(&a.actionNum)
}

// ReadActionNum reads the persisted action-number counter through conn,
// so that a caller running inside a transaction observes the exact value
// committed as of that transaction's snapshot. It returns 0 if no action
// set has ever been committed against this store (the counter table is
// created lazily by the first Apply).
func ReadActionNum(ctx context.Context, conn *sql.Conn) (int64, error) {
	row := conn.QueryRowContext(ctx, `SELECT action_num FROM "`+actionLogTable+`" WHERE id = 1`)
	var n int64
	if err := row.Scan(&n); err != nil {
		if err == sql.ErrNoRows || isNoSuchTable(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// ensureActionLog creates the counter table and seeds its single row if
// this is the store's first-ever Apply. Run inside the same BEGIN
// IMMEDIATE transaction as the rest of Apply so creation rolls back with
// everything else on failure.
func ensureActionLog(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS "`+actionLogTable+`" (id INTEGER PRIMARY KEY CHECK (id = 1), action_num INTEGER NOT NULL)`); err != nil {
		return err
	}
	_, err := conn.ExecContext(ctx, `INSERT OR IGNORE INTO "`+actionLogTable+`" (id, action_num) VALUES (1, 0)`)
	return err
}

// Apply runs actionSet inside one BEGIN IMMEDIATE transaction on a
// dedicated connection from db, validating each action before applying
// it. On success it returns one result per action, the action number
// assigned to this commit, and a broadcast-ready ActionSet with any
// oversized actions stripped.
func (a *Applier) Apply(ctx context.Context, db *sql.DB, actionSet model.ActionSet) (model.ApplyResultSet, model.ActionSet, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return model.ApplyResultSet{}, model.ActionSet{}, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return model.ApplyResultSet{}, model.ActionSet{}, err
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := ensureActionLog(ctx, conn); err != nil {
		return model.ApplyResultSet{}, model.ActionSet{}, err
	}

	results := make([]interface{}, len(actionSet.Actions))
	for i, action := range actionSet.Actions {
		if err := action.Validate(); err != nil {
			return model.ApplyResultSet{}, model.ActionSet{}, err
		}
		res, err := applyOne(ctx, conn, action)
		if err != nil {
			return model.ApplyResultSet{}, model.ActionSet{}, err
		}
		results[i] = res
	}

	if _, err := conn.ExecContext(ctx, `UPDATE "`+actionLogTable+`" SET action_num = action_num + 1 WHERE id = 1`); err != nil {
		return model.ApplyResultSet{}, model.ActionSet{}, err
	}
	actionNum, err := ReadActionNum(ctx, conn)
	if err != nil {
		return model.ApplyResultSet{}, model.ActionSet{}, err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return model.ApplyResultSet{}, model.ActionSet{}, err
	}
	committed = true

	atomic.StoreInt64(&a.actionNum, actionNum)
	broadcast := stripLargeActions(actionSet, a.maxSmallActionRowIDs)
	return model.ApplyResultSet{Results: results, ActionNum: actionNum}, broadcast, nil
}

// sortedColumns returns cols' keys sorted, for deterministic statement
// text across repeated calls with the same action shape.
func sortedColumns(cols model.ColumnValues) []string {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
