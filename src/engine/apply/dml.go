package apply

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/sqlbuild"
)

// applyOne dispatches a single DocAction to its SQL effect, mirroring
// the per-action-type responsibilities of each DocAction kind.
func applyOne(ctx context.Context, conn *sql.Conn, action model.DocAction) (interface{}, error) {
	switch action.Type {
	case model.ActionAddTable:
		return nil, applyAddTable(ctx, conn, action)
	case model.ActionBulkAddRecord:
		return nil, applyBulkAddRecord(ctx, conn, action)
	case model.ActionBulkUpdateRecord:
		return nil, applyBulkUpdateRecord(ctx, conn, action)
	case model.ActionBulkRemoveRecord:
		return nil, applyBulkRemoveRecord(ctx, conn, action)
	case model.ActionReplaceTableData:
		return nil, applyReplaceTableData(ctx, conn, action)
	case model.ActionAddColumn:
		return nil, applyAddColumn(ctx, conn, action)
	case model.ActionRemoveColumn:
		return nil, applyRemoveColumn(ctx, conn, action)
	case model.ActionRenameColumn:
		return nil, applyRenameColumn(ctx, conn, action)
	case model.ActionModifyColumn:
		return nil, applyModifyColumn(ctx, conn, action)
	case model.ActionRemoveTable:
		return nil, applyRemoveTable(ctx, conn, action)
	case model.ActionRenameTable:
		return nil, applyRenameTable(ctx, conn, action)
	default:
		return nil, &enginerr.NotImplementedError{Action: string(action.Type)}
	}
}

func applyBulkAddRecord(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	if len(action.RowIDs) == 0 {
		return nil
	}
	cols := sortedColumns(action.Cols)

	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	colNames := make([]string, 0, len(cols)+1)
	colNames = append(colNames, `"id"`)
	for _, c := range cols {
		q, err := sqlbuild.QuoteIdent(c)
		if err != nil {
			return err
		}
		colNames = append(colNames, q)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(colNames)), ", ")
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(colNames, ", "), placeholders)

	stmt, err := conn.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rowID := range action.RowIDs {
		args := make([]interface{}, 0, len(cols)+1)
		args = append(args, rowID)
		for _, c := range cols {
			args = append(args, action.Cols[c][i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func applyBulkUpdateRecord(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	if len(action.RowIDs) == 0 || len(action.Cols) == 0 {
		return nil
	}
	cols := sortedColumns(action.Cols)

	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	setClauses := make([]string, len(cols))
	for i, c := range cols {
		q, err := sqlbuild.QuoteIdent(c)
		if err != nil {
			return err
		}
		setClauses[i] = q + " = ?"
	}
	stmtSQL := fmt.Sprintf(`UPDATE %s SET %s WHERE "id" = ?`, table, strings.Join(setClauses, ", "))

	stmt, err := conn.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rowID := range action.RowIDs {
		args := make([]interface{}, 0, len(cols)+1)
		for _, c := range cols {
			args = append(args, action.Cols[c][i])
		}
		args = append(args, rowID)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func applyBulkRemoveRecord(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	if len(action.RowIDs) == 0 {
		return nil
	}
	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(action.RowIDs)), ", ")
	stmtSQL := fmt.Sprintf(`DELETE FROM %s WHERE "id" IN (%s)`, table, placeholders)

	args := make([]interface{}, len(action.RowIDs))
	for i, id := range action.RowIDs {
		args[i] = id
	}
	_, err = conn.ExecContext(ctx, stmtSQL, args...)
	return err
}

func applyReplaceTableData(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return err
	}
	return applyBulkAddRecord(ctx, conn, action)
}
