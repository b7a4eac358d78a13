package query

import (
	"context"

	"github.com/gristlabs/gristmux/src/engine/apply"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/sqlbuild"
)

// FetchQuery runs query inside a read transaction on a dedicated
// connection, fetches every row eagerly as columnar TableData, and
// releases the connection. The returned ActionNum is read from the
// persisted action-log table inside this same transaction, so it is the
// exact version the read's own snapshot corresponds to, not a value
// raced against a concurrent Apply on another connection.
func (e *Engine) FetchQuery(ctx context.Context, q model.Query) (model.QueryResult, error) {
	stmt, err := sqlbuild.CompileSelect(q)
	if err != nil {
		return model.QueryResult{}, err
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return model.QueryResult{}, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		return model.QueryResult{}, err
	}
	defer conn.ExecContext(context.Background(), "ROLLBACK")

	actionNum, err := apply.ReadActionNum(ctx, conn)
	if err != nil {
		return model.QueryResult{}, err
	}

	rows, err := conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return model.QueryResult{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.QueryResult{}, err
	}

	acc := make(model.ColumnValues, len(cols))
	for rows.Next() {
		row, err := scanRow(rows, len(cols))
		if err != nil {
			return model.QueryResult{}, err
		}
		appendColumnar(acc, cols, row)
	}
	if err := rows.Err(); err != nil {
		return model.QueryResult{}, err
	}

	return model.QueryResult{
		TableID:   q.TableID,
		ActionNum: actionNum,
		TableData: model.TableColumnValues{Columns: acc},
	}, nil
}
