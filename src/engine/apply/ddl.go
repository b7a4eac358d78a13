package apply

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/sqlbuild"
)

func applyAddTable(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}

	columnDefs := []string{`"id" INTEGER PRIMARY KEY`}
	for _, col := range action.ColInfos {
		def, err := columnDefinition(col)
		if err != nil {
			return err
		}
		columnDefs = append(columnDefs, def)
	}

	stmtSQL := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(columnDefs, ", "))
	_, err = conn.ExecContext(ctx, stmtSQL)
	return err
}

func columnDefinition(col model.ColInfo) (string, error) {
	quoted, err := sqlbuild.QuoteIdent(col.ColID)
	if err != nil {
		return "", err
	}
	storeType := model.LookupStoreType(col.Type)
	return fmt.Sprintf("%s %s DEFAULT %s", quoted, storeType.SQLType, storeType.StoreDefault), nil
}

func applyAddColumn(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	if action.Info == nil {
		return fmt.Errorf("AddColumn requires Info")
	}
	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	def, err := columnDefinition(*action.Info)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def))
	return err
}

func applyRemoveColumn(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	col, err := sqlbuild.QuoteIdent(action.ColID)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, col))
	return err
}

func applyRenameColumn(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	oldCol, err := sqlbuild.QuoteIdent(action.OldID)
	if err != nil {
		return err
	}
	newCol, err := sqlbuild.QuoteIdent(action.NewID)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, oldCol, newCol))
	return err
}

// applyModifyColumn changes a column's declared type or default. SQLite
// has no ALTER COLUMN; the standard workaround is copy-and-rename: build
// a sibling table with the column redefined, copy every row across,
// drop the original, then rename the sibling into its place.
func applyModifyColumn(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	if action.PartialInfo == nil {
		return fmt.Errorf("ModifyColumn requires PartialInfo")
	}

	cols, err := tableColumns(ctx, conn, action.TableID)
	if err != nil {
		return err
	}

	targetType := action.PartialInfo.Type
	found := false
	for i, c := range cols {
		if c.ColID == action.ColID {
			if targetType != "" {
				cols[i].Type = targetType
			}
			found = true
		}
	}
	if !found {
		return fmt.Errorf("column %q not found on table %q", action.ColID, action.TableID)
	}

	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	shadowID := action.TableID + "__grist_shadow"
	shadowTable, err := sqlbuild.QuoteIdent(shadowID)
	if err != nil {
		return err
	}

	columnDefs := []string{`"id" INTEGER PRIMARY KEY`}
	colNames := []string{`"id"`}
	for _, c := range cols {
		def, err := columnDefinition(c)
		if err != nil {
			return err
		}
		columnDefs = append(columnDefs, def)
		quoted, err := sqlbuild.QuoteIdent(c.ColID)
		if err != nil {
			return err
		}
		colNames = append(colNames, quoted)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", shadowTable, strings.Join(columnDefs, ", "))); err != nil {
		return err
	}
	colList := strings.Join(colNames, ", ")
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", shadowTable, colList, colList, table)); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", table)); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", shadowTable, table))
	return err
}

func applyRemoveTable(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	table, err := sqlbuild.QuoteIdent(action.TableID)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", table))
	return err
}

func applyRenameTable(ctx context.Context, conn *sql.Conn, action model.DocAction) error {
	oldTable, err := sqlbuild.QuoteIdent(action.OldID)
	if err != nil {
		return err
	}
	newTable, err := sqlbuild.QuoteIdent(action.NewID)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldTable, newTable))
	return err
}

// tableColumns introspects a table's non-id columns via PRAGMA
// table_info, used by applyModifyColumn to rebuild the shadow table with
// every existing column's definition preserved except the one changing.
func tableColumns(ctx context.Context, conn *sql.Conn, tableID string) ([]model.ColInfo, error) {
	table, err := sqlbuild.QuoteIdent(tableID)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []model.ColInfo
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		if name == "id" {
			continue
		}
		cols = append(cols, model.ColInfo{ColID: name, Type: sqlTypeToLogical(ctype)})
	}
	return cols, rows.Err()
}

// sqlTypeToLogical inverts the common case of model.LookupStoreType well
// enough to round-trip a column through applyModifyColumn's shadow-table
// rebuild: exact SQL type text wins; anything else falls back to Any,
// which columnDefinition will re-resolve to BLOB/NULL (safe, since the
// data itself is preserved verbatim by the INSERT ... SELECT).
func sqlTypeToLogical(sqlType string) string {
	switch strings.ToUpper(sqlType) {
	case "INTEGER":
		return "Int"
	case "BOOLEAN":
		return "Bool"
	case "DATE":
		return "Date"
	case "DATETIME":
		return "DateTime"
	case "NUMERIC":
		return "Numeric"
	case "TEXT":
		return "Text"
	case "BLOB":
		return "Any"
	default:
		return "Any"
	}
}
