package discovery

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentientsergio/synthgen/internal/config"
	"github.com/sentientsergio/synthgen/internal/schema"
)

// Postgres implements Discoverer for PostgreSQL databases.
type Postgres struct {
	cfg    *config.SourceConfig
	pool   *pgxpool.Pool
	schema string // pg schema to introspect, defaults to "public"
}

// NewPostgres creates a new PostgreSQL discoverer.
func NewPostgres(cfg *config.SourceConfig) *Postgres {
	s := cfg.Schema
	if s == "" {
		s = "public"
	}
	return &Postgres{cfg: cfg, schema: s}
}

func (p *Postgres) Connect(ctx context.Context) error {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s default_query_exec_mode=simple_protocol",
		p.cfg.Host, p.cfg.Port, p.cfg.Database, p.cfg.Username, p.cfg.Password,
	)
	if p.cfg.SSL {
		connStr += " sslmode=require"
	} else {
		connStr += " sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	poolCfg.MaxConns = int32(p.cfg.MaxConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}

	p.pool = pool
	return nil
}

func (p *Postgres) Discover(ctx context.Context) (*schema.Schema, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := p.discoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering tables: %w", err)
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
	}

	if err := p.discoverColumns(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering columns: %w", err)
	}

	if err := p.discoverPrimaryKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering primary keys: %w", err)
	}

	if err := p.discoverForeignKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering foreign keys: %w", err)
	}

	if err := p.discoverCheckConstraints(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering check constraints: %w", err)
	}

	if err := p.detectIdentity(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("detecting identity columns: %w", err)
	}

	return &schema.Schema{
		Name:   p.cfg.Database,
		Tables: tables,
	}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// discoverTables lists all user tables in the schema.
func (p *Postgres) discoverTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT c.relname AS table_name
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := p.pool.Query(ctx, query, p.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// discoverColumns fetches all columns for all tables, mapping physical SQL
// types to logical column types.
func (p *Postgres) discoverColumns(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			table_name,
			column_name,
			data_type,
			is_nullable,
			column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			is_generated
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, colName, dataType, nullable, generated string
			defaultVal                                        *string
			maxLen, precision, scale                          *int
		)
		if err := rows.Scan(&tableName, &colName, &dataType, &nullable, &defaultVal, &maxLen, &precision, &scale, &generated); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		col := schema.Column{
			Name:         colName,
			DataType:     schema.FromSQLType(dataType),
			Nullable:     nullable == "YES",
			DefaultValue: defaultVal,
			Length:       maxLen,
			Precision:    precision,
			Scale:        scale,
			IsComputed:   generated == "ALWAYS",
		}
		t.Columns = append(t.Columns, col)
	}
	return rows.Err()
}

// discoverPrimaryKeys fetches primary key constraints.
func (p *Postgres) discoverPrimaryKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, kcu.ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, colName string
		if err := rows.Scan(&tableName, &constraintName, &colName); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		if t.PrimaryKey == nil {
			t.PrimaryKey = &schema.PrimaryKey{Name: constraintName}
		}
		t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, colName)
	}
	return rows.Err()
}

// discoverForeignKeys fetches foreign key relationships including composite keys.
func (p *Postgres) discoverForeignKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	// Composite FKs arrive as one row per column; group by constraint name.
	type fkRow struct {
		tableName, constraintName, column, refTable, refColumn string
	}
	var fkRows []fkRow

	for rows.Next() {
		var r fkRow
		if err := rows.Scan(&r.tableName, &r.constraintName, &r.column, &r.refTable, &r.refColumn); err != nil {
			return err
		}
		fkRows = append(fkRows, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	type fkKey struct{ table, constraint string }
	grouped := make(map[fkKey]*schema.ForeignKey)
	var order []fkKey

	for _, r := range fkRows {
		k := fkKey{r.tableName, r.constraintName}
		fk, exists := grouped[k]
		if !exists {
			fk = &schema.ForeignKey{
				Name:            r.constraintName,
				ReferencedTable: r.refTable,
			}
			grouped[k] = fk
			order = append(order, k)
		}
		fk.Columns = append(fk.Columns, r.column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, r.refColumn)
	}

	for _, k := range order {
		if t, ok := tableMap[k.table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, *grouped[k])
		}
	}

	return nil
}

// discoverCheckConstraints fetches CHECK constraints (excluding NOT NULL
// which is on the column). Definitions pass through to the backend verbatim.
func (p *Postgres) discoverCheckConstraints(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			cc.check_clause
		FROM information_schema.table_constraints tc
		JOIN information_schema.check_constraints cc
		  ON tc.constraint_name = cc.constraint_name
		  AND tc.constraint_schema = cc.constraint_schema
		WHERE tc.constraint_type = 'CHECK'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		  AND tc.constraint_name NOT LIKE '%_not_null'
		ORDER BY tc.table_name, tc.constraint_name`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, checkClause string
		if err := rows.Scan(&tableName, &constraintName, &checkClause); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		t.CheckConstraints = append(t.CheckConstraints, schema.CheckConstraint{
			Name:       constraintName,
			Definition: checkClause,
		})
	}
	return rows.Err()
}

// detectIdentity marks columns backed by sequences (serial/identity).
func (p *Postgres) detectIdentity(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			table_name,
			column_name
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		  AND (column_default LIKE 'nextval(%' OR is_identity = 'YES')`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName string
		if err := rows.Scan(&tableName, &colName); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		if col := t.Column(colName); col != nil {
			col.IsIdentity = true
		}
	}
	return rows.Err()
}

func tableNames(tableMap map[string]*schema.Table) []string {
	names := make([]string, 0, len(tableMap))
	for name := range tableMap {
		names = append(names, name)
	}
	return names
}

// compile-time interface check
var _ Discoverer = (*Postgres)(nil)
