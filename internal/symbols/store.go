package symbols

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hbollon/go-edlib"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/coa-dev/codesearch/internal/cserr"
)

// Store is the per-workspace symbol database.
// The pool holds a single connection, so every statement, reads included,
// runs one at a time; WAL mode keeps reads cheap.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	path          string
	workspaceHash string
	closed        bool
}

// Open opens (or creates) the symbol database for a workspace hash.
func Open(path, workspaceHash string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable,
			"failed to create symbols directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable,
			fmt.Sprintf("cannot open symbol store %s", path), err)
	}

	// Single writer prevents lock contention; WAL keeps reads cheap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable,
				"failed to configure symbol store", err)
		}
	}

	s := &Store{db: db, path: path, workspaceHash: workspaceHash}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable,
			"failed to initialize symbol store schema", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS symbols (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace_hash  TEXT NOT NULL,
		file_path       TEXT NOT NULL,
		name            TEXT NOT NULL,
		kind            TEXT NOT NULL,
		signature       TEXT,
		language        TEXT,
		start_line      INTEGER NOT NULL,
		start_col       INTEGER NOT NULL DEFAULT 0,
		end_line        INTEGER NOT NULL,
		end_col         INTEGER NOT NULL DEFAULT 0,
		modifiers       TEXT,
		base_type       TEXT,
		interfaces      TEXT,
		containing_type TEXT,
		return_type     TEXT,
		parameters      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(workspace_hash, file_path);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
	CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);

	CREATE TABLE IF NOT EXISTS identifiers (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace_hash  TEXT NOT NULL,
		file_path       TEXT NOT NULL,
		line            INTEGER NOT NULL,
		col             INTEGER NOT NULL,
		name            TEXT NOT NULL,
		containing_type TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_identifiers_name ON identifiers(name);
	CREATE INDEX IF NOT EXISTS idx_identifiers_file ON identifiers(workspace_hash, file_path);

	CREATE TABLE IF NOT EXISTS file_stamps (
		workspace_hash TEXT NOT NULL,
		file_path      TEXT NOT NULL,
		extracted_at   INTEGER NOT NULL,
		PRIMARY KEY (workspace_hash, file_path)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertFile transactionally replaces every symbol and identifier row for
// one file. No partial state is observable: either the old extraction or
// the new one.
func (s *Store) UpsertFile(ctx context.Context, ex *FileExtraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM symbols WHERE workspace_hash = ? AND file_path = ?`,
		s.workspaceHash, ex.FilePath); err != nil {
		return fmt.Errorf("failed to clear symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM identifiers WHERE workspace_hash = ? AND file_path = ?`,
		s.workspaceHash, ex.FilePath); err != nil {
		return fmt.Errorf("failed to clear identifiers: %w", err)
	}

	for _, sym := range ex.Symbols {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO symbols (
				workspace_hash, file_path, name, kind, signature, language,
				start_line, start_col, end_line, end_col,
				modifiers, base_type, interfaces, containing_type, return_type, parameters
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.workspaceHash, ex.FilePath, sym.Name, string(sym.Kind), sym.Signature,
			sym.Language, sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol,
			sym.Modifiers, sym.BaseType, sym.Interfaces, sym.ContainingType,
			sym.ReturnType, sym.Parameters); err != nil {
			return fmt.Errorf("failed to insert symbol %s: %w", sym.Name, err)
		}
	}

	for _, id := range ex.Identifiers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO identifiers (workspace_hash, file_path, line, col, name, containing_type)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.workspaceHash, ex.FilePath, id.Line, id.Col, id.Name, id.ContainingType); err != nil {
			return fmt.Errorf("failed to insert identifier %s: %w", id.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO file_stamps (workspace_hash, file_path, extracted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(workspace_hash, file_path) DO UPDATE SET extracted_at = excluded.extracted_at`,
		s.workspaceHash, ex.FilePath, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to stamp file: %w", err)
	}

	return tx.Commit()
}

// DeleteForFile removes all rows for a file.
func (s *Store) DeleteForFile(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"symbols", "identifiers", "file_stamps"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE workspace_hash = ? AND file_path = ?", table),
			s.workspaceHash, filePath); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SearchByName finds symbols by name with the requested match mode and
// optional kind filter. Fuzzy matching ranks by Jaro-Winkler similarity.
func (s *Store) SearchByName(ctx context.Context, name string, mode NameMatchMode, kind Kind, limit int) ([]Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error

	switch mode {
	case MatchExact:
		rows, err = s.querySymbols(ctx, "name = ?", name, kind, limit)
	case MatchPrefix:
		rows, err = s.querySymbols(ctx, "name LIKE ? ESCAPE '\\'", escapeLike(name)+"%", kind, limit)
	case MatchFuzzy:
		// Fuzzy pulls a candidate pool by loose LIKE, then ranks in Go.
		return s.searchFuzzy(ctx, name, kind, limit)
	default:
		return nil, cserr.InvalidQuery(fmt.Sprintf("unknown match mode %q", mode), "")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSymbols(rows)
}

func (s *Store) querySymbols(ctx context.Context, nameClause string, nameArg interface{}, kind Kind, limit int) (*sql.Rows, error) {
	q := `SELECT id, workspace_hash, file_path, name, kind, signature, language,
			start_line, start_col, end_line, end_col,
			modifiers, base_type, interfaces, containing_type, return_type, parameters
		FROM symbols WHERE workspace_hash = ? AND ` + nameClause
	args := []interface{}{s.workspaceHash, nameArg}

	if kind != "" {
		q += " AND kind = ?"
		args = append(args, string(kind))
	}
	q += " ORDER BY name, file_path, start_line LIMIT ?"
	args = append(args, limit)

	return s.db.QueryContext(ctx, q, args...)
}

func (s *Store) searchFuzzy(ctx context.Context, name string, kind Kind, limit int) ([]Symbol, error) {
	// Over-fetch a candidate pool, then rank by similarity in Go.
	pool, err := s.querySymbols(ctx, "name LIKE ?", "%", kind, limit*20)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	candidates, err := scanSymbols(pool)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		sym   Symbol
		score float32
	}
	var rankedList []ranked
	lower := strings.ToLower(name)
	for _, sym := range candidates {
		score, err := edlib.StringsSimilarity(lower, strings.ToLower(sym.Name), edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score >= 0.75 {
			rankedList = append(rankedList, ranked{sym: sym, score: score})
		}
	}

	sort.SliceStable(rankedList, func(i, j int) bool {
		if rankedList[i].score != rankedList[j].score {
			return rankedList[i].score > rankedList[j].score
		}
		return rankedList[i].sym.Name < rankedList[j].sym.Name
	})

	if len(rankedList) > limit {
		rankedList = rankedList[:limit]
	}
	out := make([]Symbol, len(rankedList))
	for i, r := range rankedList {
		out[i] = r.sym
	}
	return out, nil
}

// SearchByIdentifier returns identifier occurrences for a name, optionally
// narrowed to one file.
func (s *Store) SearchByIdentifier(ctx context.Context, name, filePath string) ([]Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}

	q := `SELECT id, file_path, line, col, name, COALESCE(containing_type, '')
		FROM identifiers WHERE workspace_hash = ? AND name = ?`
	args := []interface{}{s.workspaceHash, name}
	if filePath != "" {
		q += " AND file_path = ?"
		args = append(args, filePath)
	}
	q += " ORDER BY file_path, line, col"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identifier
	for rows.Next() {
		var id Identifier
		if err := rows.Scan(&id.ID, &id.FilePath, &id.Line, &id.Col, &id.Name, &id.ContainingType); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IdentifiersInRange returns identifier occurrences inside a line range of
// one file. The call-path tracer walks these as outgoing edges.
func (s *Store) IdentifiersInRange(ctx context.Context, filePath string, startLine, endLine int) ([]Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, line, col, name, COALESCE(containing_type, '')
		FROM identifiers
		WHERE workspace_hash = ? AND file_path = ? AND line >= ? AND line <= ?
		ORDER BY line, col`,
		s.workspaceHash, filePath, startLine, endLine)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identifier
	for rows.Next() {
		var id Identifier
		if err := rows.Scan(&id.ID, &id.FilePath, &id.Line, &id.Col, &id.Name, &id.ContainingType); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EnclosingSymbol returns the innermost callable symbol whose range covers a
// line of a file, or nil when none does.
func (s *Store) EnclosingSymbol(ctx context.Context, filePath string, line int) (*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_hash, file_path, name, kind, signature, language,
			start_line, start_col, end_line, end_col,
			modifiers, base_type, interfaces, containing_type, return_type, parameters
		FROM symbols
		WHERE workspace_hash = ? AND file_path = ?
			AND start_line <= ? AND end_line >= ?
			AND kind IN ('method', 'function')
		ORDER BY (end_line - start_line) ASC
		LIMIT 1`,
		s.workspaceHash, filePath, line, line)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	syms, err := scanSymbols(rows)
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return nil, nil
	}
	return &syms[0], nil
}

// SymbolsForFile returns every symbol in a file, ordered by position.
func (s *Store) SymbolsForFile(ctx context.Context, filePath string) ([]Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_hash, file_path, name, kind, signature, language,
			start_line, start_col, end_line, end_col,
			modifiers, base_type, interfaces, containing_type, return_type, parameters
		FROM symbols WHERE workspace_hash = ? AND file_path = ?
		ORDER BY start_line, start_col`,
		s.workspaceHash, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// OverviewForFile groups a file's symbols by kind.
func (s *Store) OverviewForFile(ctx context.Context, filePath string) (*Overview, error) {
	syms, err := s.SymbolsForFile(ctx, filePath)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		FilePath: filePath,
		Groups:   make(map[Kind][]Symbol),
		Counts:   make(map[Kind]int),
	}
	for _, sym := range syms {
		ov.Groups[sym.Kind] = append(ov.Groups[sym.Kind], sym)
		ov.Counts[sym.Kind]++
	}
	return ov, nil
}

// Stamps returns extraction timestamps for every file in the store.
func (s *Store) Stamps(ctx context.Context) ([]FileStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable, "symbol store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, extracted_at FROM file_stamps WHERE workspace_hash = ?`,
		s.workspaceHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileStamp
	for rows.Next() {
		var fs FileStamp
		var unix int64
		if err := rows.Scan(&fs.FilePath, &unix); err != nil {
			return nil, err
		}
		fs.ExtractedAt = time.Unix(unix, 0)
		out = append(out, fs)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanSymbols(rows *sql.Rows) ([]Symbol, error) {
	var out []Symbol
	for rows.Next() {
		var sym Symbol
		var kind string
		var signature, language, modifiers, baseType, interfaces, containing, returnType, params sql.NullString
		if err := rows.Scan(&sym.ID, &sym.WorkspaceHash, &sym.FilePath, &sym.Name, &kind,
			&signature, &language, &sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol,
			&modifiers, &baseType, &interfaces, &containing, &returnType, &params); err != nil {
			return nil, err
		}
		sym.Kind = Kind(kind)
		sym.Signature = signature.String
		sym.Language = language.String
		sym.Modifiers = modifiers.String
		sym.BaseType = baseType.String
		sym.Interfaces = interfaces.String
		sym.ContainingType = containing.String
		sym.ReturnType = returnType.String
		sym.Parameters = params.String
		out = append(out, sym)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
