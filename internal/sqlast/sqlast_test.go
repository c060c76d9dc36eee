package sqlast

import (
	"strings"
	"testing"
)

func TestParse_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		kind  Kind
		class Classification
	}{
		{"select", "SELECT id FROM users", KindSelect, ClassRead},
		{"insert", "INSERT INTO users (id) VALUES (1)", KindInsert, ClassWrite},
		{"update", "UPDATE users SET name = 'x' WHERE id = 1", KindUpdate, ClassWrite},
		{"delete", "DELETE FROM users WHERE id = 1", KindDelete, ClassWrite},
		{"create table", "CREATE TABLE t (id INT)", KindCreate, ClassWrite},
		{"create index", "CREATE INDEX idx ON t (id)", KindCreate, ClassWrite},
		{"alter table", "ALTER TABLE t ADD COLUMN c TEXT", KindAlter, ClassWrite},
		{"drop table", "DROP TABLE t", KindDrop, ClassDangerous},
		{"truncate", "TRUNCATE t", KindTruncate, ClassDangerous},
		{"with cte select", "WITH x AS (SELECT 1) SELECT * FROM x", KindSelect, ClassRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parsed.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", parsed.Kind, tt.kind)
			}
			if got := parsed.Classification(); got != tt.class {
				t.Errorf("Classification = %q, want %q", got, tt.class)
			}
			if parsed.StatementCount != 1 {
				t.Errorf("StatementCount = %d, want 1", parsed.StatementCount)
			}
		})
	}
}

func TestParse_EmptyInput(t *testing.T) {
	for _, sql := range []string{"", "   ", "\n\t"} {
		if _, err := Parse(sql); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", sql)
		}
	}
}

func TestParse_ParseFailure(t *testing.T) {
	if _, err := Parse("SELEC nonsense FRM"); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestParse_MultiStatement(t *testing.T) {
	parsed, err := Parse("SELECT 1; SELECT 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.StatementCount != 2 {
		t.Errorf("StatementCount = %d, want 2", parsed.StatementCount)
	}
}

func TestParse_GrantRevokePrefilter(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"grant", "GRANT SELECT ON users TO alice"},
		{"revoke", "REVOKE ALL ON users FROM bob"},
		{"lowercase grant", "grant all on t to u"},
		{"leading whitespace", "   GRANT SELECT ON t TO u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !parsed.IsGrantOrRevoke() {
				t.Error("IsGrantOrRevoke() = false, want true")
			}
			if parsed.Kind != KindUnknown {
				t.Errorf("Kind = %q, want unknown", parsed.Kind)
			}
			if got := parsed.Classification(); got != ClassDangerous {
				t.Errorf("Classification = %q, want dangerous", got)
			}
		})
	}
}

func TestParse_GrantedColumnNotPrefiltered(t *testing.T) {
	// A column merely named "granted" must not trip the word-boundaried
	// prefilter.
	parsed, err := Parse("SELECT granted FROM permissions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.IsGrantOrRevoke() {
		t.Error("IsGrantOrRevoke() = true for a SELECT naming a 'granted' column")
	}
	if parsed.Kind != KindSelect {
		t.Errorf("Kind = %q, want select", parsed.Kind)
	}
}

func TestParse_NormalizedSQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1;", "SELECT 1"},
		{"SELECT 1 ;  \n", "SELECT 1"},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		parsed, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if parsed.NormalizedSQL != tt.want {
			t.Errorf("NormalizedSQL = %q, want %q", parsed.NormalizedSQL, tt.want)
		}
	}
}

func TestImpactedTables(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"select single", "SELECT id FROM users", []string{"users"}},
		{"select qualified", "SELECT id FROM public.users", []string{"public.users"}},
		{"select join", "SELECT u.id FROM users u JOIN orders o ON o.user_id = u.id", []string{"users", "orders"}},
		{"select comma join", "SELECT * FROM a, b", []string{"a", "b"}},
		{"select dedupe", "SELECT a.id FROM users a JOIN users b ON a.id = b.id", []string{"users"}},
		{"insert", "INSERT INTO users (id) VALUES (1)", []string{"users"}},
		{"update", "UPDATE users SET name = 'x'", []string{"users"}},
		{"update from", "UPDATE users SET n = o.n FROM orders o WHERE o.uid = users.id", []string{"users", "orders"}},
		{"delete", "DELETE FROM users WHERE id = 1", []string{"users"}},
		{"delete using", "DELETE FROM users USING orders WHERE orders.uid = users.id", []string{"users", "orders"}},
		{"create", "CREATE TABLE audit (id INT)", []string{"audit"}},
		{"alter", "ALTER TABLE public.users ADD COLUMN c TEXT", []string{"public.users"}},
		{"drop", "DROP TABLE users", []string{"users"}},
		{"drop qualified", "DROP TABLE public.users", []string{"public.users"}},
		{"truncate multiple", "TRUNCATE a, b", []string{"a", "b"}},
		{"select no table", "SELECT 1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := parsed.ImpactedTables()
			if len(got) != len(tt.want) {
				t.Fatalf("ImpactedTables = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ImpactedTables[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHasWhereClause(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"update with where", "UPDATE users SET n = 'x' WHERE id = 1", true},
		{"update without where", "UPDATE users SET n = 'x'", false},
		{"delete with where", "DELETE FROM users WHERE id = 1", true},
		{"delete without where", "DELETE FROM users", false},
		{"select reports true", "SELECT id FROM users", true},
		{"insert reports true", "INSERT INTO users (id) VALUES (1)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := parsed.HasWhereClause(); got != tt.want {
				t.Errorf("HasWhereClause = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsSelectStar(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"bare star", "SELECT * FROM users", true},
		{"qualified star", "SELECT u.* FROM users u", true},
		{"explicit columns", "SELECT id, name FROM users", false},
		{"count star is a function", "SELECT count(*) FROM users", false},
		{"not a select", "DELETE FROM users", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := parsed.ContainsSelectStar(); got != tt.want {
				t.Errorf("ContainsSelectStar = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJoinCount(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want int
	}{
		{"single table", "SELECT id FROM a", 0},
		{"two joined", "SELECT * FROM a JOIN b ON a.id = b.id", 1},
		{"comma join", "SELECT * FROM a, b", 1},
		{"three joined", "SELECT * FROM a JOIN b ON a.id = b.id JOIN c ON b.id = c.id", 2},
		{"no from", "SELECT 1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := parsed.JoinCount(); got != tt.want {
				t.Errorf("JoinCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWalkFuncCalls(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"target list", "SELECT pg_sleep(1)", []string{"pg_sleep"}},
		{"where clause", "SELECT id FROM t WHERE id = pg_sleep(5)", []string{"pg_sleep"}},
		{"nested args", "SELECT lower(pg_read_file('/etc/passwd'))", []string{"lower", "pg_read_file"}},
		{"cte body", "WITH x AS (SELECT dblink('c', 'q')) SELECT * FROM x", []string{"dblink"}},
		{"from clause function", "SELECT * FROM pg_ls_dir('.')", []string{"pg_ls_dir"}},
		{"update set", "UPDATE t SET v = pg_sleep(1) WHERE id = 1", []string{"pg_sleep"}},
		{"subquery", "SELECT id FROM t WHERE id IN (SELECT pg_terminate_backend(1))", []string{"pg_terminate_backend"}},
		{"none", "SELECT id FROM t WHERE id = 1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			parsed.WalkFuncCalls(func(name string) { got = append(got, name) })
			for _, want := range tt.want {
				found := false
				for _, g := range got {
					if g == want {
						found = true
					}
				}
				if !found {
					t.Errorf("WalkFuncCalls missed %q (got %v)", want, got)
				}
			}
			if tt.want == nil && len(got) != 0 {
				t.Errorf("WalkFuncCalls = %v, want none", got)
			}
		})
	}
}

func TestParse_ErrorMentionsEmpty(t *testing.T) {
	_, err := Parse("  ")
	if err == nil || !strings.Contains(err.Error(), "Empty SQL statement") {
		t.Errorf("error = %v, want mention of empty statement", err)
	}
}
