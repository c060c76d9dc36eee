package policy

import (
	"fmt"
	"strings"
	"testing"

	"github.com/openquery/openquery/internal/sqlast"
)

func mustParse(t *testing.T, sql string) *sqlast.ParsedStatement {
	t.Helper()
	parsed, err := sqlast.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	return parsed
}

func safeEngine() *Engine {
	return New(Config{Mode: ModeSafe}, SafeDefaults)
}

func TestValidate_LimitInjection(t *testing.T) {
	res := safeEngine().Validate(mustParse(t, "SELECT id FROM users"))
	if !res.Allowed {
		t.Fatalf("Allowed = false, reason %q", res.Reason)
	}
	if !strings.HasSuffix(res.RewrittenSQL, " LIMIT 200") {
		t.Errorf("RewrittenSQL = %q, want suffix \" LIMIT 200\"", res.RewrittenSQL)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "LIMIT") {
		t.Errorf("Warnings = %v, want one mentioning LIMIT", res.Warnings)
	}
}

func TestValidate_LimitClamping(t *testing.T) {
	res := safeEngine().Validate(mustParse(t, "SELECT id FROM users LIMIT 10000"))
	if !res.Allowed {
		t.Fatalf("Allowed = false, reason %q", res.Reason)
	}
	if !strings.Contains(res.RewrittenSQL, "5000") {
		t.Errorf("RewrittenSQL = %q, want clamped value 5000", res.RewrittenSQL)
	}
	foundClampWarning := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "clamped") {
			foundClampWarning = true
		}
	}
	if !foundClampWarning {
		t.Errorf("Warnings = %v, want one mentioning clamped", res.Warnings)
	}
}

func TestValidate_SelectStarDenied(t *testing.T) {
	res := safeEngine().Validate(mustParse(t, "SELECT * FROM users"))
	if res.Allowed {
		t.Fatal("Allowed = true, want denial")
	}
	if !strings.Contains(res.Reason, "SELECT *") {
		t.Errorf("Reason = %q, want mention of SELECT *", res.Reason)
	}
	if res.SuggestedFix == "" {
		t.Error("SuggestedFix is empty, want non-empty")
	}
}

func TestValidate_SelectStarAllowedInStandard(t *testing.T) {
	engine := New(Config{Mode: ModeStandard}, StandardDefaults)
	res := engine.Validate(mustParse(t, "SELECT * FROM users"))
	if !res.Allowed {
		t.Errorf("Allowed = false in standard mode, reason %q", res.Reason)
	}
}

func TestValidate_MultiStatementDenied(t *testing.T) {
	res := safeEngine().Validate(mustParse(t, "SELECT 1; SELECT 2"))
	if res.Allowed {
		t.Fatal("Allowed = true, want denial")
	}
	if !strings.Contains(res.Reason, "multiple") {
		t.Errorf("Reason = %q, want mention of multiple", res.Reason)
	}
}

func TestValidate_WriteWithoutPower(t *testing.T) {
	res := safeEngine().Validate(mustParse(t, "UPDATE users SET name = 'x' WHERE id = 1"))
	if res.Allowed {
		t.Fatal("Allowed = true, want denial")
	}
	if res.Classification != sqlast.ClassWrite {
		t.Errorf("Classification = %q, want write", res.Classification)
	}
	if len(res.ImpactedTables) != 1 || res.ImpactedTables[0] != "users" {
		t.Errorf("ImpactedTables = %v, want [users]", res.ImpactedTables)
	}
	if res.SuggestedFix == "" {
		t.Error("SuggestedFix is empty, want non-empty")
	}
}

func TestValidate_WriteWithPowerAllowed(t *testing.T) {
	engine := New(Config{Mode: ModeSafe, AllowWrite: true}, SafeDefaults)
	res := engine.Validate(mustParse(t, "UPDATE users SET name = 'x' WHERE id = 1"))
	if !res.Allowed {
		t.Fatalf("Allowed = false, reason %q", res.Reason)
	}
	// Writes bypass the rewriter; rewritten SQL is the normalized input.
	if res.RewrittenSQL != "UPDATE users SET name = 'x' WHERE id = 1" {
		t.Errorf("RewrittenSQL = %q, want normalized input", res.RewrittenSQL)
	}
}

func TestValidate_DangerousRequiresBothFlags(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		allowed bool
	}{
		{"no flags", Config{}, false},
		{"write only", Config{AllowWrite: true}, false},
		{"destructive only", Config{AllowDestructive: true}, false},
		{"both", Config{AllowWrite: true, AllowDestructive: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := New(tt.cfg, SafeDefaults)
			res := engine.Validate(mustParse(t, "DROP TABLE users"))
			if res.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v (reason %q)", res.Allowed, tt.allowed, res.Reason)
			}
			if !tt.allowed && !strings.Contains(res.Reason, "Dangerous") {
				t.Errorf("Reason = %q, want mention of Dangerous", res.Reason)
			}
		})
	}
}

func TestValidate_GrantRevokeTreatedAsDangerous(t *testing.T) {
	res := safeEngine().Validate(mustParse(t, "GRANT ALL ON users TO alice"))
	if res.Allowed {
		t.Fatal("Allowed = true, want denial")
	}
	if res.Classification != sqlast.ClassDangerous {
		t.Errorf("Classification = %q, want dangerous", res.Classification)
	}

	engine := New(Config{AllowWrite: true, AllowDestructive: true}, SafeDefaults)
	res = engine.Validate(mustParse(t, "GRANT ALL ON users TO alice"))
	if !res.Allowed {
		t.Errorf("Allowed = false under full POWER, reason %q", res.Reason)
	}
}

func TestValidate_UnknownKindDenied(t *testing.T) {
	res := safeEngine().Validate(mustParse(t, "EXPLAIN SELECT 1"))
	if res.Allowed {
		t.Fatal("Allowed = true, want denial for unknown kind")
	}
	if !strings.Contains(res.Reason, "Unknown") {
		t.Errorf("Reason = %q, want mention of Unknown", res.Reason)
	}
}

func TestValidate_JoinCap(t *testing.T) {
	mode := SafeDefaults
	mode.MaxJoins = 2
	engine := New(Config{}, mode)

	ok := engine.Validate(mustParse(t, "SELECT a.id FROM a JOIN b ON a.id = b.id JOIN c ON b.id = c.id"))
	if !ok.Allowed {
		t.Errorf("2 joins under cap 2: Allowed = false, reason %q", ok.Reason)
	}

	denied := engine.Validate(mustParse(t, "SELECT a.id FROM a JOIN b ON a.id = b.id JOIN c ON b.id = c.id JOIN d ON c.id = d.id"))
	if denied.Allowed {
		t.Fatal("3 joins over cap 2: Allowed = true, want denial")
	}
	if !strings.Contains(denied.Reason, "max_joins") {
		t.Errorf("Reason = %q, want mention of max_joins", denied.Reason)
	}
}

func TestValidate_JoinCapAppliesInEveryMode(t *testing.T) {
	// Build a SELECT joining more tables than even standard mode's cap.
	sql := "SELECT t0.id FROM t0"
	for i := 1; i <= 21; i++ {
		sql += fmt.Sprintf(" JOIN t%d ON true", i)
	}

	for _, mode := range []ModeConfig{SafeDefaults, StandardDefaults} {
		engine := New(Config{}, mode)
		res := engine.Validate(mustParse(t, sql))
		if res.Allowed {
			t.Errorf("max_joins=%d: Allowed = true for 21 joins, want denial", mode.MaxJoins)
		}
	}
}

func TestValidate_BlockedTables(t *testing.T) {
	mode := SafeDefaults
	mode.BlockedTables = []string{"Secrets"}
	engine := New(Config{}, mode)

	tests := []struct {
		name string
		sql  string
	}{
		{"exact", "SELECT id FROM secrets LIMIT 1"},
		{"case-insensitive", "SELECT id FROM SECRETS LIMIT 1"},
		{"schema-qualified", "SELECT id FROM public.secrets LIMIT 1"},
		{"joined in", "SELECT a.id FROM a JOIN secrets s ON a.id = s.id LIMIT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Validate(mustParse(t, tt.sql))
			if res.Allowed {
				t.Fatal("Allowed = true, want denial")
			}
			if !strings.Contains(res.Reason, "blocked") {
				t.Errorf("Reason = %q, want mention of blocked", res.Reason)
			}
		})
	}

	ok := engine.Validate(mustParse(t, "SELECT id FROM users LIMIT 1"))
	if !ok.Allowed {
		t.Errorf("unblocked table denied: %q", ok.Reason)
	}
}

func TestValidate_DangerousFunctions(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		fn   string
	}{
		{"pg_sleep in target", "SELECT pg_sleep(10)", "pg_sleep"},
		{"pg_sleep in where", "SELECT id FROM t WHERE id = pg_sleep(5) LIMIT 1", "pg_sleep"},
		{"terminate backend", "SELECT pg_terminate_backend(123)", "pg_terminate_backend"},
		{"file read", "SELECT pg_read_file('/etc/passwd')", "pg_read_file"},
		{"dblink", "SELECT dblink('conn', 'SELECT 1')", "dblink"},
		{"lo_export", "SELECT lo_export(1, '/tmp/x')", "lo_export"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := safeEngine().Validate(mustParse(t, tt.sql))
			if res.Allowed {
				t.Fatal("Allowed = true, want denial")
			}
			if !strings.Contains(res.Reason, tt.fn) {
				t.Errorf("Reason = %q, want mention of %q", res.Reason, tt.fn)
			}
		})
	}

	ok := safeEngine().Validate(mustParse(t, "SELECT lower(name) FROM t LIMIT 1"))
	if !ok.Allowed {
		t.Errorf("benign function denied: %q", ok.Reason)
	}
}

func TestValidate_Invariants(t *testing.T) {
	// allowed ⇒ rewritten_sql ≠ ∅; ¬allowed ⇒ rewritten_sql == ∅ ∧ reason ≠ ∅.
	statements := []string{
		"SELECT id FROM users",
		"SELECT * FROM users",
		"SELECT id FROM users LIMIT 10000",
		"UPDATE users SET n = 'x' WHERE id = 1",
		"DROP TABLE users",
		"SELECT 1; SELECT 2",
		"GRANT ALL ON t TO u",
		"SELECT pg_sleep(1)",
	}
	engines := []*Engine{
		safeEngine(),
		New(Config{AllowWrite: true}, SafeDefaults),
		New(Config{AllowWrite: true, AllowDestructive: true}, StandardDefaults),
	}
	for _, engine := range engines {
		for _, sql := range statements {
			res := engine.Validate(mustParse(t, sql))
			if res.Allowed && res.RewrittenSQL == "" {
				t.Errorf("%q: allowed with empty RewrittenSQL", sql)
			}
			if !res.Allowed && res.RewrittenSQL != "" {
				t.Errorf("%q: denied with non-empty RewrittenSQL %q", sql, res.RewrittenSQL)
			}
			if !res.Allowed && res.Reason == "" {
				t.Errorf("%q: denied with empty Reason", sql)
			}
		}
	}
}

func TestModeConfigFor(t *testing.T) {
	if got := ModeConfigFor(ModeSafe); !got.RequireExplain || got.MaxLimit != 5000 {
		t.Errorf("safe defaults wrong: %+v", got)
	}
	if got := ModeConfigFor(ModeStandard); got.RequireExplain || got.MaxLimit != 50000 {
		t.Errorf("standard defaults wrong: %+v", got)
	}
	if got := ModeConfigFor(Mode("bogus")); got.MaxLimit != 5000 {
		t.Errorf("unknown mode should fall back to safe, got %+v", got)
	}
}

func TestIsDangerousFunction(t *testing.T) {
	for _, name := range []string{"pg_sleep", "pg_terminate_backend", "lo_import", "dblink", "pg_read_file", "pg_ls_dir", "pg_stat_file"} {
		if !IsDangerousFunction(name) {
			t.Errorf("IsDangerousFunction(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"lower", "count", "now"} {
		if IsDangerousFunction(name) {
			t.Errorf("IsDangerousFunction(%q) = true, want false", name)
		}
	}
}
