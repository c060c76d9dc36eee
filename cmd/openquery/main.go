// Command openquery is the CLI entrypoint for the guarded-execution SQL
// copilot: parse/classify, policy validate, EXPLAIN-gate, preview/confirm
// writes, and an append-only audit trail, all against PostgreSQL.
package main

import "github.com/openquery/openquery/cmd"

func main() {
	cmd.Execute()
}
