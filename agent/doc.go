// Package agent drives one benchmark task to completion: it alternates
// model generation and tool dispatch until the model submits an artifact,
// a budget runs out, or the backend fails fatally, then classifies the
// artifact and produces exactly one immutable Result.
//
// The loop owns no persistence and knows nothing about benchmarks; a
// calling orchestrator runs one Runtime per task and writes the results.
package agent
