// Package harness provides scenario testing for the query engine.
//
// The harness compiles a CUE schema, seeds an in-memory database, runs
// query requests against the engine, and checks the results against
// declared expectations.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema:
//	  - path/to/entities.cue
//	rows:
//	  authors:
//	    - { id: 1, name: "Le Guin" }
//	  books:
//	    - { id: 10, title: "The Dispossessed", author_id: 1 }
//	steps:
//	  - request:
//	      entity: book
//	      filters:
//	        - { field: title, op: startsWith, value: "The" }
//	      sort:
//	        - { field: title }
//	      page: 0
//	      size: 10
//	    expect:
//	      total: 1
//	      queries: 3
//	      order: { field: title, values: ["The Dispossessed"] }
//
// # Expectations
//
// Each step may declare any combination of:
//
//   - total: the distinct count the page reports
//   - queries: the number of SQL statements the step issued
//   - warnings: the exact set of plan warning codes (empty list means none)
//   - order: record order pinned through one field's values
//   - records: positional subset match against the page content,
//     including nested to-one records and to-many groups
//   - error: the query error code the step must fail with
//
// Absent expectations are not checked.
//
// # Deterministic Testing
//
// Scenarios execute with a fixed token generator seeded from the
// scenario name, a discarded logger, and a fresh in-memory SQLite
// database per run. Plan descriptions and page transcripts are stable
// across runs, so scenarios can also be pinned with golden files via
// RunWithGolden.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/pagination.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
