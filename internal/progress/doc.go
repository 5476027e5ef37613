// Package progress keeps the human-facing activity log of a cto project.
//
// Every delegation, review, decision and note appends one JSON line to a
// daily file under .cto/logs (2026-01-02.jsonl). The package reads those
// files back for summaries, a day-by-day timeline and a markdown report.
// One-shot Meeseeks runs are logged separately to .cto/logs/meeseeks.log.
//
// This log is distinct from the structured debug log written by the logging
// package: it records what happened to tickets, not how the program ran.
package progress
