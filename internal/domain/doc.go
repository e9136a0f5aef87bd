// Package domain contains the core entities of the drafting workflow: tasks,
// drafts, human edits, QA checks and the table schemas they are built from.
// Status fields are closed enumerations; every constructor and decoder rejects
// values outside them.
package domain
