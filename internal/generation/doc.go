// Package generation defines the boundary to external LLM providers used to
// draft natural-language guidelines from table schemas: the Generator
// interface, the deterministic prompt builder and its idempotency hash, the
// per-model price table and a structural validator for generated drafts.
package generation
