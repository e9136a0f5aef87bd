// Package drafting runs draft generation attempts. The Orchestrator performs
// one attempt for a job: it claims the task with a conditional update, reuses
// an equivalent earlier draft when one exists, and otherwise calls the
// generation provider. The RetryController wraps it as a task.Handler and
// turns provider failures into delayed retries or terminal failures.
package drafting
