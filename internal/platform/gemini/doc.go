// Package gemini implements generation.Generator on top of Google's Gemini
// API through the google.golang.org/genai client. Every failure is reported as
// a *generation.Error; retries are left to the caller.
package gemini
