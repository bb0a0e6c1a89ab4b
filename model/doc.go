// Package model defines the completion-service abstraction consumed by the
// action selector. A Model turns one fully assembled prompt plus a tool
// definition catalogue into one raw response (text and/or structured tool
// calls). Provider adapters live in the subpackages (openai, anthropic);
// MockModel offers deterministic canned completions for tests and examples.
//
// Models must be callable repeatedly and idempotently. Transport failures
// (rate limits, network errors, timeouts) are returned as plain errors; the
// selector converts them into retryable parse errors so they never crash a
// turn.
package model
