// Package memory provides the built-in in-process implementation of
// core.MemoryStore. It is suitable for tests, examples and single-node
// deployments; swap in memory/sqlite (or a custom vector store) for durable
// or semantic retrieval.
package memory
