// Package tools implements the sandboxed tool surface the model calls
// during a task: workspace inspection and mutation, shell execution, and
// the terminal submit tool.
//
// Every tool resolves paths against the task's workspace root; a
// resolution that escapes the root fails with a sandbox-violation result
// instead of performing the operation. Tool failures of any kind come
// back as failed Results fed to the model, never as Go errors, so the
// execution loop treats the whole surface as recoverable.
package tools
