// Package memory holds the conversation model shared by the orchestration
// loop and the reasoning engine.
//
// Model:
//   - Message: one append-only conversation entry (user or assistant).
//   - Segment: one piece of a model reply, either text or a tool-use request.
//   - Transcript persistence stores only user queries and final answers;
//     per-round tool traffic is transient.
package memory
