// Package types provides the canonical data model shared by every process
// taking part in a cloud desktop handoff.
//
// Core Types:
//   - CanonicalTask: One unit of work, independent of producer schema
//   - CanonicalUser: The operator whose tasks are displayed
//   - MailboxDocument: Envelope persisted in the file mailbox
//
// Enumerations:
//   - TaskStatus: Unassigned, Pending, InProgress, Completed, Paused, Cancelled
//   - Priority: Low, Normal, High, Urgent
//   - ProducerFormat: TaskDeployment, UserDataSync, RoleSelection, Legacy, Cache, Unknown
//
// Unknown status and priority strings are preserved verbatim and flagged
// rather than rejected.
//
// Example Usage:
//
//	task := types.CanonicalTask{
//	    ID:     "42",
//	    Name:   "Configure VLAN",
//	    Status: types.ParseStatus("in_progress"),
//	}
//	task.Normalize()
package types
