// Package normalize converts mailbox documents from the known producer
// schemas into the canonical user and task model.
//
// Detection is an ordered list of detectors; the first match wins:
//
//  1. action "task_deployment" with deploymentInfo, assignedTasks, deploymentSummary
//  2. action "user_data_sync" with syncInfo, users, syncSummary (no tasks, needs remote fetch)
//  3. action "role_selection" with user, selectedRole (handoff signal only)
//  4. a non-empty tasks array with no recognized action (legacy)
//
// Anything else fails with UnrecognizedSchemaError. A recognized document
// missing a mandatory key, or carrying a non-numeric identifier, fails with
// ValidationError. Count mismatches and unknown status or priority values are
// warnings: the result is still produced with ValidationPassed false.
package normalize
