// Package worksync contains the work-item synchronization bounded context.
// It mirrors the status lifecycle of CRM entities onto issues in an external
// issue tracker and applies tracker-side changes back.
//
// Key concepts:
//   - SyncableEntity: a task, project, order or client record carrying external links
//   - ExternalLink: immutable association between one entity and one tracker issue
//   - StatusMapping: static per-type table from CRM status to tracker transition name
//   - Tracker: port interface implemented by the tracker REST adapter
//   - SyncEvent: transient event decoded from a tracker webhook delivery
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package worksync
