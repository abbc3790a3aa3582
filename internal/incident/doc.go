// Package incident defines Quell's incident record: the lifecycle state
// machine, the stage-partitioned field set, the append-only audit log, and
// the Store interface its backends implement.
package incident
