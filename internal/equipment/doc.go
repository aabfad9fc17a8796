// Package equipment is the directory of physical units and their status log.
//
// Two paths write an equipment's current status: Directory.Update (an
// operator PATCH) and Directory.ApplyReportedStatus (a device report via
// the ingestor). Both take the same per-equipment lock, and each status
// change is committed together with its log row, so the current status
// always matches the newest log entry.
package equipment
