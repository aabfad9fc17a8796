// Package registry owns the three fixed vocabularies: equipment statuses,
// reservation statuses and command types.
//
// Seed creates any missing row at boot and never touches existing ones.
// After seeding, lookups are served from an in-memory cache; a miss falls
// back to the database so rows added by hand are still resolvable.
package registry
