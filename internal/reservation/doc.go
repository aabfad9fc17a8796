// Package reservation implements the reservation ledger.
//
// A reservation is created Active and can only move to Completed or
// Canceled. Reservations are never deleted; DELETE on the API cancels.
package reservation
