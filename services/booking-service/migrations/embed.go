// Package migrations holds the booking-service schema, applied with goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// VersionTable is the goose version table for this schema.
const VersionTable = "booking_goose_version"
