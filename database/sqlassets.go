package sqlassets

import _ "embed"

//go:embed schema/platform/users.sql
var UsersSQL string

//go:embed schema/platform/prospects.sql
var ProspectsSQL string

//go:embed schema/platform/segments.sql
var SegmentsSQL string

//go:embed schema/platform/offers.sql
var OffersSQL string

// All returns the platform DDL in dependency order, for bootstrap and tests.
func All() []string {
	return []string{UsersSQL, ProspectsSQL, SegmentsSQL, OffersSQL}
}
