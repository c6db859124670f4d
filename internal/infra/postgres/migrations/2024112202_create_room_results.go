package migrations

import _ "embed"

//go:embed sql/2024112202_create_room_results.up.sql
var createRoomResultsSQL string

func init() {
	Migrations.MustRegister(
		execSQL(createRoomResultsSQL),
		execSQL(`DROP TABLE IF EXISTS room_results`),
	)
}
