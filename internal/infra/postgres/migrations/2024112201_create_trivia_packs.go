package migrations

import _ "embed"

//go:embed sql/2024112201_create_trivia_packs.up.sql
var createTriviaPacksSQL string

func init() {
	Migrations.MustRegister(
		execSQL(createTriviaPacksSQL),
		execSQL(`DROP TABLE IF EXISTS trivia_packs`),
	)
}
