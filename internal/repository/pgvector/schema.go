package pgvector

import "fmt"

const tableName = "imgdex_points"

func schemaStatements(o Options) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          BIGINT PRIMARY KEY,
			short_id    TEXT NOT NULL,
			doc_id      TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			objects     TEXT[] NOT NULL DEFAULT '{}',
			place       TEXT[] NOT NULL DEFAULT '{}',
			captured_at TIMESTAMPTZ,
			width       INT NOT NULL DEFAULT 0,
			height      INT NOT NULL DEFAULT 0,
			version     INT NOT NULL DEFAULT 1
		)`, tableName, o.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			tableName, tableName, o.M, o.EFConstruction),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_objects_idx ON %s USING gin (objects)`, tableName, tableName),
	}
}
