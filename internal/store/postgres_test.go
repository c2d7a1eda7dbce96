package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

func TestPostgresGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresFromDB(db)

	mock.ExpectQuery(`SELECT data FROM documents WHERE path = \$1`).
		WithArgs("users/u1/prospects/p1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"prospect_id":"p1","name":"Jane Doe"}`)))

	var got map[string]interface{}
	require.NoError(t, p.Get(context.Background(), "users/u1/prospects/p1", &got))
	assert.Equal(t, "Jane Doe", got["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresFromDB(db)
	mock.ExpectQuery(`SELECT data FROM documents WHERE path = \$1`).
		WithArgs("users/u1/prospects/missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	var got map[string]interface{}
	err = p.Get(context.Background(), "users/u1/prospects/missing", &got)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresPutUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresFromDB(db)
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("users/u1/prospects/p1", "users/u1/prospects", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Put(context.Background(), "users/u1/prospects/p1", map[string]string{"name": "Jane Doe"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryPushesEqualityFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresFromDB(db)
	mock.ExpectQuery(`SELECT data FROM documents WHERE collection = \$1 AND data->>'status' = \$2`).
		WithArgs("users/u1/research_insights", "ready_for_content_generation").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"insight_id":"i1","status":"ready_for_content_generation"}`)))

	raws, err := p.QueryDocs(context.Background(), "users/u1/research_insights", Query{
		Filters: []Filter{Eq("status", "ready_for_content_generation")},
	})
	require.NoError(t, err)
	require.Len(t, raws, 1)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raws[0], &doc))
	assert.Equal(t, "i1", doc["insight_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateConflictSurfacesConsistency(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresFromDB(db)

	// Three read-modify-write rounds, all losing the version race.
	for i := 0; i < 3; i++ {
		mock.ExpectQuery(`SELECT data, version FROM documents WHERE path = \$1`).
			WithArgs("users/u1/learning_patterns/x").
			WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow([]byte(`{"sample_size":1}`), int64(7)))
		mock.ExpectExec(`UPDATE documents SET data = \$1, version = version \+ 1`).
			WithArgs(sqlmock.AnyArg(), "users/u1/learning_patterns/x", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = p.Update(context.Background(), "users/u1/learning_patterns/x", func(raw json.RawMessage) (interface{}, error) {
		return map[string]int{"sample_size": 2}, nil
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindConsistency, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
