package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pncp-crawler/internal/search"
)

var columnNames = []string{
	"numero_controle_pncp", "title", "description", "orgao_nome", "municipio_nome", "uf",
	"modalidade_licitacao_nome", "esfera_nome", "data_publicacao_pncp", "item_url",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Index) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	idx, err := NewWithPool(mock, "listings")
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, idx
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;name")
	assert.Error(t, err)
	_, err = NewWithPool(nil, "")
	assert.Error(t, err)

	idx, err := NewWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "pncp_listings", idx.table)
}

func TestEnsureSchema(t *testing.T) {
	mock, idx := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, idx.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRunsInTransaction(t *testing.T) {
	mock, idx := newMock(t)
	doc := search.Document{ControlNumber: "A/2024", Description: "Café", Modality: "Pregão"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings").
		WithArgs(doc.ControlNumber, "", "Café", "", "", "", "Pregão", "", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := idx.Upsert(context.Background(), []search.Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRollsBackOnError(t *testing.T) {
	mock, idx := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	_, err := idx.Upsert(context.Background(), []search.Document{{ControlNumber: "A"}})
	assert.ErrorContains(t, err, "upsert A")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindWithFilter(t *testing.T) {
	mock, idx := newMock(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM listings WHERE modalidade_licitacao_nome = \$1 AND esfera_nome = \$2`).
		WithArgs("Pregão", "Federal").
		WillReturnRows(pgxmock.NewRows(columnNames).
			AddRow("A", "t", "Café", "Org", "Brasília", "DF", "Pregão", "Federal", "2024-01-01", ""))

	docs, err := idx.Find(context.Background(), search.Filter{Modality: "Pregão", Sphere: "Federal"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Brasília", docs[0].City)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValuesAndCount(t *testing.T) {
	mock, idx := newMock(t)

	mock.ExpectQuery("SELECT DISTINCT esfera_nome FROM listings").
		WillReturnRows(pgxmock.NewRows([]string{"esfera_nome"}).AddRow("Estadual").AddRow("Federal"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM listings`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	values, err := idx.Values(context.Background(), search.FieldSphere)
	require.NoError(t, err)
	assert.Equal(t, []string{"Estadual", "Federal"}, values)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = idx.Values(context.Background(), "uf")
	assert.ErrorIs(t, err, search.ErrUnknownField)
}
