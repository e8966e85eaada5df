package services

import (
	"context"
	"fmt"
	"testing"

	"academianet/apperrors"
	"academianet/testutil"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSnies(db *testutil.FakeDynamoDB, n int) {
	for i := 1; i <= n; i++ {
		depto := "Antioquia"
		if i%2 == 0 {
			depto = "Cundinamarca"
		}
		db.Seed(sniesTable, testutil.Item{
			"codigo":       &types.AttributeValueMemberS{Value: fmt.Sprintf("c%d", i)},
			"nombre":       &types.AttributeValueMemberS{Value: fmt.Sprintf("Institución %d", i)},
			"departamento": &types.AttributeValueMemberS{Value: depto},
		})
	}
}

func TestParseLimit(t *testing.T) {
	n, err := ParseLimit("")
	require.NoError(t, err)
	assert.EqualValues(t, 50, n)

	n, err = ParseLimit(" 1000 ")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, n)

	for _, raw := range []string{"0", "1001", "-3", "diez", "2.5"} {
		_, err := ParseLimit(raw)
		assert.True(t, apperrors.Is(err, apperrors.KindValidation), raw)
	}
}

func TestCatalogPagesWithNextToken(t *testing.T) {
	db := testutil.NewFakeDynamoDB().AddTable(sniesTable, "codigo")
	seedSnies(db, 5)
	svc := NewCatalogService(db, SniesCatalog(sniesTable), nil)
	ctx := context.Background()

	var seen []string
	token := ""
	pages := 0
	for {
		page, err := svc.List(ctx, CatalogQuery{Limit: "2", NextToken: token})
		require.NoError(t, err)
		pages++
		for _, item := range page.Items {
			seen = append(seen, item["codigo"].(string))
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, seen)
}

func TestCatalogFilters(t *testing.T) {
	db := testutil.NewFakeDynamoDB().AddTable(sniesTable, "codigo")
	seedSnies(db, 6)
	svc := NewCatalogService(db, SniesCatalog(sniesTable), nil)

	page, err := svc.List(context.Background(), CatalogQuery{Filters: map[string]string{
		"departamento": "Cundinamarca",
		"municipio":    "  ",
		"rector":       "Ana",
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Equal(t, map[string]string{"departamento": "Cundinamarca"}, page.Filters)
	assert.Empty(t, page.NextToken)
}

func TestCatalogFilterAliases(t *testing.T) {
	db := testutil.NewFakeDynamoDB().AddTable(sniesTable, "codigo")
	for i, m := range []string{"Medellín", "Bogotá D.C.", "Medellín"} {
		db.Seed(sniesTable, testutil.Item{
			"codigo":    &types.AttributeValueMemberS{Value: fmt.Sprintf("c%d", i)},
			"municipio": &types.AttributeValueMemberS{Value: m},
			"caracter":  &types.AttributeValueMemberS{Value: "Universidad"},
		})
	}
	svc := NewCatalogService(db, SniesCatalog(sniesTable), nil)
	ctx := context.Background()

	page, err := svc.List(ctx, CatalogQuery{Filters: map[string]string{"ciudad": "Medellín", "tipoInstitucion": "Universidad"}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, map[string]string{"municipio": "Medellín", "caracter": "Universidad"}, page.Filters)

	page, err = svc.List(ctx, CatalogQuery{Filters: map[string]string{"ciudad": "Medellín", "municipio": "Bogotá D.C."}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count, "the attribute's own parameter wins over its alias")

	assert.ElementsMatch(t,
		[]string{"departamento", "municipio", "sector", "naturaleza", "caracter", "ciudad", "tipoInstitucion"},
		SniesCatalog(sniesTable).Params())
	assert.Equal(t, ProgramsCatalog("p").Filters, ProgramsCatalog("p").Params())
}

func TestCatalogEmptyTable(t *testing.T) {
	db := testutil.NewFakeDynamoDB().AddTable("programs", "id")
	svc := NewCatalogService(db, ProgramsCatalog("programs"), nil)

	page, err := svc.List(context.Background(), CatalogQuery{})
	require.NoError(t, err)
	require.NotNil(t, page.Items)
	assert.Zero(t, page.Count)
	assert.Empty(t, page.Filters)
}

func TestCatalogErrors(t *testing.T) {
	db := testutil.NewFakeDynamoDB()
	svc := NewCatalogService(db, ProgramsCatalog("programs"), nil)
	ctx := context.Background()

	_, err := svc.List(ctx, CatalogQuery{})
	require.Equal(t, 404, apperrors.StatusCode(err))
	assert.Equal(t, "La tabla programs no existe", apperrors.MessageOf(err, ""))

	db.Calls = nil
	_, err = svc.List(ctx, CatalogQuery{NextToken: "%%%"})
	require.Equal(t, 400, apperrors.StatusCode(err))

	_, err = svc.List(ctx, CatalogQuery{Limit: "5000"})
	require.Equal(t, 400, apperrors.StatusCode(err))
	assert.Empty(t, db.Calls, "invalid queries never reach DynamoDB")
}

func TestNextTokenRoundTrip(t *testing.T) {
	key := map[string]types.AttributeValue{"codigo": &types.AttributeValueMemberS{Value: "c42"}}
	token, err := encodeNextToken(key)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotContains(t, token, "=", "tokens travel unescaped in query strings")

	back, err := decodeNextToken(token)
	require.NoError(t, err)
	assert.Equal(t, key, back)

	empty, err := encodeNextToken(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
