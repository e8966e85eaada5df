package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"academianet/apperrors"
	"academianet/logging"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	defaultCatalogLimit = 50
	maxCatalogLimit     = 1000
)

// Catalog describes one browsable table: its name, the response alias for the
// item list and the attributes callers may filter on by equality.
type Catalog struct {
	Name    string
	Table   string
	Filters []string
	// Aliases maps older query parameter names onto a filter attribute. The
	// attribute's own parameter wins when both are sent.
	Aliases map[string]string
}

// Params lists every query parameter the catalog reads as a filter.
func (c Catalog) Params() []string {
	params := append([]string(nil), c.Filters...)
	for alias := range c.Aliases {
		params = append(params, alias)
	}
	return params
}

func (c Catalog) filterValue(filters map[string]string, name string) string {
	if v := strings.TrimSpace(filters[name]); v != "" {
		return v
	}
	for alias, target := range c.Aliases {
		if target != name {
			continue
		}
		if v := strings.TrimSpace(filters[alias]); v != "" {
			return v
		}
	}
	return ""
}

func SniesCatalog(table string) Catalog {
	return Catalog{
		Name:    "institutions",
		Table:   table,
		Filters: []string{"departamento", "municipio", "sector", "naturaleza", "caracter"},
		Aliases: map[string]string{"ciudad": "municipio", "tipoInstitucion": "caracter"},
	}
}

func ProgramsCatalog(table string) Catalog {
	return Catalog{
		Name:    "programs",
		Table:   table,
		Filters: []string{"nivel", "modalidad", "institucionId", "municipio"},
	}
}

type CatalogQuery struct {
	Limit     string
	NextToken string
	Filters   map[string]string
}

type CatalogPage struct {
	Items     []map[string]interface{}
	Count     int
	NextToken string
	Filters   map[string]string
}

// CatalogService pages through a catalog table with Scan. Filters are applied
// after Limit, so a page may hold fewer than Limit items while NextToken is set.
type CatalogService struct {
	db      DynamoDBAPI
	catalog Catalog
	logger  *slog.Logger
}

func NewCatalogService(db DynamoDBAPI, catalog Catalog, logger *slog.Logger) *CatalogService {
	return &CatalogService{db: db, catalog: catalog, logger: logging.OrNop(logger)}
}

func (s *CatalogService) Catalog() Catalog { return s.catalog }

// ParseLimit reads the page size; empty means the default.
func ParseLimit(raw string) (int32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultCatalogLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxCatalogLimit {
		return 0, apperrors.Validation(fmt.Sprintf("limit debe ser un entero entre 1 y %d", maxCatalogLimit))
	}
	return int32(n), nil
}

func (s *CatalogService) List(ctx context.Context, q CatalogQuery) (CatalogPage, error) {
	limit, err := ParseLimit(q.Limit)
	if err != nil {
		return CatalogPage{}, err
	}
	startKey, err := decodeNextToken(q.NextToken)
	if err != nil {
		return CatalogPage{}, err
	}

	input := &dynamodb.ScanInput{
		TableName:         aws.String(s.catalog.Table),
		Limit:             aws.Int32(limit),
		ExclusiveStartKey: startKey,
	}
	applied := map[string]string{}
	var clauses []string
	for _, name := range s.catalog.Filters {
		value := s.catalog.filterValue(q.Filters, name)
		if value == "" {
			continue
		}
		applied[name] = value
		clauses = append(clauses, fmt.Sprintf("#%s = :%s", name, name))
		if input.ExpressionAttributeNames == nil {
			input.ExpressionAttributeNames = map[string]string{}
			input.ExpressionAttributeValues = map[string]types.AttributeValue{}
		}
		input.ExpressionAttributeNames["#"+name] = name
		input.ExpressionAttributeValues[":"+name] = &types.AttributeValueMemberS{Value: value}
	}
	if len(clauses) > 0 {
		input.FilterExpression = aws.String(strings.Join(clauses, " AND "))
	}

	out, err := s.db.Scan(ctx, input)
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("catalog scan failed", "table", s.catalog.Table, "error", err)
		return CatalogPage{}, apperrors.FromAWSMessages(err, "Error interno al recuperar "+s.label(), map[apperrors.Kind]string{
			apperrors.KindNotFound:    fmt.Sprintf("La tabla %s no existe", s.catalog.Table),
			apperrors.KindValidation:  "Error de validación en la consulta",
			apperrors.KindRateLimited: "Capacidad de DynamoDB excedida, intente más tarde",
		})
	}

	items := []map[string]interface{}{}
	if len(out.Items) > 0 {
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return CatalogPage{}, apperrors.Wrap(apperrors.KindInternal, err, "Error interno al recuperar "+s.label())
		}
	}
	next, err := encodeNextToken(out.LastEvaluatedKey)
	if err != nil {
		return CatalogPage{}, apperrors.Wrap(apperrors.KindInternal, err, "Error interno al recuperar "+s.label())
	}
	return CatalogPage{Items: items, Count: len(items), NextToken: next, Filters: applied}, nil
}

func (s *CatalogService) label() string {
	if s.catalog.Name == "programs" {
		return "programas"
	}
	return "instituciones"
}
