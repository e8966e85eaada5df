package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"academianet/apperrors"
	"academianet/logging"
	"academianet/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxBatchItems is the BatchWriteItem request limit.
const maxBatchItems = 25

// DefaultLargeFileBytes is the size above which a source file is flagged.
const DefaultLargeFileBytes int64 = 30 * 1024 * 1024

const sniesKeyField = "codigo"

type IngestState string

const (
	StateFetching IngestState = "fetching"
	StateParsing  IngestState = "parsing"
	StateClearing IngestState = "clearing"
	StateWriting  IngestState = "writing"
	StateDone     IngestState = "done"
	StateFailed   IngestState = "failed"
)

// IngestSource locates the workbook to import.
type IngestSource struct {
	Bucket string
	Key    string
}

// IngestResult reports what a run did. A run with write or clear errors is
// still a success; callers compare RecordsRead and RecordsWritten.
type IngestResult struct {
	RecordsRead    int `json:"recordsRead"`
	RecordsWritten int `json:"recordsWritten"`
	RecordsDeleted int `json:"recordsDeleted"`
	ClearErrors    int `json:"clearErrors"`
	WriteErrors    int `json:"writeErrors"`
}

type IngestorConfig struct {
	Table          string
	LargeFileBytes int64
	Now            Clock
	// Rand supplies synthetic key suffixes; nil uses a time-seeded source.
	Rand *rand.Rand
	// OnTransition is called on every state change.
	OnTransition func(from, to IngestState)
}

// Ingestor replaces the contents of the SNIES institutions table with the rows
// of an uploaded workbook: fetch, parse, delete everything, write everything.
// It assumes exclusive ownership of the table while it runs.
type Ingestor struct {
	s3     S3API
	db     DynamoDBAPI
	cfg    IngestorConfig
	rnd    *rand.Rand
	logger *slog.Logger
}

func NewIngestor(s3Client S3API, db DynamoDBAPI, cfg IngestorConfig, logger *slog.Logger) *Ingestor {
	if cfg.LargeFileBytes <= 0 {
		cfg.LargeFileBytes = DefaultLargeFileBytes
	}
	cfg.Now = clockOrSystem(cfg.Now)
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Ingestor{s3: s3Client, db: db, cfg: cfg, rnd: rnd, logger: logging.OrNop(logger)}
}

func (in *Ingestor) Table() string { return in.cfg.Table }

type ingestRun struct {
	*Ingestor
	state  IngestState
	logger *slog.Logger
}

func (r *ingestRun) transition(to IngestState) {
	from := r.state
	r.state = to
	r.logger.Info("ingest state", "from", from, "to", to)
	if r.cfg.OnTransition != nil {
		r.cfg.OnTransition(from, to)
	}
}

func (r *ingestRun) fail(err error) error {
	r.logger.Error("ingest failed", "state", r.state, "error", err)
	r.transition(StateFailed)
	return err
}

// Ingest runs one full-replace import. Fetch and parse failures abort before
// the table is touched; clear and write failures are counted.
func (in *Ingestor) Ingest(ctx context.Context, src IngestSource) (IngestResult, error) {
	run := &ingestRun{
		Ingestor: in,
		logger: logging.FromContext(ctx, in.logger).With(
			"bucket", src.Bucket, "key", src.Key, "table", in.cfg.Table),
	}
	var result IngestResult

	run.transition(StateFetching)
	data, err := run.fetch(ctx, src)
	if err != nil {
		return result, run.fail(err)
	}

	run.transition(StateParsing)
	records, err := ParseWorkbook(bytes.NewReader(data))
	if err != nil {
		return result, run.fail(err)
	}
	result.RecordsRead = len(records)
	if len(records) == 0 {
		run.logger.Warn("workbook has no data rows, table left untouched")
		run.transition(StateDone)
		return result, nil
	}

	run.transition(StateClearing)
	result.RecordsDeleted, result.ClearErrors = run.clear(ctx)

	run.transition(StateWriting)
	result.RecordsWritten, result.WriteErrors = run.write(ctx, records)

	run.transition(StateDone)
	run.logger.Info("ingest finished",
		"records_read", result.RecordsRead,
		"records_written", result.RecordsWritten,
		"records_deleted", result.RecordsDeleted,
		"clear_errors", result.ClearErrors,
		"write_errors", result.WriteErrors)
	return result, nil
}

func (r *ingestRun) fetch(ctx context.Context, src IngestSource) ([]byte, error) {
	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceUnavailable, err,
			fmt.Sprintf("no se pudo obtener s3://%s/%s", src.Bucket, src.Key))
	}
	defer out.Body.Close()

	if size := aws.ToInt64(out.ContentLength); size > r.cfg.LargeFileBytes {
		r.logger.Warn("source file is large and is buffered in memory",
			"size_mb", fmt.Sprintf("%.2f", float64(size)/(1024*1024)))
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceUnavailable, err,
			fmt.Sprintf("no se pudo leer s3://%s/%s", src.Bucket, src.Key))
	}
	return data, nil
}

// clear deletes every row of the table. Rows without a key, failed scans and
// rows the batch call leaves unprocessed count as errors.
func (r *ingestRun) clear(ctx context.Context) (deleted, errs int) {
	items, err := scanAll(ctx, r.db, r.cfg.Table)
	if err != nil {
		errs++
		r.logger.Warn("scan failed while clearing, continuing with rows read so far",
			"rows", len(items), "error", err)
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		key, ok := stringAttr(item, sniesKeyField)
		if !ok || key == "" {
			errs++
			r.logger.Warn("row without key skipped", "key_field", sniesKeyField)
			continue
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{sniesKeyField: &types.AttributeValueMemberS{Value: key}},
		}})
	}

	ok, failed := r.submit(ctx, requests, "delete")
	return ok, errs + failed
}

func (r *ingestRun) write(ctx context.Context, records []models.SpreadsheetRecord) (written, errs int) {
	importedAt := GetCurrentTimestamp(r.cfg.Now)
	requests := make([]types.WriteRequest, 0, len(records))
	// A batch may not repeat a key, so a repeated codigo keeps its last row.
	positions := make(map[string]int, len(records))
	for _, rec := range records {
		row := r.normalize(rec, importedAt)
		item, err := attributevalue.MarshalMap(row)
		if err != nil {
			errs++
			r.logger.Warn("record could not be marshalled", "codigo", row.Codigo, "error", err)
			continue
		}
		req := types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
		if pos, dup := positions[row.Codigo]; dup {
			errs++
			r.logger.Warn("duplicate codigo, keeping the later row", "codigo", row.Codigo)
			requests[pos] = req
			continue
		}
		positions[row.Codigo] = len(requests)
		requests = append(requests, req)
	}

	ok, failed := r.submit(ctx, requests, "put")
	return ok, errs + failed
}

// submit sends requests in batches of at most maxBatchItems, one attempt per
// batch. A failed call counts its whole batch as failed.
func (r *ingestRun) submit(ctx context.Context, requests []types.WriteRequest, op string) (ok, failed int) {
	for start := 0; start < len(requests); start += maxBatchItems {
		end := min(start+maxBatchItems, len(requests))
		batch := requests[start:end]

		out, err := r.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.cfg.Table: batch},
		})
		if err != nil {
			failed += len(batch)
			r.logger.Warn("batch failed", "op", op, "batch", start/maxBatchItems+1, "size", len(batch), "error", err)
			continue
		}
		unprocessed := len(out.UnprocessedItems[r.cfg.Table])
		if unprocessed > 0 {
			r.logger.Warn("batch left items unprocessed", "op", op, "batch", start/maxBatchItems+1, "unprocessed", unprocessed)
		}
		ok += len(batch) - unprocessed
		failed += unprocessed
	}
	return ok, failed
}

// normalize maps a row onto the table schema. Unknown columns are dropped and a
// missing codigo gets a synthetic gen_<millis>_<n> key.
func (r *ingestRun) normalize(rec models.SpreadsheetRecord, importedAt string) models.SniesInstitution {
	codigo := rec.Lookup("codigo")
	if codigo == "" {
		codigo = fmt.Sprintf("gen_%d_%d", r.cfg.Now().UnixMilli(), r.rnd.Intn(100000))
		r.logger.Warn("record without codigo, generated key", "codigo", codigo)
	}
	return models.SniesInstitution{
		Codigo:       codigo,
		Nombre:       rec.Lookup("nombre"),
		Caracter:     rec.Lookup("caracter"),
		Naturaleza:   rec.Lookup("naturaleza"),
		Sector:       rec.Lookup("sector"),
		Departamento: rec.Lookup("departamento"),
		Municipio:    rec.Lookup("municipio"),
		Direccion:    rec.Lookup("direccion"),
		Telefono:     rec.Lookup("telefono"),
		ImportedAt:   importedAt,
	}
}
