package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"academianet/logging"
	"academianet/services"

	"github.com/aws/aws-lambda-go/events"
)

// Ingester is the part of the ingestor the upload trigger drives.
type Ingester interface {
	Ingest(ctx context.Context, src services.IngestSource) (services.IngestResult, error)
	Table() string
}

// UploadController turns S3 ObjectCreated notifications into ingestion runs.
type UploadController struct {
	ingestor Ingester
	prefix   string
	logger   *slog.Logger
}

func NewUploadController(ingestor Ingester, prefix string, logger *slog.Logger) *UploadController {
	return &UploadController{ingestor: ingestor, prefix: prefix, logger: logging.OrNop(logger)}
}

type uploadBody struct {
	Message          string `json:"message"`
	Table            string `json:"table,omitempty"`
	ProcessedRecords int    `json:"processedRecords"`
	RecordsRead      int    `json:"recordsRead"`
	Error            string `json:"error,omitempty"`
}

// HandleS3Event ingests the object named by the first record of event. Only
// fetch and parse failures produce a 500; partial writes are reported as counts.
func (ctl *UploadController) HandleS3Event(ctx context.Context, event events.S3Event) (events.APIGatewayProxyResponse, error) {
	if len(event.Records) == 0 {
		return uploadResponse(http.StatusOK, uploadBody{Message: "No records in event"})
	}
	record := event.Records[0].S3
	key, err := url.QueryUnescape(record.Object.Key)
	if err != nil {
		key = record.Object.Key
	}
	logger := logging.FromContext(ctx, ctl.logger).With("bucket", record.Bucket.Name, "key", key)

	if ctl.prefix != "" && !strings.HasPrefix(key, ctl.prefix) {
		logger.Info("object outside upload prefix ignored", "prefix", ctl.prefix)
		return uploadResponse(http.StatusOK, uploadBody{Message: fmt.Sprintf("Ignored %s: not under %s", key, ctl.prefix)})
	}

	res, err := ctl.ingestor.Ingest(ctx, services.IngestSource{Bucket: record.Bucket.Name, Key: key})
	if err != nil {
		return uploadResponse(http.StatusInternalServerError, uploadBody{
			Message: "Error processing Excel file",
			Error:   err.Error(),
		})
	}

	body := uploadBody{
		Table:            ctl.ingestor.Table(),
		ProcessedRecords: res.RecordsWritten,
		RecordsRead:      res.RecordsRead,
	}
	if res.RecordsRead == 0 {
		body.Message = fmt.Sprintf("Excel file had 0 records to process from %s", key)
	} else {
		body.Message = fmt.Sprintf("Successfully processed %d of %d records from %s", res.RecordsWritten, res.RecordsRead, key)
	}
	logger.Info("upload ingested", "read", res.RecordsRead, "written", res.RecordsWritten,
		"write_errors", res.WriteErrors, "clear_errors", res.ClearErrors)
	return uploadResponse(http.StatusOK, body)
}

func uploadResponse(status int, body uploadBody) (events.APIGatewayProxyResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}, nil
}
