package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"academianet/apperrors"
	"academianet/logging"
	"academianet/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
)

const applicationPending = "pendiente"

// Notifier tells an applicant their application arrived. It must not fail the request.
type Notifier interface {
	NotifyApplication(ctx context.Context, app models.Application)
}

type ApplicationInput struct {
	Nombre      string `json:"nombre"`
	Apellido    string `json:"apellido"`
	Email       string `json:"email"`
	Telefono    string `json:"telefono"`
	ProgramID   string `json:"programId"`
	ProgramName string `json:"programName"`
}

type ApplicationService struct {
	db       DynamoDBAPI
	table    string
	notifier Notifier
	now      Clock
	logger   *slog.Logger
}

func NewApplicationService(db DynamoDBAPI, table string, notifier Notifier, now Clock, logger *slog.Logger) *ApplicationService {
	return &ApplicationService{db: db, table: table, notifier: notifier, now: clockOrSystem(now), logger: logging.OrNop(logger)}
}

func (s *ApplicationService) Submit(ctx context.Context, in ApplicationInput) (models.Application, error) {
	for _, v := range []string{in.Nombre, in.Apellido, in.Email, in.Telefono, in.ProgramID, in.ProgramName} {
		if strings.TrimSpace(v) == "" {
			return models.Application{}, apperrors.Validation("Faltan campos obligatorios. Por favor, complete todos los campos requeridos: nombre, apellido, email, telefono, programId, programName.")
		}
	}

	ts := GetCurrentTimestamp(s.now)
	app := models.Application{
		ID:                 "app_" + uuid.NewString(),
		Nombre:             in.Nombre,
		Apellido:           in.Apellido,
		Email:              strings.ToLower(strings.TrimSpace(in.Email)),
		Telefono:           in.Telefono,
		ProgramID:          in.ProgramID,
		ProgramName:        in.ProgramName,
		Estado:             applicationPending,
		FechaCreacion:      ts,
		FechaActualizacion: ts,
	}
	item, err := attributevalue.MarshalMap(app)
	if err != nil {
		return models.Application{}, apperrors.Wrap(apperrors.KindInternal, err, "Error interno al procesar la solicitud")
	}
	if _, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: item}); err != nil {
		return models.Application{}, apperrors.FromAWSMessages(err, "Error interno al procesar la solicitud", map[apperrors.Kind]string{
			apperrors.KindValidation:  "Error de validación en los datos enviados",
			apperrors.KindNotFound:    fmt.Sprintf("La tabla %s no existe", s.table),
			apperrors.KindRateLimited: "Capacidad de DynamoDB excedida, intente más tarde",
		})
	}

	logging.FromContext(ctx, s.logger).Info("application stored", "application_id", app.ID, "program_id", app.ProgramID)
	if s.notifier != nil {
		s.notifier.NotifyApplication(ctx, app)
	}
	return app, nil
}
