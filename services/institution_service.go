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
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// InstitutionIndexKey is the attribute the institutions GSI is keyed by.
const InstitutionIndexKey = "adminUsername"

// adminUsernameIndex is the institutions GSI keyed by adminUsername.
const adminUsernameIndex = InstitutionIndexKey + "Index"

// CognitoAPI is the subset of the Cognito user pool client the services call.
type CognitoAPI interface {
	SignUp(ctx context.Context, params *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	AdminConfirmSignUp(ctx context.Context, params *cip.AdminConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.AdminConfirmSignUpOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, params *cip.AdminUpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
	ConfirmSignUp(ctx context.Context, params *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, params *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	ListUsers(ctx context.Context, params *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
}

type InstitutionServiceConfig struct {
	Table            string
	UserPoolID       string
	UserPoolClientID string
	AutoConfirm      bool
	Now              Clock
}

// InstitutionService registers institutions and their administrator accounts.
type InstitutionService struct {
	db      DynamoDBAPI
	cognito CognitoAPI
	cfg     InstitutionServiceConfig
	logger  *slog.Logger
}

func NewInstitutionService(db DynamoDBAPI, cognito CognitoAPI, cfg InstitutionServiceConfig, logger *slog.Logger) *InstitutionService {
	cfg.Now = clockOrSystem(cfg.Now)
	return &InstitutionService{db: db, cognito: cognito, cfg: cfg, logger: logging.OrNop(logger)}
}

type RegisterInput struct {
	Nombre                 string `json:"nombre"`
	Apellido               string `json:"apellido"`
	NombreLegalInstitucion string `json:"nombreLegalInstitucion"`
	AbreviacionNombre      string `json:"abreviacionNombre"`
	CorreoElectronico      string `json:"correoElectronico"`
	Contrasena             string `json:"contrasena"`
}

type RegisterResult struct {
	InstitutionID string `json:"institutionId"`
	Username      string `json:"username"`
	Email         string `json:"email"`
}

// Delivery tells where a confirmation code was sent.
type Delivery struct {
	AttributeName  string `json:"attributeName,omitempty"`
	DeliveryMedium string `json:"deliveryMedium,omitempty"`
	Destination    string `json:"destination,omitempty"`
}

func (in RegisterInput) complete() bool {
	for _, v := range []string{in.Nombre, in.Apellido, in.NombreLegalInstitucion, in.AbreviacionNombre, in.CorreoElectronico, in.Contrasena} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Register creates the Cognito administrator and the institution row. An
// email already present in the user pool is a Conflict.
func (s *InstitutionService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if !in.complete() {
		return RegisterResult{}, apperrors.Validation("Todos los campos son requeridos")
	}
	logger := logging.FromContext(ctx, s.logger)
	email := strings.ToLower(strings.TrimSpace(in.CorreoElectronico))

	taken, err := s.emailRegistered(ctx, email)
	if err != nil {
		return RegisterResult{}, err
	}
	if taken {
		return RegisterResult{}, apperrors.Conflict("Ya existe una cuenta registrada con este correo electrónico")
	}

	institutionID := uuid.NewString()
	username := "user_" + uuid.NewString()[:8]
	fullName := in.Nombre + " " + in.Apellido

	_, err = s.cognito.SignUp(ctx, &cip.SignUpInput{
		ClientId: aws.String(s.cfg.UserPoolClientID),
		Username: aws.String(username),
		Password: aws.String(in.Contrasena),
		UserAttributes: []ciptypes.AttributeType{
			attr("email", email),
			attr("name", fullName),
			attr("custom:institutionName", in.AbreviacionNombre),
			attr("custom:institutionLegalName", in.NombreLegalInstitucion),
			attr("custom:instAbbr", in.AbreviacionNombre),
		},
	})
	if err != nil {
		return RegisterResult{}, apperrors.FromAWSMessages(err, "Error al crear el usuario", map[apperrors.Kind]string{
			apperrors.KindConflict:   "Ya existe una cuenta registrada con este correo electrónico",
			apperrors.KindValidation: "Datos de registro inválidos",
		})
	}

	if s.cfg.AutoConfirm {
		if _, err := s.cognito.AdminConfirmSignUp(ctx, &cip.AdminConfirmSignUpInput{
			UserPoolId: aws.String(s.cfg.UserPoolID),
			Username:   aws.String(username),
		}); err != nil {
			return RegisterResult{}, apperrors.FromAWS(err, "Error al crear el usuario")
		}
	}

	now := GetCurrentTimestamp(s.cfg.Now)
	item, err := attributevalue.MarshalMap(models.Institution{
		ID:              institutionID,
		InstitutionName: in.AbreviacionNombre,
		LegalName:       in.NombreLegalInstitucion,
		Abbreviation:    in.AbreviacionNombre,
		AdminEmail:      email,
		AdminUsername:   username,
		AdminName:       fullName,
		IsVerified:      false,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return RegisterResult{}, apperrors.Wrap(apperrors.KindInternal, err, "Error al guardar los datos de la institución")
	}
	if _, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.cfg.Table), Item: item}); err != nil {
		return RegisterResult{}, apperrors.FromAWS(err, "Error al guardar los datos de la institución")
	}

	if _, err := s.cognito.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(s.cfg.UserPoolID),
		Username:       aws.String(username),
		UserAttributes: []ciptypes.AttributeType{attr("custom:institutionId", institutionID)},
	}); err != nil {
		return RegisterResult{}, apperrors.FromAWS(err, "Error al guardar los datos de la institución")
	}

	logger.Info("institution registered", "institution_id", institutionID, "username", username)
	return RegisterResult{InstitutionID: institutionID, Username: username, Email: email}, nil
}

func (s *InstitutionService) emailRegistered(ctx context.Context, email string) (bool, error) {
	out, err := s.cognito.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(s.cfg.UserPoolID),
		Filter:     aws.String(fmt.Sprintf("email = %q", email)),
		Limit:      aws.Int32(1),
	})
	if err != nil {
		return false, apperrors.FromAWS(err, "Error al verificar el correo electrónico")
	}
	return len(out.Users) > 0, nil
}

// VerifyEmail confirms the sign-up code and marks the user's institution verified.
func (s *InstitutionService) VerifyEmail(ctx context.Context, username, code string) (string, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(code) == "" {
		return "", apperrors.Validation("El nombre de usuario y el código de verificación son obligatorios")
	}

	if _, err := s.cognito.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(s.cfg.UserPoolClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
	}); err != nil {
		return "", apperrors.FromAWSMessages(err, "Error en el proceso de verificación", map[apperrors.Kind]string{
			apperrors.KindValidation: "Código de verificación inválido o expirado",
			apperrors.KindNotFound:   "Usuario no encontrado",
		})
	}

	out, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.cfg.Table),
		IndexName:              aws.String(adminUsernameIndex),
		KeyConditionExpression: aws.String("adminUsername = :username"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":username": &types.AttributeValueMemberS{Value: username},
		},
	})
	if err != nil {
		return "", apperrors.FromAWS(err, "Error en el proceso de verificación")
	}
	if len(out.Items) == 0 {
		return "", apperrors.NotFound("Institución no encontrada para el usuario especificado")
	}
	institutionID, ok := stringAttr(out.Items[0], "id")
	if !ok {
		return "", apperrors.NotFound("Institución no encontrada para el usuario especificado")
	}

	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.cfg.Table),
		Key:              map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: institutionID}},
		UpdateExpression: aws.String("SET isVerified = :verified, updatedAt = :updatedAt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":verified":  &types.AttributeValueMemberBOOL{Value: true},
			":updatedAt": &types.AttributeValueMemberS{Value: GetCurrentTimestamp(s.cfg.Now)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return "", apperrors.FromAWS(err, "Error en el proceso de verificación")
	}
	return institutionID, nil
}

// ResendCode asks Cognito to send a fresh confirmation code.
func (s *InstitutionService) ResendCode(ctx context.Context, username string) (Delivery, error) {
	if strings.TrimSpace(username) == "" {
		return Delivery{}, apperrors.Validation("Se requiere un nombre de usuario")
	}
	out, err := s.cognito.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId: aws.String(s.cfg.UserPoolClientID),
		Username: aws.String(username),
	})
	if err != nil {
		return Delivery{}, apperrors.FromAWSMessages(err, "Error al reenviar el código de verificación", map[apperrors.Kind]string{
			apperrors.KindNotFound:    "Usuario no encontrado",
			apperrors.KindRateLimited: "Se ha excedido el límite de intentos",
			apperrors.KindValidation:  "Parámetros inválidos",
		})
	}
	var d Delivery
	if details := out.CodeDeliveryDetails; details != nil {
		d = Delivery{
			AttributeName:  aws.ToString(details.AttributeName),
			DeliveryMedium: string(details.DeliveryMedium),
			Destination:    aws.ToString(details.Destination),
		}
	}
	return d, nil
}

// List returns every registered institution.
func (s *InstitutionService) List(ctx context.Context) ([]models.Institution, error) {
	items, err := scanAll(ctx, s.db, s.cfg.Table)
	if err != nil {
		return nil, apperrors.FromAWS(err, "Error al obtener las instituciones")
	}
	institutions := []models.Institution{}
	if len(items) == 0 {
		return institutions, nil
	}
	if err := attributevalue.UnmarshalListOfMaps(items, &institutions); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "Error al obtener las instituciones")
	}
	return institutions, nil
}

func attr(name, value string) ciptypes.AttributeType {
	return ciptypes.AttributeType{Name: aws.String(name), Value: aws.String(value)}
}
