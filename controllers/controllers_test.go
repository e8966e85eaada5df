package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"academianet/apperrors"
	"academianet/middlewares"
	"academianet/services"
	"academianet/testutil"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router  *gin.Engine
	db      *testutil.FakeDynamoDB
	cognito *testutil.FakeCognito
	s3      *testutil.FakeS3
	llm     *testutil.FakeConverse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fx := &fixture{
		db: testutil.NewFakeDynamoDB().
			AddTable("Institutions", "id").
			AddTable("instituciones_snies", "codigo").
			AddTable("ProgramasAcademicos", "id").
			AddTable("Applications", "id"),
		cognito: testutil.NewFakeCognito(),
		s3:      testutil.NewFakeS3(),
		llm:     testutil.NewFakeConverse("Hola, ¿en qué te ayudo?"),
	}

	chat := services.NewChatService(
		services.NewConversationStore(services.NewMemoryBackend(), nil),
		services.NewBedrockGateway(fx.llm, services.CompletionDefaults{ModelID: "amazon.nova-lite-v1:0", Temperature: 0.7, MaxTokens: 256}, nil),
		"Eres un orientador.", nil, nil,
	)
	institutions := NewInstitutionController(services.NewInstitutionService(fx.db, fx.cognito, services.InstitutionServiceConfig{
		Table: "Institutions", UserPoolID: "pool", UserPoolClientID: "client", AutoConfirm: true,
	}, nil))
	chatCtl := NewChatController(chat, services.NewImageLoader(fx.s3, "imagenes"))
	whatsapp := NewWhatsAppController(chat, "Eres un orientador por WhatsApp.", nil)
	snies := NewCatalogController(services.NewCatalogService(fx.db, services.SniesCatalog("instituciones_snies"), nil))
	programs := NewCatalogController(services.NewCatalogService(fx.db, services.ProgramsCatalog("ProgramasAcademicos"), nil))
	applications := NewApplicationController(services.NewApplicationService(fx.db, "Applications", nil, nil, nil))

	r := gin.New()
	r.Use(middlewares.RequestID())
	r.POST("/ask-llm", chatCtl.AskLLM)
	r.POST("/whatsapp-webhook", whatsapp.Webhook)
	r.GET("/institutions", institutions.List)
	r.POST("/register", institutions.Register)
	r.POST("/verify-email", institutions.VerifyEmail)
	r.POST("/resend-verification-code", institutions.ResendCode)
	r.GET("/excel-institutions", snies.List)
	r.GET("/academic-programs", programs.List)
	r.POST("/submit-application", applications.Submit)
	fx.router = r
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middlewares.RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestAskLLM(t *testing.T) {
	fx := newFixture(t)
	w, body := fx.do(t, http.MethodPost, "/ask-llm", gin.H{
		"prompt":        "Hola",
		"system_prompt": "Eres breve.",
		"model_options": gin.H{"temperature": 0.2, "modelId": "anthropic.claude-3-haiku"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Hola, ¿en qué te ayudo?", body["resp"])
	assert.Regexp(t, `^conv_\d+$`, body["conversation_id"])
	assert.EqualValues(t, 2, body["message_count"])
	assert.Contains(t, body, "search_recommendation")
	assert.Nil(t, body["search_recommendation"])

	in := fx.llm.Inputs[0]
	assert.Equal(t, "anthropic.claude-3-haiku", *in.ModelId)
	assert.InDelta(t, 0.2, *in.InferenceConfig.Temperature, 1e-6)
}

func TestAskLLMContinuesConversation(t *testing.T) {
	fx := newFixture(t)
	_, first := fx.do(t, http.MethodPost, "/ask-llm", gin.H{"prompt": "Hola"})
	w, second := fx.do(t, http.MethodPost, "/ask-llm", gin.H{"prompt": "¿Y en Cali?", "conversation_id": first["conversation_id"]})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first["conversation_id"], second["conversation_id"])
	assert.EqualValues(t, 4, second["message_count"])
}

func TestAskLLMValidation(t *testing.T) {
	fx := newFixture(t)

	w, body := fx.do(t, http.MethodPost, "/ask-llm", gin.H{"system_prompt": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "prompt es requerido", body["message"])
	assert.Equal(t, "req-1", body["requestId"])
	assert.NotEmpty(t, body["time"])

	w, _ = fx.do(t, http.MethodPost, "/ask-llm", `{"prompt": "hola", "messages": [{"content": "sin rol"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/ask-llm", `{"prompt": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/ask-llm", gin.H{"prompt": "hola", "model_options": gin.H{"temperature": 3}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fx.llm.Inputs)
}

func TestAskLLMImage(t *testing.T) {
	fx := newFixture(t)
	fx.s3.Put("imagenes", "fotos/diploma.jpg", []byte{0xff, 0xd8})

	w, _ := fx.do(t, http.MethodPost, "/ask-llm", gin.H{"prompt": "¿Qué es?", "image": gin.H{"key": "fotos/diploma.jpg"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, fx.llm.Inputs[0].Messages[0].Content, 2)

	w, body := fx.do(t, http.MethodPost, "/ask-llm", gin.H{"prompt": "¿Qué es?", "image": gin.H{"bucket": "otro", "key": "no.jpg"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["message"], "s3://otro/no.jpg")
}

func TestAskLLMProviderError(t *testing.T) {
	fx := newFixture(t)
	fx.llm.Err = errors.New("ModelNotReadyException")

	w, body := fx.do(t, http.MethodPost, "/ask-llm", gin.H{"prompt": "hola"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-1", body["requestId"])
	assert.Contains(t, body["error"], "ModelNotReadyException")
}

func TestAskLLMSearchRecommendation(t *testing.T) {
	fx := newFixture(t)
	fx.llm.Reply = "Mira estas opciones.\nRECOMENDACION_BUSQUEDA: medicina Bogotá"

	_, body := fx.do(t, http.MethodPost, "/ask-llm", gin.H{"prompt": "Quiero ser médico"})
	assert.Equal(t, "Mira estas opciones.", body["resp"])
	assert.Equal(t, "medicina Bogotá", body["search_recommendation"])
}

func postForm(t *testing.T, r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWhatsAppWebhook(t *testing.T) {
	fx := newFixture(t)
	fx.llm.Reply = "Te recomiendo la Nacional & la de Antioquia"

	w := postForm(t, fx.router, "/whatsapp-webhook", url.Values{"Body": {"Hola"}, "From": {"whatsapp:+573001234567"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/xml", w.Header().Get("Content-Type"))
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"+
		`<Response><Message>Te recomiendo la Nacional &amp; la de Antioquia</Message></Response>`, w.Body.String())

	w = postForm(t, fx.router, "/whatsapp-webhook", url.Values{"Body": {"¿Y en Cali?"}, "From": {"whatsapp:+573001234567"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.llm.Inputs[1].Messages, 3, "the sender keeps context")
}

func TestWhatsAppWebhookFallbacks(t *testing.T) {
	fx := newFixture(t)

	w := postForm(t, fx.router, "/whatsapp-webhook", url.Values{"From": {"whatsapp:+57300"}})
	assert.Contains(t, w.Body.String(), whatsappEmptyReply)
	assert.Empty(t, fx.llm.Inputs)

	fx.llm.Err = errors.New("ThrottlingException")
	w = postForm(t, fx.router, "/whatsapp-webhook", url.Values{"Body": {"Hola"}, "From": {"whatsapp:+57300"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tuvimos un problema procesando tu mensaje")
}

func TestWhatsAppConversationID(t *testing.T) {
	assert.Equal(t, "wa_573001234567", whatsappConversationID("whatsapp:+57 300 123 4567"))
	assert.Equal(t, "", whatsappConversationID("anonymous"))
}

func registration(email string) gin.H {
	return gin.H{
		"nombre":                 "Ana",
		"apellido":               "Gómez",
		"nombreLegalInstitucion": "Corporación Universitaria de Prueba",
		"abreviacionNombre":      "CUP",
		"correoElectronico":      email,
		"contrasena":             "Secreta#2024",
	}
}

func TestRegisterVerifyResend(t *testing.T) {
	fx := newFixture(t)

	w, body := fx.do(t, http.MethodPost, "/register", registration("ana@cup.edu.co"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Registro exitoso", body["message"])
	assert.Len(t, body["institutionId"], 36)
	assert.Regexp(t, `^user_[0-9a-f]{8}$`, body["username"])
	username := body["username"].(string)

	w, body = fx.do(t, http.MethodPost, "/register", registration("ANA@cup.edu.co"))
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = fx.do(t, http.MethodPost, "/resend-verification-code", gin.H{"username": username})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{
		"attributeName": "email", "deliveryMedium": "EMAIL", "destination": "a***@cup.edu.co",
	}, body["delivery"])

	w, _ = fx.do(t, http.MethodPost, "/verify-email", gin.H{"username": username, "code": "999999"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = fx.do(t, http.MethodPost, "/verify-email", gin.H{"username": username, "code": fx.cognito.Code})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["institutionId"])

	w, _ = fx.do(t, http.MethodPost, "/verify-email", gin.H{"username": "user_nadie", "code": fx.cognito.Code})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = fx.do(t, http.MethodGet, "/institutions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestRegisterMissingFields(t *testing.T) {
	fx := newFixture(t)
	in := registration("ana@cup.edu.co")
	delete(in, "contrasena")

	w, body := fx.do(t, http.MethodPost, "/register", in)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Todos los campos son requeridos", body["message"])
	assert.Empty(t, fx.cognito.Calls)
}

func TestResendRateLimited(t *testing.T) {
	fx := newFixture(t)
	fx.cognito.Users["user_a"] = &testutil.FakeUser{Username: "user_a", Attributes: map[string]string{}}
	fx.cognito.Errors["ResendConfirmationCode"] = &ciptypes.LimitExceededException{Message: aws.String("Attempt limit exceeded")}

	w, body := fx.do(t, http.MethodPost, "/resend-verification-code", gin.H{"username": "user_a"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Se ha excedido el límite de intentos", body["message"])
}

func seedCatalog(fx *fixture, n int) {
	for i := 1; i <= n; i++ {
		fx.db.Seed("instituciones_snies", testutil.Item{
			"codigo":       &types.AttributeValueMemberS{Value: fmt.Sprintf("c%d", i)},
			"departamento": &types.AttributeValueMemberS{Value: "Antioquia"},
		})
	}
}

func TestExcelInstitutions(t *testing.T) {
	fx := newFixture(t)
	seedCatalog(fx, 3)

	w, body := fx.do(t, http.MethodGet, "/excel-institutions?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.Len(t, body["items"], 2)
	assert.Equal(t, body["items"], body["institutions"])
	assert.Equal(t, map[string]interface{}{}, body["filters"])
	token, ok := body["nextToken"].(string)
	require.True(t, ok)

	w, body = fx.do(t, http.MethodGet, "/excel-institutions?limit=2&departamento=Antioquia&nextToken="+url.QueryEscape(token), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.NotContains(t, body, "nextToken")
	assert.Equal(t, map[string]interface{}{"departamento": "Antioquia"}, body["filters"])
}

func TestExcelInstitutionsLegacyFilterNames(t *testing.T) {
	fx := newFixture(t)
	seedCatalog(fx, 2)
	fx.db.Seed("instituciones_snies", testutil.Item{
		"codigo":    &types.AttributeValueMemberS{Value: "cali1"},
		"municipio": &types.AttributeValueMemberS{Value: "Cali"},
	})

	w, body := fx.do(t, http.MethodGet, "/excel-institutions?ciudad=Cali", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, map[string]interface{}{"municipio": "Cali"}, body["filters"])
}

func TestCatalogErrors(t *testing.T) {
	fx := newFixture(t)

	w, _ := fx.do(t, http.MethodGet, "/academic-programs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodGet, "/academic-programs?nextToken=@@", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := fx.do(t, http.MethodGet, "/academic-programs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, body["programs"])

	fx.db.Errors["Scan"] = &types.ProvisionedThroughputExceededException{}
	w, _ = fx.do(t, http.MethodGet, "/academic-programs", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSubmitApplication(t *testing.T) {
	fx := newFixture(t)
	w, body := fx.do(t, http.MethodPost, "/submit-application", gin.H{
		"nombre": "Luis", "apellido": "Pérez", "email": "luis@correo.com",
		"telefono": "+573001234567", "programId": "prog_1", "programName": "Derecho",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Regexp(t, `^app_`, body["applicationId"])
	assert.Equal(t, 1, fx.db.Count("Applications"))

	w, _ = fx.do(t, http.MethodPost, "/submit-application", gin.H{"nombre": "Luis"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeIngester struct {
	sources []services.IngestSource
	result  services.IngestResult
	err     error
}

func (f *fakeIngester) Ingest(_ context.Context, src services.IngestSource) (services.IngestResult, error) {
	f.sources = append(f.sources, src)
	return f.result, f.err
}

func (f *fakeIngester) Table() string { return "instituciones_snies" }

func s3Event(bucket, key string) events.S3Event {
	return events.S3Event{Records: []events.S3EventRecord{{
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: bucket},
			Object: events.S3Object{Key: key},
		},
	}}}
}

func decodeBody(t *testing.T, resp events.APIGatewayProxyResponse) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	return body
}

func TestUploadTrigger(t *testing.T) {
	ing := &fakeIngester{result: services.IngestResult{RecordsRead: 30, RecordsWritten: 28}}
	ctl := NewUploadController(ing, "uploads/", nil)

	resp, err := ctl.HandleS3Event(context.Background(), s3Event("bucket", "uploads/SNIES+2024%281%29.xlsx"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, services.IngestSource{Bucket: "bucket", Key: "uploads/SNIES 2024(1).xlsx"}, ing.sources[0])

	body := decodeBody(t, resp)
	assert.Equal(t, "Successfully processed 28 of 30 records from uploads/SNIES 2024(1).xlsx", body["message"])
	assert.Equal(t, "instituciones_snies", body["table"])
	assert.EqualValues(t, 28, body["processedRecords"])
	assert.EqualValues(t, 30, body["recordsRead"])
}

func TestUploadTriggerIgnoresOtherPrefixes(t *testing.T) {
	ing := &fakeIngester{}
	ctl := NewUploadController(ing, "uploads/", nil)

	resp, err := ctl.HandleS3Event(context.Background(), s3Event("bucket", "conversations/c1.json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, ing.sources)

	resp, err = ctl.HandleS3Event(context.Background(), events.S3Event{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadTriggerFailure(t *testing.T) {
	ing := &fakeIngester{err: apperrors.Wrap(apperrors.KindParse, errors.New("zip: not a valid zip file"), "no se pudo leer el archivo Excel")}
	ctl := NewUploadController(ing, "uploads/", nil)

	resp, err := ctl.HandleS3Event(context.Background(), s3Event("bucket", "uploads/x.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Error processing Excel file", body["message"])
	assert.Contains(t, body["error"], "not a valid zip file")
}

func TestUploadTriggerEmptyWorkbook(t *testing.T) {
	ctl := NewUploadController(&fakeIngester{}, "", nil)
	resp, err := ctl.HandleS3Event(context.Background(), s3Event("bucket", "any.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "Excel file had 0 records to process from any.xlsx", decodeBody(t, resp)["message"])
}
