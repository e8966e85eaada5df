package routes

import (
	"log/slog"

	"academianet/controllers"
	"academianet/middlewares"

	"github.com/gin-gonic/gin"
)

// Controllers holds the handlers the router exposes.
type Controllers struct {
	Chat         *controllers.ChatController
	WhatsApp     *controllers.WhatsAppController
	Institutions *controllers.InstitutionController
	SniesCatalog *controllers.CatalogController
	Programs     *controllers.CatalogController
	Applications *controllers.ApplicationController
}

func SetupRouter(ctl Controllers, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(
		middlewares.CORS(),
		middlewares.RequestID(),
		middlewares.Logger(logger),
		gin.Recovery(),
	)

	// chat
	r.POST("/ask-llm", ctl.Chat.AskLLM)
	r.POST("/whatsapp-webhook", ctl.WhatsApp.Webhook)

	// institutions and their administrators
	r.GET("/institutions", ctl.Institutions.List)
	r.POST("/register", ctl.Institutions.Register)
	r.POST("/verify-email", ctl.Institutions.VerifyEmail)
	r.POST("/resend-verification-code", ctl.Institutions.ResendCode)

	// catalogs
	r.GET("/excel-institutions", ctl.SniesCatalog.List)
	r.GET("/academic-programs", ctl.Programs.List)

	r.POST("/submit-application", ctl.Applications.Submit)

	return r
}
