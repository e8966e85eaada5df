package controllers

import (
	"net/http"

	"academianet/services"

	"github.com/gin-gonic/gin"
)

type ApplicationController struct {
	svc *services.ApplicationService
}

func NewApplicationController(svc *services.ApplicationService) *ApplicationController {
	return &ApplicationController{svc: svc}
}

// Submit handles POST /submit-application.
func (ctl *ApplicationController) Submit(c *gin.Context) {
	var in services.ApplicationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Cuerpo de la solicitud inválido")
		return
	}
	app, err := ctl.svc.Submit(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "Error interno al procesar la solicitud")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Solicitud registrada exitosamente. Nos comunicaremos contigo pronto.",
		"applicationId": app.ID,
		"success":       true,
	})
}
