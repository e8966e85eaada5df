package controllers

import (
	"net/http"

	"academianet/services"

	"github.com/gin-gonic/gin"
)

type InstitutionController struct {
	svc *services.InstitutionService
}

func NewInstitutionController(svc *services.InstitutionService) *InstitutionController {
	return &InstitutionController{svc: svc}
}

// List handles GET /institutions.
func (ctl *InstitutionController) List(c *gin.Context) {
	institutions, err := ctl.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener las instituciones")
		return
	}
	c.JSON(http.StatusOK, gin.H{"institutions": institutions, "count": len(institutions)})
}

// Register handles POST /register.
func (ctl *InstitutionController) Register(c *gin.Context) {
	var in services.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Todos los campos son requeridos")
		return
	}
	res, err := ctl.svc.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "Error interno del servidor")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Registro exitoso",
		"institutionId": res.InstitutionID,
		"username":      res.Username,
		"email":         res.Email,
	})
}

// VerifyEmail handles POST /verify-email.
func (ctl *InstitutionController) VerifyEmail(c *gin.Context) {
	var in struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "El nombre de usuario y el código de verificación son obligatorios")
		return
	}
	id, err := ctl.svc.VerifyEmail(c.Request.Context(), in.Username, in.Code)
	if err != nil {
		respondError(c, err, "Error interno del servidor")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Email verificado correctamente. Institución marcada como verificada.",
		"institutionId": id,
	})
}

// ResendCode handles POST /resend-verification-code.
func (ctl *InstitutionController) ResendCode(c *gin.Context) {
	var in struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Se requiere un nombre de usuario")
		return
	}
	delivery, err := ctl.svc.ResendCode(c.Request.Context(), in.Username)
	if err != nil {
		respondError(c, err, "Error al reenviar el código de verificación")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Código de verificación reenviado exitosamente",
		"delivery": delivery,
	})
}
