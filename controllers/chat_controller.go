package controllers

import (
	"net/http"

	"academianet/apperrors"
	"academianet/models"
	"academianet/services"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	chat   *services.ChatService
	images *services.ImageLoader
}

func NewChatController(chat *services.ChatService, images *services.ImageLoader) *ChatController {
	if images == nil {
		images = services.NewImageLoader(nil, "")
	}
	return &ChatController{chat: chat, images: images}
}

type modelOptions struct {
	Temperature *float64 `json:"temperature"`
	ModelID     string   `json:"modelId"`
	MaxTokens   int      `json:"maxTokens"`
}

type askRequest struct {
	Prompt         string             `json:"prompt"`
	SystemPrompt   string             `json:"system_prompt"`
	ConversationID string             `json:"conversation_id"`
	Messages       []models.Message   `json:"messages"`
	ModelOptions   *modelOptions      `json:"model_options"`
	Image          *services.ImageRef `json:"image"`
}

// AskLLM handles POST /ask-llm.
func (ctl *ChatController) AskLLM(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Cuerpo de la solicitud inválido: "+err.Error())
		return
	}
	if req.Prompt == "" {
		badRequest(c, "prompt es requerido")
		return
	}

	chatReq := services.ChatRequest{
		Prompt:          req.Prompt,
		SystemPrompt:    req.SystemPrompt,
		ConversationID:  req.ConversationID,
		Messages:        req.Messages,
		RecommendSearch: true,
	}
	if o := req.ModelOptions; o != nil {
		chatReq.Options = services.CompletionOptions{Temperature: o.Temperature, ModelID: o.ModelID, MaxTokens: o.MaxTokens}
	}
	if req.Image != nil {
		img, err := ctl.images.FromS3(c.Request.Context(), *req.Image)
		if err != nil {
			// an unreadable reference is the caller's mistake
			respondError(c, apperrors.Wrap(apperrors.KindValidation, err, apperrors.MessageOf(err, "No se pudo leer la imagen")), "")
			return
		}
		chatReq.Image = img
	}

	res, err := ctl.chat.Ask(c.Request.Context(), chatReq)
	if err != nil {
		respondError(c, err, "Error al procesar la solicitud")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resp":                  res.Reply,
		"conversation_id":       res.ConversationID,
		"message_count":         res.MessageCount,
		"search_recommendation": res.SearchRecommendation,
	})
}
