package controllers

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"academianet/logging"
	"academianet/services"

	"github.com/gin-gonic/gin"
)

const (
	whatsappEmptyReply = "Lo siento, no pude entender tu mensaje. Por favor, intenta de nuevo."
	whatsappErrorReply = "Lo siento, tuvimos un problema procesando tu mensaje. Por favor, intenta de nuevo más tarde."
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// WhatsAppController answers Twilio WhatsApp webhooks with TwiML.
type WhatsAppController struct {
	chat         *services.ChatService
	systemPrompt string
	logger       *slog.Logger
}

func NewWhatsAppController(chat *services.ChatService, systemPrompt string, logger *slog.Logger) *WhatsAppController {
	return &WhatsAppController{chat: chat, systemPrompt: systemPrompt, logger: logging.OrNop(logger)}
}

// whatsappConversationID keys a sender's conversation by the digits of its address.
func whatsappConversationID(from string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, from)
	if digits == "" {
		return ""
	}
	return "wa_" + digits
}

// Webhook handles POST /whatsapp-webhook. It always replies 200; failures
// become an apology message.
func (ctl *WhatsAppController) Webhook(c *gin.Context) {
	body := strings.TrimSpace(c.PostForm("Body"))
	from := c.PostForm("From")
	logger := logging.FromContext(c.Request.Context(), ctl.logger)
	logger.Info("whatsapp message received", "from", from)

	if body == "" {
		writeTwiML(c, whatsappEmptyReply)
		return
	}

	res, err := ctl.chat.Ask(c.Request.Context(), services.ChatRequest{
		Prompt:         body,
		SystemPrompt:   ctl.systemPrompt,
		ConversationID: whatsappConversationID(from),
	})
	if err != nil {
		logger.Error("whatsapp reply failed", "from", from, "error", err)
		writeTwiML(c, whatsappErrorReply)
		return
	}
	writeTwiML(c, res.Reply)
}

func writeTwiML(c *gin.Context, message string) {
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/xml", append([]byte(xml.Header), out...))
}
