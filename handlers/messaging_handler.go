package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	config "github.com/mainamwangi/soko_chat/configs"
	"github.com/mainamwangi/soko_chat/services"
	"github.com/mainamwangi/soko_chat/utils"
	"github.com/mainamwangi/soko_chat/websocket"
	"github.com/go-playground/validator/v10"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	messaging *services.MessagingService
	hub       *websocket.Hub
	validate  = validator.New()
)

func InitMessaging(svc *services.MessagingService, h *websocket.Hub) {
	messaging = svc
	hub = h
}

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	raw, _ := claims["user_id"].(string)
	return uuid.Parse(raw)
}

func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case services.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrConversationNotFound), errors.Is(err, services.ErrNotParticipant):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		var transient *services.TransientError
		if errors.As(err, &transient) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Temporary failure, please retry"})
		}
		log.Printf("Messaging error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

func parseListingID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateOrGetConversation resolves the thread id for the caller and a
// recipient, optionally scoped to a listing. Reuses the existing thread
// in either direction; allocates a new id otherwise.
func CreateOrGetConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user token"})
	}

	type Request struct {
		RecipientID string `json:"recipient_id" validate:"required,uuid"`
		ListingID   string `json:"listing_id" validate:"omitempty,uuid"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	recipientID, _ := uuid.Parse(req.RecipientID)
	listingID, _ := parseListingID(req.ListingID)

	conversationID, created, err := messaging.ResolveConversation(c.Context(), userID, recipientID, listingID)
	if err != nil {
		return serviceError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"conversation_id": conversationID,
		"created":         created,
	})
}

// GetUserConversations renders the caller's conversation list, newest
// activity first.
func GetUserConversations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user token"})
	}

	summaries, err := messaging.ListThreads(c.Context(), userID)
	if err != nil {
		return serviceError(c, err)
	}

	offset, limit := utils.ParsePagination(c.Query("page", "1"), c.Query("page_size", "20"))
	return c.JSON(utils.PageSlice(summaries, offset, limit))
}

// GetConversationMessages opens a conversation for the caller: returns
// its messages in commit order and reconciles the caller's read state.
func GetConversationMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user token"})
	}
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation ID"})
	}

	messages, err := messaging.OpenConversation(c.Context(), conversationID, userID)
	if err != nil {
		return serviceError(c, err)
	}

	offset, limit := utils.ParsePagination(c.Query("page", "1"), c.Query("page_size", "50"))
	return c.JSON(utils.PageSlice(messages, offset, limit))
}

// MarkConversationRead reconciles the caller's read state explicitly.
func MarkConversationRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user token"})
	}
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation ID"})
	}

	marked, err := messaging.MarkConversationRead(c.Context(), conversationID, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"marked_read": marked})
}

// SendMessage delivers a message to a recipient, resolving or creating
// the conversation as needed.
func SendMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user token"})
	}

	type Request struct {
		ReceiverID string `json:"receiver_id" validate:"required,uuid"`
		ListingID  string `json:"listing_id" validate:"omitempty,uuid"`
		Body       string `json:"body" validate:"required"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	receiverID, _ := uuid.Parse(req.ReceiverID)
	listingID, _ := parseListingID(req.ListingID)

	msg, err := messaging.SendMessage(c.Context(), userID, receiverID, listingID, req.Body)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// wsConn is the slice of the websocket connection the session uses,
// satisfied by *websocketcontrib.Conn and by test doubles.
type wsConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

type wsSession struct {
	conn   wsConn
	userID uuid.UUID
	out    chan interface{}
	closed chan struct{}
	// writeDead is closed when writeLoop returns, so senders never block
	// on an out buffer nobody drains anymore.
	writeDead chan struct{}
	sub       *websocket.Subscription
}

func newWsSession(conn wsConn, userID uuid.UUID) *wsSession {
	return &wsSession{
		conn:      conn,
		userID:    userID,
		out:       make(chan interface{}, 16),
		closed:    make(chan struct{}),
		writeDead: make(chan struct{}),
	}
}

type wsClientFrame struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	ListingID      string `json:"listing_id,omitempty"`
	Body           string `json:"body,omitempty"`
}

// ServeWs runs one viewer session. Protocol: the first frame must be
// {"type":"auth","token":...}; afterwards the client may subscribe to
// one conversation at a time, send messages and mark threads read.
// While subscribed, inserted messages addressed to the session's user
// are auto-marked read, per the open-conversation policy.
func ServeWs(c *websocketcontrib.Conn) {
	serveSession(c)
}

func serveSession(c wsConn) {
	var authMsg wsClientFrame
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("WebSocket auth failed: invalid or missing auth message, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"type": "error", "error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	claims, err := parseToken(authMsg.Token)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"type": "error", "error": "Invalid token"})
		c.Close()
		return
	}
	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid user_id %q: %v", rawID, err)
		_ = c.WriteJSON(fiber.Map{"type": "error", "error": "Invalid user ID"})
		c.Close()
		return
	}

	session := newWsSession(c, userID)
	log.Printf("WebSocket client authenticated: %s", userID)

	go session.writeLoop()
	defer func() {
		session.detach()
		close(session.closed)
		c.Close()
	}()

	session.readLoop()
}

func (s *wsSession) readLoop() {
	for {
		var frame wsClientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for client %s: %v", s.userID, err)
			} else {
				log.Printf("WebSocket read error for client %s: %v", s.userID, err)
			}
			return
		}

		switch frame.Type {
		case "subscribe":
			s.handleSubscribe(frame)
		case "unsubscribe":
			s.detach()
		case "message":
			s.handleSend(frame)
		case "read":
			s.handleRead(frame)
		default:
			s.send(fiber.Map{"type": "error", "error": "Unknown frame type"})
		}
	}
}

func (s *wsSession) handleSubscribe(frame wsClientFrame) {
	conversationID, err := uuid.Parse(frame.ConversationID)
	if err != nil {
		s.send(fiber.Map{"type": "error", "error": "Invalid conversation ID"})
		return
	}

	s.detach()
	sub := hub.Subscribe(conversationID)

	// Subscribe before the fetch so nothing committed in between is
	// missed; duplicates are reconciled by id on the client.
	messages, err := messaging.OpenConversation(context.Background(), conversationID, s.userID)
	if err != nil {
		sub.Unsubscribe()
		if errors.Is(err, services.ErrConversationNotFound) || errors.Is(err, services.ErrNotParticipant) {
			s.send(fiber.Map{"type": "error", "error": "Conversation not found"})
		} else {
			log.Printf("Open conversation failed for client %s: %v", s.userID, err)
			s.send(fiber.Map{"type": "error", "error": "Failed to open conversation"})
		}
		return
	}

	s.sub = sub
	go s.forward(sub)
	s.send(fiber.Map{"type": "history", "conversation_id": conversationID, "messages": messages})
}

func (s *wsSession) handleSend(frame wsClientFrame) {
	receiverID, err := uuid.Parse(frame.ReceiverID)
	if err != nil {
		s.send(fiber.Map{"type": "error", "error": "Invalid receiver ID"})
		return
	}
	listingID, err := parseListingID(frame.ListingID)
	if err != nil {
		s.send(fiber.Map{"type": "error", "error": "Invalid listing ID"})
		return
	}

	msg, err := messaging.SendMessage(context.Background(), s.userID, receiverID, listingID, frame.Body)
	if err != nil {
		if services.IsValidation(err) {
			s.send(fiber.Map{"type": "error", "error": err.Error()})
		} else {
			log.Printf("Failed to send message for client %s: %v", s.userID, err)
			s.send(fiber.Map{"type": "error", "error": "Failed to send message"})
		}
		return
	}
	s.send(fiber.Map{"type": "sent", "message": msg})
}

func (s *wsSession) handleRead(frame wsClientFrame) {
	conversationID, err := uuid.Parse(frame.ConversationID)
	if err != nil {
		s.send(fiber.Map{"type": "error", "error": "Invalid conversation ID"})
		return
	}
	marked, err := messaging.MarkConversationRead(context.Background(), conversationID, s.userID)
	if err != nil {
		log.Printf("Mark read failed for client %s: %v", s.userID, err)
		s.send(fiber.Map{"type": "error", "error": "Failed to mark conversation read"})
		return
	}
	s.send(fiber.Map{"type": "read_ack", "conversation_id": conversationID, "marked_read": marked})
}

// forward pumps hub events for the attached conversation to the client.
func (s *wsSession) forward(sub *websocket.Subscription) {
	conversationID := sub.ConversationID()
	for event := range sub.Events() {
		switch event.Type {
		case websocket.EventInserted:
			if event.Message != nil && event.Message.ReceiverID == s.userID {
				// The thread is open in this session, so mark incoming
				// messages read immediately.
				if _, err := messaging.MarkConversationRead(context.Background(), conversationID, s.userID); err != nil {
					log.Printf("Auto mark-read failed for client %s: %v", s.userID, err)
				}
			}
			s.send(fiber.Map{"type": "message", "message": event.Message})
		case websocket.EventUpdated:
			s.send(fiber.Map{"type": "message_read", "message": event.Message})
		case websocket.EventResync:
			// The subscription gapped; replay the authoritative log.
			messages, err := messaging.OpenConversation(context.Background(), conversationID, s.userID)
			if err != nil {
				log.Printf("Resync failed for client %s: %v", s.userID, err)
				s.send(fiber.Map{"type": "error", "error": "Resync failed, please reopen the conversation"})
				continue
			}
			s.send(fiber.Map{"type": "resync", "conversation_id": conversationID, "messages": messages})
		}
	}
}

func (s *wsSession) detach() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

func (s *wsSession) send(frame interface{}) bool {
	select {
	case s.out <- frame:
		return true
	case <-s.closed:
		return false
	case <-s.writeDead:
		return false
	}
}

func (s *wsSession) writeLoop() {
	defer close(s.writeDead)
	for {
		select {
		case frame := <-s.out:
			if err := s.conn.WriteJSON(frame); err != nil {
				log.Printf("WebSocket write error for client %s: %v", s.userID, err)
				s.conn.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}
