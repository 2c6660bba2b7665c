package stubserver

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"credits/internal/models"
)

// Handler serves the stub consumables API.
type Handler struct {
	store     *Store
	jwtSecret string
}

// NewHandler creates the stub API handler.
func NewHandler(store *Store, jwtSecret string) *Handler {
	return &Handler{store: store, jwtSecret: jwtSecret}
}

func respond(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"data": data})
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func userID(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals("userID").(string)
	if !ok || id == "" {
		return "", fiber.ErrUnauthorized
	}
	return id, nil
}

// Login exchanges email/password for a bearer token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&input); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request format")
	}
	if input.Email == "" || input.Password == "" {
		return respondError(c, fiber.StatusBadRequest, "email and password are required")
	}

	user, err := h.store.Authenticate(input.Email, input.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return respondError(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		log.Error().Err(err).Msg("authenticate failed")
		return respondError(c, fiber.StatusInternalServerError, "request failed")
	}

	token, err := GenerateToken(h.jwtSecret, user.ID)
	if err != nil {
		log.Error().Err(err).Msg("token generation failed")
		return respondError(c, fiber.StatusInternalServerError, "request failed")
	}
	return respond(c, fiber.Map{"token": token, "user_id": user.ID})
}

// GetBalance returns the user's balance, creating the account with the
// initial grant on first access.
func (h *Handler) GetBalance(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	account, err := h.store.GetOrCreateAccount(id)
	if err != nil {
		log.Error().Err(err).Msg("get account failed")
		return respondError(c, fiber.StatusInternalServerError, "request failed")
	}
	return respond(c, models.CreditBalance{
		Balance:        account.Balance,
		InitialCredits: account.InitialCredits,
	})
}

// RecordPurchase credits the account and returns the new balance snapshot.
func (h *Handler) RecordPurchase(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var input struct {
		Credits          int     `json:"credits"`
		Source           string  `json:"source"`
		TransactionRefID *string `json:"transaction_ref_id"`
		ProductID        *string `json:"product_id"`
		PriceCents       *int64  `json:"price_cents"`
		Currency         *string `json:"currency"`
	}
	if err := c.BodyParser(&input); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request format")
	}
	if input.Credits < 0 {
		return respondError(c, fiber.StatusBadRequest, "credits must be non-negative")
	}
	if input.Source == "" {
		return respondError(c, fiber.StatusBadRequest, "source is required")
	}

	account, err := h.store.RecordPurchase(id, PurchaseInput{
		Credits:          input.Credits,
		Source:           input.Source,
		TransactionRefID: input.TransactionRefID,
		ProductID:        input.ProductID,
		PriceCents:       input.PriceCents,
		Currency:         input.Currency,
	})
	if err != nil {
		log.Error().Err(err).Msg("record purchase failed")
		return respondError(c, fiber.StatusInternalServerError, "request failed")
	}
	return respond(c, models.CreditBalance{
		Balance:        account.Balance,
		InitialCredits: account.InitialCredits,
	})
}

// RecordUsage debits one credit.
func (h *Handler) RecordUsage(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var input struct {
		Filename *string `json:"filename"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return respondError(c, fiber.StatusBadRequest, "invalid request format")
		}
	}

	balance, success, err := h.store.RecordUsage(id, input.Filename)
	if err != nil {
		log.Error().Err(err).Msg("record usage failed")
		return respondError(c, fiber.StatusInternalServerError, "request failed")
	}
	return respond(c, models.UsageResult{Balance: balance, Success: success})
}

// ListPurchases returns the purchase history page, most recent first.
func (h *Handler) ListPurchases(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	rows, err := h.store.Purchases(id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		log.Error().Err(err).Msg("list purchases failed")
		return respondError(c, fiber.StatusInternalServerError, "request failed")
	}
	return respond(c, rows)
}

// ListUsages returns the usage history page, most recent first.
func (h *Handler) ListUsages(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	rows, err := h.store.Usages(id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		log.Error().Err(err).Msg("list usages failed")
		return respondError(c, fiber.StatusInternalServerError, "request failed")
	}
	return respond(c, rows)
}
