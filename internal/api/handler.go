package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"game-economy-service/internal/broker"
	"game-economy-service/internal/models"
	"game-economy-service/internal/redisclient"
	"game-economy-service/internal/service"
	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	ledger  *service.Ledger
	equip   *service.EquipmentService
	enhance *service.EnhancementEngine
	market  *service.Marketplace
	redis   *redisclient.Client
}

// NewHandler creates a new HTTP handler. The redis client may be nil; the
// admin stream endpoints then return empty results.
func NewHandler(ledger *service.Ledger, equip *service.EquipmentService, enhance *service.EnhancementEngine, market *service.Marketplace, redis *redisclient.Client) *Handler {
	return &Handler{
		ledger:  ledger,
		equip:   equip,
		enhance: enhance,
		market:  market,
		redis:   redis,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/accounts", h.createAccount)
		v1.GET("/accounts/:username", h.getAccount)
		v1.POST("/accounts/:username/credit", requireElevated(), h.creditAccount)
		v1.POST("/accounts/:username/debit", requireElevated(), h.debitAccount)
		v1.POST("/accounts/:username/ban", requireElevated(), h.banAccount)
		v1.POST("/accounts/:username/unban", requireElevated(), h.unbanAccount)
		v1.POST("/transfer", requireIdentity(), h.transfer)

		v1.GET("/inventory/:username", h.getInventory)
		v1.POST("/shop/buy", requireIdentity(), h.buyItem)

		v1.POST("/equipment/generate", requireIdentity(), h.generateEquipment)
		v1.GET("/equipment/:uid", h.getEquipment)
		v1.POST("/equipment/:uid/equip", requireIdentity(), h.equipItem)
		v1.POST("/equipment/unequip", requireIdentity(), h.unequipItem)
		v1.POST("/equipment/:uid/enhance", requireIdentity(), h.enhanceEquipment)
		v1.DELETE("/equipment/:uid", requireElevated(), h.deleteEquipment)

		v1.GET("/auctions", h.listAuctions)
		v1.GET("/auctions/:id", h.getAuction)
		v1.POST("/auctions", requireIdentity(), h.createAuction)
		v1.POST("/auctions/:id/bid", requireIdentity(), h.bidAuction)
		v1.POST("/auctions/:id/buyout", requireIdentity(), h.buyoutAuction)
		v1.POST("/auctions/:id/cancel", requireIdentity(), h.cancelAuction)
		v1.DELETE("/auctions/:id", requireElevated(), h.forceRemoveAuction)

		v1.GET("/leaderboard/:name", h.leaderboard)

		admin := v1.Group("/admin", requireElevated())
		{
			admin.POST("/inventory", h.adminAdjustStack)
			admin.GET("/logs", h.readStream(broker.ActionsStream))
			admin.GET("/bids", h.readStream(broker.BidsStream))
			admin.GET("/sold", h.readStream(broker.SoldStream))
		}
	}
}

// Identity and privilege are resolved upstream and arrive as trusted headers.
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader("X-Username")
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-Username header required"})
			return
		}
		c.Set("username", username)
		c.Next()
	}
}

func requireElevated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Elevated") != "true" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "elevated privilege required"})
			return
		}
		c.Set("username", c.GetHeader("X-Username"))
		c.Next()
	}
}

func caller(c *gin.Context) string {
	return c.GetString("username")
}

// respondError maps the typed service failures to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotOwned):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrAlreadyLocked),
		errors.Is(err, models.ErrNotLocked),
		errors.Is(err, models.ErrAuctionClosed),
		errors.Is(err, models.ErrHasBids),
		errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidArgument),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrAtMaxLevel):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createAccount(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	acct, err := h.ledger.CreateAccount(c.Request.Context(), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (h *Handler) getAccount(c *gin.Context) {
	acct, err := h.ledger.GetAccount(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

func (h *Handler) creditAccount(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	balance, err := h.ledger.Credit(c.Request.Context(), caller(c), c.Param("username"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": c.Param("username"), "gold": balance})
}

func (h *Handler) debitAccount(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	balance, err := h.ledger.Debit(c.Request.Context(), caller(c), c.Param("username"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": c.Param("username"), "gold": balance})
}

func (h *Handler) banAccount(c *gin.Context) {
	if err := h.ledger.SetBanned(c.Request.Context(), caller(c), c.Param("username"), true); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": c.Param("username"), "banned": true})
}

func (h *Handler) unbanAccount(c *gin.Context) {
	if err := h.ledger.SetBanned(c.Request.Context(), caller(c), c.Param("username"), false); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": c.Param("username"), "banned": false})
}

func (h *Handler) transfer(c *gin.Context) {
	var req struct {
		To     string `json:"to" binding:"required"`
		Amount int64  `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.ledger.Transfer(c.Request.Context(), caller(c), req.To, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": caller(c), "to": req.To, "amount": req.Amount})
}

func (h *Handler) getInventory(c *gin.Context) {
	stacks, err := h.equip.GetInventory(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": stacks})
}

func (h *Handler) buyItem(c *gin.Context) {
	var req struct {
		ItemID   string `json:"item_id" binding:"required"`
		Quantity int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	qty, err := h.equip.BuyItem(c.Request.Context(), caller(c), req.ItemID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": req.ItemID, "quantity": qty})
}

func (h *Handler) adminAdjustStack(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		ItemID   string `json:"item_id" binding:"required"`
		Delta    int    `json:"delta" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	qty, err := h.equip.AdjustStack(c.Request.Context(), caller(c), req.Username, req.ItemID, req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": req.Username, "item_id": req.ItemID, "quantity": qty})
}

func (h *Handler) generateEquipment(c *gin.Context) {
	var req struct {
		EquipType string `json:"equip_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	eq, err := h.equip.Generate(c.Request.Context(), caller(c), req.EquipType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, eq)
}

func (h *Handler) getEquipment(c *gin.Context) {
	eq, err := h.equip.GetEquipment(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eq)
}

func (h *Handler) equipItem(c *gin.Context) {
	var req struct {
		Slot string `json:"slot" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.equip.Equip(c.Request.Context(), caller(c), c.Param("uid"), req.Slot); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": c.Param("uid"), "slot": req.Slot})
}

func (h *Handler) unequipItem(c *gin.Context) {
	var req struct {
		Slot string `json:"slot" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.equip.Unequip(c.Request.Context(), caller(c), req.Slot); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": req.Slot})
}

func (h *Handler) enhanceEquipment(c *gin.Context) {
	var req struct {
		UseProtection bool `json:"use_protection"`
	}
	_ = c.ShouldBindJSON(&req) // body optional

	result, err := h.enhance.Attempt(c.Request.Context(), caller(c), c.Param("uid"), req.UseProtection)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) deleteEquipment(c *gin.Context) {
	if err := h.equip.DeleteEquipment(c.Request.Context(), caller(c), c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": c.Param("uid"), "deleted": true})
}

func (h *Handler) listAuctions(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	var (
		listings []models.AuctionListing
		err      error
	)
	if c.Query("all") == "true" {
		listings, err = h.market.AllListings(c.Request.Context(), limit)
	} else {
		listings, err = h.market.OpenListings(c.Request.Context(), limit)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auctions": listings})
}

func auctionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid auction ID"})
		return 0, false
	}
	return id, true
}

func (h *Handler) getAuction(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	listing, err := h.market.GetListing(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) createAuction(c *gin.Context) {
	var req struct {
		Kind         string `json:"kind" binding:"required"`
		ItemID       string `json:"item_id"`
		EquipmentUID string `json:"equipment_uid"`
		Quantity     int    `json:"quantity"`
		StartPrice   int64  `json:"start_price" binding:"required"`
		BuyoutPrice  int64  `json:"buyout_price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	listing, err := h.market.Create(c.Request.Context(), service.CreateParams{
		Seller:       caller(c),
		Kind:         req.Kind,
		ItemID:       req.ItemID,
		EquipmentUID: req.EquipmentUID,
		Quantity:     req.Quantity,
		StartPrice:   req.StartPrice,
		BuyoutPrice:  req.BuyoutPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) bidAuction(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.market.Bid(c.Request.Context(), caller(c), id, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auction_id": id, "bidder": caller(c), "amount": req.Amount})
}

func (h *Handler) buyoutAuction(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	listing, err := h.market.BuyNow(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) cancelAuction(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	elevated := c.GetHeader("X-Elevated") == "true"
	if err := h.market.Cancel(c.Request.Context(), caller(c), id, elevated); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auction_id": id, "status": models.AuctionStatusCancelled})
}

func (h *Handler) forceRemoveAuction(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	if err := h.market.ForceRemove(c.Request.Context(), caller(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auction_id": id, "status": models.AuctionStatusCancelled})
}

func (h *Handler) leaderboard(c *gin.Context) {
	board := ""
	switch c.Param("name") {
	case "gold":
		board = store.BoardGold
	case "power":
		board = store.BoardPower
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown leaderboard"})
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	entries, err := h.ledger.Leaderboard(c.Request.Context(), board, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"board": c.Param("name"), "entries": entries})
}

func (h *Handler) readStream(stream string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.redis == nil {
			c.JSON(http.StatusOK, gin.H{"entries": []any{}})
			return
		}

		count, _ := strconv.ParseInt(c.DefaultQuery("count", "100"), 10, 64)
		msgs, err := h.redis.ReadStreamReverse(c.Request.Context(), stream, count)
		if err != nil {
			respondError(c, err)
			return
		}

		entries := make([]gin.H, 0, len(msgs))
		for _, msg := range msgs {
			entries = append(entries, gin.H{"id": msg.ID, "values": msg.Values})
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
