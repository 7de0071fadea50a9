package handlers

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"school-library/library"
)

const principalKey = "principal"

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	mgr    *library.LibraryManager
	logger *slog.Logger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(mgr *library.LibraryManager, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{mgr: mgr, logger: logger}
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/ping", PingHandler)
	api.POST("/login", h.Login)

	authed := api.Group("")
	authed.Use(h.RequireSession)
	{
		authed.POST("/logout", h.Logout)
		authed.GET("/me", h.Me)
		authed.PATCH("/me", h.UpdateProfile)
		authed.PUT("/me/password", h.ChangePassword)

		authed.GET("/books", h.ListBooks)
		authed.GET("/books/categories", h.ListCategories)
		authed.GET("/books/:isbn", h.GetBook)

		authed.GET("/loans", h.MyLoans)
		authed.POST("/loans", h.Borrow)
		authed.POST("/loans/:loanId/return", h.Return)

		// Teacher-only; the gate rejects everyone else.
		authed.GET("/classes", h.ListClasses)
		authed.PUT("/classes/:classId/association", h.Associate)
		authed.DELETE("/classes/:classId/association", h.Dissociate)
		authed.GET("/classes/:classId/students", h.ClassStudents)
		authed.GET("/classes/:classId/loans", h.ClassLoans)
		authed.GET("/classes/:classId/loans.xlsx", h.ExportClassLoans)
		authed.GET("/classes/:classId/students/:studentId/loans", h.StudentLoans)
		authed.POST("/import/roster", h.ImportRoster)
	}
	return router
}

// PingHandler handles GET /api/ping.
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// RequireSession resolves the bearer token into the principal for the rest
// of the request.
func (h *APIHandler) RequireSession(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth_fail", "message": "login required"})
		return
	}
	p, err := h.mgr.Resolve(c.Request.Context(), token)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Set(principalKey, p)
	c.Next()
}

func bearerToken(c *gin.Context) (string, bool) {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

func principal(c *gin.Context) *library.Person {
	return c.MustGet(principalKey).(*library.Person)
}

// --- Session handlers ---

type loginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/login
func (h *APIHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "id and password are required"})
		return
	}
	token, p, err := h.mgr.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": p})
}

// Logout handles POST /api/logout
func (h *APIHandler) Logout(c *gin.Context) {
	token, _ := bearerToken(c)
	if err := h.mgr.Logout(c.Request.Context(), token); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /api/me
func (h *APIHandler) Me(c *gin.Context) {
	p := principal(c)
	classes, err := h.mgr.ClassesOf(c.Request.Context(), p)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": p, "classes": classes, "quota": library.QuotaFor(p.Role)})
}

type profileRequest struct {
	Name *string `json:"name"`
	Age  *int    `json:"age"`
}

// UpdateProfile handles PATCH /api/me
func (h *APIHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "invalid request body"})
		return
	}
	p, err := h.mgr.UpdateProfile(c.Request.Context(), principal(c), req.Name, req.Age)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type passwordRequest struct {
	Old string `json:"old" binding:"required"`
	New string `json:"new" binding:"required"`
}

// ChangePassword handles PUT /api/me/password
func (h *APIHandler) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "old and new password are required"})
		return
	}
	if err := h.mgr.ChangePassword(c.Request.Context(), principal(c), req.Old, req.New); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Book handlers ---

// ListBooks handles GET /api/books?category=CS&q=term
func (h *APIHandler) ListBooks(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		books []library.Book
		err   error
	)
	switch {
	case c.Query("q") != "":
		books, err = h.mgr.SearchBooks(ctx, c.Query("q"))
	case c.Query("category") != "":
		books, err = h.mgr.ListBooksByCategory(ctx, library.Category(strings.ToUpper(c.Query("category"))))
	default:
		books, err = h.mgr.ListAvailableBooks(ctx)
	}
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

// ListCategories handles GET /api/books/categories
func (h *APIHandler) ListCategories(c *gin.Context) {
	cats, err := h.mgr.Categories(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

// GetBook handles GET /api/books/:isbn
func (h *APIHandler) GetBook(c *gin.Context) {
	b, err := h.mgr.GetBook(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// --- Loan handlers ---

// MyLoans handles GET /api/loans
func (h *APIHandler) MyLoans(c *gin.Context) {
	loans, err := h.mgr.MyLoans(c.Request.Context(), principal(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

type borrowRequest struct {
	ISBN string `json:"isbn" binding:"required"`
}

// Borrow handles POST /api/loans
func (h *APIHandler) Borrow(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "isbn is required"})
		return
	}
	loan, err := h.mgr.Borrow(c.Request.Context(), principal(c), req.ISBN)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// Return handles POST /api/loans/:loanId/return
func (h *APIHandler) Return(c *gin.Context) {
	loanID, err := strconv.ParseInt(c.Param("loanId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "invalid loan id"})
		return
	}
	loan, err := h.mgr.Return(c.Request.Context(), principal(c), loanID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// --- Class handlers ---

// ListClasses handles GET /api/classes
func (h *APIHandler) ListClasses(c *gin.Context) {
	ctx := c.Request.Context()
	p := principal(c)
	managed, err := h.mgr.ManagedClasses(ctx, p)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	others, err := h.mgr.UnmanagedClasses(ctx, p)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"managed": managed, "others": others})
}

// Associate handles PUT /api/classes/:classId/association
func (h *APIHandler) Associate(c *gin.Context) {
	if err := h.mgr.Associate(c.Request.Context(), principal(c), c.Param("classId")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Dissociate handles DELETE /api/classes/:classId/association
func (h *APIHandler) Dissociate(c *gin.Context) {
	if err := h.mgr.Dissociate(c.Request.Context(), principal(c), c.Param("classId")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClassStudents handles GET /api/classes/:classId/students
func (h *APIHandler) ClassStudents(c *gin.Context) {
	students, err := h.mgr.ClassStudents(c.Request.Context(), principal(c), c.Param("classId"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

// ClassLoans handles GET /api/classes/:classId/loans
func (h *APIHandler) ClassLoans(c *gin.Context) {
	loans, err := h.mgr.ClassLoans(c.Request.Context(), principal(c), c.Param("classId"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

// StudentLoans handles GET /api/classes/:classId/students/:studentId/loans
func (h *APIHandler) StudentLoans(c *gin.Context) {
	loans, err := h.mgr.StudentLoans(c.Request.Context(), principal(c), c.Param("classId"), c.Param("studentId"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportClassLoans handles GET /api/classes/:classId/loans.xlsx
func (h *APIHandler) ExportClassLoans(c *gin.Context) {
	classID := c.Param("classId")
	var buf bytes.Buffer
	if err := h.mgr.ExportClassLoans(c.Request.Context(), principal(c), classID, &buf); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+classID+`-loans.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ImportRoster handles POST /api/import/roster (multipart field "file")
func (h *APIHandler) ImportRoster(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "cannot read upload"})
		return
	}
	defer f.Close()

	res, err := h.mgr.ImportRoster(c.Request.Context(), principal(c), f)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": res.Imported, "skipped": res.Skipped})
}

// --- Error rendering ---

// abortWithError translates a failure kind into a status and a message.
// Internal errors are logged and never shown to the client.
func (h *APIHandler) abortWithError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "internal", "something went wrong, please try again later"

	var quota *library.QuotaError
	switch {
	case errors.As(err, &quota):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": "out_of_quota", "message": quota.Error(), "limit": quota.Limit, "current": quota.Current,
		})
		return
	case errors.Is(err, library.ErrInternal):
	case errors.Is(err, library.ErrAuthFail):
		status, code, message = http.StatusUnauthorized, "auth_fail", "wrong user id or password"
	case errors.Is(err, library.ErrNoBook):
		status, code, message = http.StatusConflict, "no_book", "the book does not exist or is out of stock"
	case errors.Is(err, library.ErrHasBorrowed):
		status, code, message = http.StatusConflict, "has_borrowed", "you already borrowed this book and have not returned it"
	case errors.Is(err, library.ErrValidation):
		status, code, message = http.StatusBadRequest, "validation", err.Error()
	case errors.Is(err, library.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", "record does not exist or is already returned"
	case errors.Is(err, library.ErrForbidden):
		status, code, message = http.StatusForbidden, "forbidden", "you are not allowed to view this"
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
