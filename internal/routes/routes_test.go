package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/config"
	"github.com/AnshRaj112/expense-tracker-backend/internal/database"
	"github.com/AnshRaj112/expense-tracker-backend/internal/handlers"
	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/utils"
)

// A 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type fakeUploader struct {
	userID string
	size   int
}

func (f *fakeUploader) UploadAvatar(_ context.Context, userID string, file io.Reader) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	f.userID = userID
	f.size = len(data)
	return "https://res.cloudinary.com/demo/image/upload/avatars/" + userID + ".png", nil
}

type RouterTestSuite struct {
	suite.Suite
	cancel   context.CancelFunc
	hub      *services.ExpenseHub
	uploader *fakeUploader
	router   http.Handler
}

func (s *RouterTestSuite) SetupTest() {
	s.uploader = &fakeUploader{}
	s.router = s.newRouter(s.uploader)
}

func (s *RouterTestSuite) TearDownTest() {
	s.cancel()
}

func (s *RouterTestSuite) newRouter(uploader services.AvatarUploader) http.Handler {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	db, err := database.Open(ctx, database.DialectSQLite, ":memory:")
	require.NoError(s.T(), err)
	s.T().Cleanup(func() { db.Close() })

	log := zap.NewNop()
	tokens := services.NewTokenService("router-test-secret-0123456789abcd", "expense-tracker", time.Hour)
	auth := services.NewAuthService(
		database.NewUserStore(db, nil),
		utils.NewPasswordHasher(utils.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}),
		tokens,
		nil,
		services.LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute},
		log,
	)
	s.hub = services.NewExpenseHub(nil, log)

	deps := Deps{
		Config:    &config.Config{Environment: "test"},
		Logger:    log,
		DB:        db,
		Tokens:    tokens,
		Auth:      auth,
		Expenses:  services.NewExpenseService(database.NewExpenseStore(db), s.hub, log),
		Hub:       s.hub,
		Uploader:  uploader,
		Validator: validation.New(),
	}
	return NewRouter(ctx, deps)
}

func (s *RouterTestSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func registerBody(email, password, username string) map[string]any {
	return map[string]any{
		"email":                 email,
		"password":              password,
		"username":              username,
		"firstName":             "Alice",
		"lastName":              "Liddell",
		"termsAccepted":         true,
		"privacyPolicyAccepted": true,
	}
}

func (s *RouterTestSuite) login(email, password string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/api/users/login", "", map[string]string{"email": email, "password": password})
}

// signUp registers and logs in a user, returning their token and profile.
func (s *RouterTestSuite) signUp(email, username string) (string, models.UserProfile) {
	rec := s.do(http.MethodPost, "/api/users/register", "", registerBody(email, "Pw123!", username))
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.login(email, "Pw123!")
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.AuthResponse](s.T(), rec)
	return resp.AccessToken, resp.User
}

func gasExpense() map[string]any {
	return map[string]any{
		"description": "Gas",
		"amount":      "60.00",
		"date":        "2024-01-20",
		"category":    "TRANSPORTATION",
	}
}

func (s *RouterTestSuite) TestRegisterLoginLockout() {
	rec := s.do(http.MethodPost, "/api/users/register", "", registerBody("a@x.com", "Pw123!", "alice"))
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[handlers.RegisterResponse](s.T(), rec)
	assert.True(s.T(), reg.Success)
	assert.Equal(s.T(), "a@x.com", reg.User.Email)
	assert.NotContains(s.T(), rec.Body.String(), "password")

	rec = s.login("a@x.com", "Pw123!")
	require.Equal(s.T(), http.StatusOK, rec.Code)
	auth := decode[models.AuthResponse](s.T(), rec)
	assert.NotEmpty(s.T(), auth.AccessToken)
	assert.Equal(s.T(), "Bearer", auth.TokenType)
	assert.Equal(s.T(), int64(3600000), auth.ExpiresIn)

	for i := 0; i < 5; i++ {
		rec = s.login("a@x.com", "wrong")
		assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
	}

	rec = s.login("a@x.com", "Pw123!")
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
	body := decode[handlers.ErrorResponse](s.T(), rec)
	assert.Equal(s.T(), "Invalid email or password", body.Message)
}

func (s *RouterTestSuite) TestRegisterRejectsDuplicateAndInvalid() {
	rec := s.do(http.MethodPost, "/api/users/register", "", registerBody("a@x.com", "Pw123!", "alice"))
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, "/api/users/register", "", registerBody("A@X.com", "Pw123!", "alice2"))
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	assert.Equal(s.T(), "Email already registered", decode[handlers.ErrorResponse](s.T(), rec).Message)

	bad := registerBody("not-an-email", "weak", "al")
	bad["termsAccepted"] = false
	rec = s.do(http.MethodPost, "/api/users/register", "", bad)
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
	errs := decode[handlers.ErrorResponse](s.T(), rec)
	assert.Equal(s.T(), "Validation failed", errs.Message)
	assert.Contains(s.T(), errs.Errors, "email")
	assert.Contains(s.T(), errs.Errors, "password")
	assert.Contains(s.T(), errs.Errors, "termsAccepted")

	req := httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader("{not json"))
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	assert.Equal(s.T(), http.StatusBadRequest, out.Code)
}

func (s *RouterTestSuite) TestProtectedRoutesRequireToken() {
	for _, path := range []string{"/api/expenses", "/api/users/me"} {
		rec := s.do(http.MethodGet, path, "", nil)
		assert.Equal(s.T(), http.StatusUnauthorized, rec.Code, path)
	}

	rec := s.do(http.MethodGet, "/api/expenses", "garbage", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
	assert.Equal(s.T(), "Invalid token", decode[handlers.ErrorResponse](s.T(), rec).Message)
}

func (s *RouterTestSuite) TestExpenseCrossUserIsolation() {
	tokenA, _ := s.signUp("a@x.com", "alice")
	tokenB, _ := s.signUp("b@x.com", "bobby")

	rec := s.do(http.MethodPost, "/api/expenses", tokenA, gasExpense())
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.ExpenseResponse](s.T(), rec)
	assert.Equal(s.T(), "60.00", created.Amount.String())
	assert.Equal(s.T(), "2024-01-20", created.Date)
	assert.Equal(s.T(), "Transportation", created.CategoryLabel)

	rec = s.do(http.MethodGet, "/api/expenses", tokenB, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	page := decode[models.Page[models.ExpenseResponse]](s.T(), rec)
	assert.Empty(s.T(), page.Content)
	assert.Equal(s.T(), int64(0), page.TotalElements)

	path := "/api/expenses/" + created.ID
	assert.Equal(s.T(), http.StatusNotFound, s.do(http.MethodGet, path, tokenB, nil).Code)
	assert.Equal(s.T(), http.StatusNotFound, s.do(http.MethodPut, path, tokenB, gasExpense()).Code)
	assert.Equal(s.T(), http.StatusNotFound, s.do(http.MethodDelete, path, tokenB, nil).Code)

	rec = s.do(http.MethodGet, path, tokenA, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "Gas", decode[models.ExpenseResponse](s.T(), rec).Description)
}

func (s *RouterTestSuite) TestExpenseLifecycle() {
	token, _ := s.signUp("a@x.com", "alice")

	rec := s.do(http.MethodPost, "/api/expenses", token, gasExpense())
	require.Equal(s.T(), http.StatusCreated, rec.Code)
	id := decode[models.ExpenseResponse](s.T(), rec).ID

	update := gasExpense()
	update["amount"] = "72.5"
	update["category"] = "Personal Care"
	rec = s.do(http.MethodPut, "/api/expenses/"+id, token, update)
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.ExpenseResponse](s.T(), rec)
	assert.Equal(s.T(), "72.50", updated.Amount.String())
	assert.Equal(s.T(), models.CategoryPersonalCare, updated.Category)

	rec = s.do(http.MethodDelete, "/api/expenses/"+id, token, nil)
	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), http.StatusNotFound, s.do(http.MethodGet, "/api/expenses/"+id, token, nil).Code)
	assert.Equal(s.T(), http.StatusNotFound, s.do(http.MethodGet, "/api/expenses/not-a-uuid", token, nil).Code)
}

func (s *RouterTestSuite) TestExpenseValidation() {
	token, _ := s.signUp("a@x.com", "alice")

	rec := s.do(http.MethodPost, "/api/expenses", token, map[string]any{
		"description": "",
		"amount":      "-1",
		"date":        "20-01-2024",
		"category":    "GROCERIES",
	})
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
	errs := decode[handlers.ErrorResponse](s.T(), rec).Errors
	for _, field := range []string{"description", "amount", "date", "category"} {
		assert.Contains(s.T(), errs, field)
	}

	rec = s.do(http.MethodGet, "/api/expenses?page=-1&size=abc&sortBy=password&category=nope&startDate=2024-13-01", token, nil)
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
	errs = decode[handlers.ErrorResponse](s.T(), rec).Errors
	assert.Contains(s.T(), errs, "size")
	assert.Contains(s.T(), errs, "category")
	assert.Contains(s.T(), errs, "startDate")
}

func (s *RouterTestSuite) TestExpenseListFiltersAndPages() {
	token, _ := s.signUp("a@x.com", "alice")

	for day := 1; day <= 12; day++ {
		category := "FOOD"
		if day%3 == 0 {
			category = "UTILITIES"
		}
		rec := s.do(http.MethodPost, "/api/expenses", token, map[string]any{
			"description": fmt.Sprintf("item %d", day),
			"amount":      fmt.Sprintf("%d.25", day),
			"date":        fmt.Sprintf("2024-02-%02d", day),
			"category":    category,
		})
		require.Equal(s.T(), http.StatusCreated, rec.Code)
	}

	rec := s.do(http.MethodGet, "/api/expenses?page=1&size=5&sortBy=amount&sortDir=asc", token, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	page := decode[models.Page[models.ExpenseResponse]](s.T(), rec)
	assert.Equal(s.T(), int64(12), page.TotalElements)
	assert.Equal(s.T(), 3, page.TotalPages)
	assert.Equal(s.T(), 1, page.CurrentPage)
	assert.False(s.T(), page.First)
	assert.False(s.T(), page.Last)
	require.Len(s.T(), page.Content, 5)
	assert.Equal(s.T(), "6.25", page.Content[0].Amount.String())

	rec = s.do(http.MethodGet, "/api/expenses?category=utilities&startDate=2024-02-03&endDate=2024-02-09", token, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	page = decode[models.Page[models.ExpenseResponse]](s.T(), rec)
	require.Len(s.T(), page.Content, 3)
	assert.Equal(s.T(), "2024-02-09", page.Content[0].Date)
	assert.Equal(s.T(), "2024-02-03", page.Content[2].Date)
	assert.True(s.T(), page.First)
	assert.True(s.T(), page.Last)
}

func (s *RouterTestSuite) TestProfile() {
	tokenA, userA := s.signUp("a@x.com", "alice")
	_, userB := s.signUp("b@x.com", "bobby")

	rec := s.do(http.MethodGet, "/api/users/me", tokenA, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), userA.ID, decode[models.UserProfile](s.T(), rec).ID)

	rec = s.do(http.MethodGet, "/api/users/"+userA.ID+"/profile", tokenA, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/users/"+userB.ID+"/profile", tokenA, nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
	assert.NotContains(s.T(), rec.Body.String(), "b@x.com")

	rec = s.do(http.MethodPut, "/api/users/"+userA.ID+"/profile", tokenA, map[string]any{
		"firstName": "Alicia",
		"timezone":  "Europe/London",
	})
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())
	profile := decode[models.UserProfile](s.T(), rec)
	assert.Equal(s.T(), "Alicia", profile.FirstName)
	assert.Equal(s.T(), "Liddell", profile.LastName)
	require.NotNil(s.T(), profile.Timezone)
	assert.Equal(s.T(), "Europe/London", *profile.Timezone)

	rec = s.do(http.MethodPut, "/api/users/"+userA.ID+"/profile", tokenA, map[string]any{"phone": "12345"})
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/users/"+userB.ID+"/profile", tokenA, map[string]any{"firstName": "Mallory"})
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *RouterTestSuite) uploadPicture(userID, token string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "avatar.png")
	require.NoError(s.T(), err)
	_, err = part.Write(content)
	require.NoError(s.T(), err)
	require.NoError(s.T(), mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/users/"+userID+"/profile/picture", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterTestSuite) TestUploadPicture() {
	token, user := s.signUp("a@x.com", "alice")

	rec := s.uploadPicture(user.ID, token, tinyPNG)
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())
	profile := decode[models.UserProfile](s.T(), rec)
	require.NotNil(s.T(), profile.ProfilePictureURL)
	assert.Contains(s.T(), *profile.ProfilePictureURL, user.ID)
	assert.Equal(s.T(), user.ID, s.uploader.userID)
	assert.Equal(s.T(), len(tinyPNG), s.uploader.size)

	rec = s.uploadPicture(user.ID, token, []byte("plain text, not an image"))
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *RouterTestSuite) TestUploadPictureDisabled() {
	s.cancel()
	s.router = s.newRouter(nil)
	token, user := s.signUp("a@x.com", "alice")

	rec := s.uploadPicture(user.ID, token, tinyPNG)
	assert.Equal(s.T(), http.StatusServiceUnavailable, rec.Code)
}

func (s *RouterTestSuite) TestPublicEndpoints() {
	rec := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	health := decode[handlers.HealthResponse](s.T(), rec)
	assert.Equal(s.T(), "ok", health.Status)
	assert.Equal(s.T(), "ok", health.Components["database"])
	assert.Equal(s.T(), "disabled", health.Components["redis"])
	assert.Equal(s.T(), "disabled", health.Components["mongodb"])

	rec = s.do(http.MethodGet, "/api/categories", "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	categories := decode[[]models.CategoryOption](s.T(), rec)
	require.Len(s.T(), categories, len(models.Categories))
	assert.Equal(s.T(), models.CategoryOption{Value: models.CategoryFood, Label: "Food"}, categories[0])

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Contains(s.T(), rec.Body.String(), "expense_tracker_http_requests_total")

	rec = s.do(http.MethodGet, "/health", "", nil)
	assert.NotEmpty(s.T(), rec.Header().Get("X-Request-ID"))
}

func (s *RouterTestSuite) TestExpenseFeed() {
	token, user := s.signUp("a@x.com", "alice")

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/expenses?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(s.T(), err)
	defer conn.Close()
	assert.Equal(s.T(), http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(s.T(), func() bool {
		return s.hub.Subscribers(user.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := s.do(http.MethodPost, "/api/expenses", token, gasExpense())
	require.Equal(s.T(), http.StatusCreated, rec.Code)
	created := decode[models.ExpenseResponse](s.T(), rec)

	require.NoError(s.T(), conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.ExpenseEvent
	require.NoError(s.T(), conn.ReadJSON(&event))
	assert.Equal(s.T(), models.ExpenseCreated, event.Type)
	assert.Equal(s.T(), created.ID, event.ExpenseID)
	require.NotNil(s.T(), event.Expense)
	assert.Equal(s.T(), "Gas", event.Expense.Description)
}

func (s *RouterTestSuite) TestExpenseFeedRequiresToken() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/expenses"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(s.T(), err)
	require.NotNil(s.T(), resp)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
