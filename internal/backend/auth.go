package backend

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "cv-screening/internal/common/errors"
	httpclient "cv-screening/internal/common/http"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/validation"
	"cv-screening/internal/models"
)

const (
	serviceAuth  = "auth"
	serviceUsers = "users"
)

// AuthClient talks to the auth service and its user administration endpoints.
type AuthClient struct {
	baseClient
	users   baseClient
	timeout time.Duration
	logger  logger.Logger
}

func NewAuthClient(authURL, usersURL string, timeout time.Duration, session Session, log logger.Logger, opts ...httpclient.Option) *AuthClient {
	return &AuthClient{
		baseClient: newBaseClient(serviceAuth, authURL, session, opts...),
		users:      newBaseClient(serviceUsers, usersURL, session, opts...),
		timeout:    timeout,
		logger:     log.WithFields(map[string]interface{}{"component": "auth-client"}),
	}
}

// Registration is the sign-up form.
type Registration struct {
	FName       string `json:"fname"`
	LName       string `json:"lname"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateofbirth"`
	Gender      string `json:"gender"`
	Country     string `json:"country"`
	Nationality string `json:"nationality"`
	CVAccess    bool   `json:"cv_access"`
	Password    string `json:"password"`
}

// LoginResult is the second-factor session created by a password login.
type LoginResult struct {
	UserID  string
	Message string
}

// Verified is a completed login: a bearer token and its user.
type Verified struct {
	Token   string
	User    *models.User
	Message string
}

// post sends an unauthenticated request. A 401 here means bad credentials,
// not a lapsed session.
func (c *AuthClient) post(ctx context.Context, operation, path string, body, out interface{}) error {
	err := c.call(ctx, c.timeout, httpclient.Request{
		Operation: operation,
		Method:    http.MethodPost,
		URL:       c.url(path),
		Body:      body,
	}, out)
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) && stdErr.Code == apperrors.ErrCodeSessionExpired {
		return apperrors.NewAuthenticationError(stdErr.Details)
	}
	return err
}

func (c *AuthClient) Register(ctx context.Context, reg Registration) (string, error) {
	if !validation.ValidateEmail(reg.Email) {
		return "", apperrors.NewAuthenticationError("invalid email address")
	}
	var body map[string]interface{}
	if err := c.post(ctx, "register", "/register", reg, &body); err != nil {
		return "", err
	}
	return asString(body["message"]), nil
}

// Login starts a password login. The service answers with the user id the
// OTP has to be verified against.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !validation.ValidateEmail(email) || password == "" {
		return nil, apperrors.NewAuthenticationError("email and password are required")
	}

	var body map[string]interface{}
	err := c.post(ctx, "login", "/login", map[string]string{"email": email, "password": password}, &body)
	if err != nil {
		return nil, err
	}

	userID := asString(firstOf(body, "user_id", "id", "userId"))
	if userID == "" {
		return nil, apperrors.NewInvalidResponseBodyError(serviceAuth, "login response carries no user id")
	}
	return &LoginResult{UserID: userID, Message: asString(body["message"])}, nil
}

// VerifyLogin completes a login with the emailed OTP.
func (c *AuthClient) VerifyLogin(ctx context.Context, userID, otp string) (*Verified, error) {
	if !validation.ValidateOTP(otp) {
		return nil, apperrors.NewAuthenticationError("otp must be 4 to 8 digits")
	}

	var body map[string]interface{}
	payload := map[string]interface{}{"user_id": wireUserID(userID), "otp": strings.TrimSpace(otp)}
	if err := c.post(ctx, "login_verify", "/login-verify", payload, &body); err != nil {
		return nil, err
	}

	token := asString(firstOf(body, "access_token", "token", "authToken"))
	if token == "" || token == "verified" {
		return nil, apperrors.NewAuthenticationError("login verification returned no token")
	}

	user := extractUser(body)
	if user.ID == "" {
		user.ID = userID
	}

	c.logger.Info("login verified", map[string]interface{}{"userId": user.ID, "isAdmin": user.IsAdmin})
	return &Verified{Token: token, User: user, Message: asString(body["message"])}, nil
}

func (c *AuthClient) ResendOTP(ctx context.Context, userID string) error {
	return c.post(ctx, "login_resend_otp", "/login-resend-otp", map[string]interface{}{"user_id": wireUserID(userID)}, nil)
}

func (c *AuthClient) ForgotPassword(ctx context.Context, email string) error {
	if !validation.ValidateEmail(email) {
		return apperrors.NewAuthenticationError("invalid email address")
	}
	return c.post(ctx, "forgot_password", "/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using the emailed reset token. The auth
// service serves this flow at /change-password.
func (c *AuthClient) ResetPassword(ctx context.Context, resetToken, newPassword, confirm string) error {
	if newPassword == "" || newPassword != confirm {
		return apperrors.NewAuthenticationError("passwords do not match")
	}
	return c.post(ctx, "reset_password", "/change-password", map[string]string{
		"token":            resetToken,
		"new_password":     newPassword,
		"confirm_password": confirm,
	}, nil)
}

// ChangePassword changes the logged-in user's password. The auth service
// serves this flow at /reset-password.
func (c *AuthClient) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	if newPassword == "" || newPassword != confirm {
		return apperrors.NewAuthenticationError("passwords do not match")
	}
	return c.call(ctx, c.timeout, httpclient.Request{
		Operation: "change_password",
		Method:    http.MethodPost,
		URL:       c.url("/reset-password"),
		Token:     c.token(),
		Body: map[string]string{
			"old_password":         oldPassword,
			"new_password":         newPassword,
			"confirm_new_password": confirm,
		},
	}, nil)
}

// ListUsers returns every operator account. Admin only.
func (c *AuthClient) ListUsers(ctx context.Context) ([]models.User, error) {
	var body interface{}
	err := c.users.call(ctx, c.timeout, httpclient.Request{
		Operation: "list_users",
		Method:    http.MethodGet,
		URL:       c.users.url("/"),
		Token:     c.users.token(),
	}, &body)
	if err != nil {
		return nil, err
	}

	var raw []interface{}
	switch t := body.(type) {
	case []interface{}:
		raw = t
	case map[string]interface{}:
		if list, ok := firstOf(t, "users", "data").([]interface{}); ok {
			raw = list
		}
	}

	users := make([]models.User, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			users = append(users, *userFromMap(m))
		}
	}
	return users, nil
}

// UpdateCVAccess grants or revokes a user's access to CV screening. Admin only.
func (c *AuthClient) UpdateCVAccess(ctx context.Context, userID string, access bool) error {
	return c.users.call(ctx, c.timeout, httpclient.Request{
		Operation: "update_cv_access",
		Method:    http.MethodPatch,
		URL:       c.users.url("/cv_access"),
		Token:     c.users.token(),
		Body:      map[string]interface{}{"user_id": wireUserID(userID), "cv_access": access},
	}, nil)
}

// extractUser reads the user object from a verify reply: user, userData or
// profile, falling back to fields on the reply itself.
func extractUser(body map[string]interface{}) *models.User {
	if m, ok := firstOf(body, "user", "userData", "profile").(map[string]interface{}); ok {
		return userFromMap(m)
	}
	return userFromMap(body)
}

func userFromMap(m map[string]interface{}) *models.User {
	return &models.User{
		ID:       asString(firstOf(m, "id", "user_id", "userId")),
		Email:    asString(m["email"]),
		FName:    asString(m["fname"]),
		LName:    asString(m["lname"]),
		Phone:    asString(m["phone"]),
		IsAdmin:  asBool(m["is_admin"]),
		CVAccess: asBool(m["cv_access"]),
	}
}

// wireUserID sends numeric ids as numbers, which is what the service expects.
func wireUserID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
