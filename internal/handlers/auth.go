package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/cleanup"
	"github.com/reelhouse/backend/internal/logging"
	"github.com/reelhouse/backend/internal/middleware"
	"github.com/reelhouse/backend/internal/models"
	"github.com/reelhouse/backend/internal/repositories"
	"github.com/reelhouse/backend/internal/storage"
)

const dobLayout = "2006-01-02"

// AuthHandler implements registration, login and profile updates.
type AuthHandler struct {
	Users     UserStore
	Tokens    TokenService
	Pictures  storage.Store
	Uploads   *Uploader
	Sanitizer TextCleaner
	Recorder  middleware.AuthRecorder
	NowFunc   func() time.Time
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type sessionResponse struct {
	api.Result
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expiresAt"`
	UserRole       string    `json:"userRole"`
	UserName       string    `json:"userName"`
	UserProfilePic string    `json:"userProfilePic"`
}

// Register handles POST /register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	form, err := h.Uploads.Parse(w, r, map[string]storage.Store{"profilePicture": h.Pictures})
	if err != nil {
		failUpload(ctx, w, err)
		return
	}

	name := h.clean(form.value("name"))
	password := form.values.Get("password")
	if name == "" || password == "" {
		h.Uploads.Discard(ctx, form, "registration rejected")
		logger.Warn("registration missing credentials", "name", name)
		api.Fail(ctx, w, api.KindBadRequest, "name and password are required")
		return
	}

	dob, err := parseDOB(form.value("dob"))
	if err != nil {
		h.Uploads.Discard(ctx, form, "registration rejected")
		api.Fail(ctx, w, api.KindBadRequest, "dob must be a date formatted as YYYY-MM-DD")
		return
	}

	if _, err := h.Users.FindByName(ctx, name); err == nil {
		h.Uploads.Discard(ctx, form, "registration rejected")
		logger.Warn("registration name taken", "name", name)
		api.Fail(ctx, w, api.KindConflict, "user name already exists")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		h.Uploads.Discard(ctx, form, "registration failed")
		logger.Error("registration user lookup failed", "error", err, "name", name)
		api.Fail(ctx, w, api.KindInternal, "unable to verify existing accounts")
		return
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		h.Uploads.Discard(ctx, form, "registration failed")
		logger.Error("registration failed to hash password", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to secure password")
		return
	}

	picture := models.DefaultUserPicture
	if saved, ok := form.file("profilePicture"); ok {
		picture = saved.Name
	}

	now := h.now()
	user := models.User{
		ID:             uuid.NewString(),
		Name:           name,
		PasswordHash:   hashed,
		DOB:            dob,
		ProfilePicture: picture,
		Role:           auth.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		h.Uploads.Discard(ctx, form, "registration failed")
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("registration conflict", "name", name)
			api.Fail(ctx, w, api.KindConflict, "user name already exists")
			return
		}
		logger.Error("registration failed to create user", "error", err, "name", name)
		api.Fail(ctx, w, api.KindInternal, "failed to create account")
		return
	}

	logger.Info("user registered", "user_id", user.ID)
	api.WriteJSON(ctx, w, http.StatusCreated, api.OK("user registered"))
}

// Login handles POST /login. Credentials arrive as a form or as JSON.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	req, err := h.decodeLogin(w, r)
	if err != nil {
		failUpload(ctx, w, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Password == "" {
		logger.Warn("login missing credentials", "name", req.Name)
		api.Fail(ctx, w, api.KindBadRequest, "name and password are required")
		return
	}

	user, err := h.Users.FindByName(ctx, req.Name)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("login user lookup failed", "error", err)
			api.Fail(ctx, w, api.KindInternal, "unable to sign in")
			return
		}
		logger.Warn("login unknown user", "name", req.Name)
		h.record("login_failure")
		api.Fail(ctx, w, api.KindInvalidCredentials, "invalid credentials")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		logger.Warn("login password mismatch", "user_id", user.ID)
		h.record("login_failure")
		api.Fail(ctx, w, api.KindInvalidCredentials, "invalid credentials")
		return
	}

	h.record("login_success")
	h.respondSession(w, r, user, http.StatusOK, "login successful")
}

// UpdateProfile handles PUT /update-profile for the authenticated user.
func (h AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		api.Fail(ctx, w, api.KindUnauthenticated, "authentication required")
		return
	}

	form, err := h.Uploads.Parse(w, r, map[string]storage.Store{"newProfilePicture": h.Pictures})
	if err != nil {
		failUpload(ctx, w, err)
		return
	}

	user, err := h.Users.FindByID(ctx, identity.ID)
	if err != nil {
		h.Uploads.Discard(ctx, form, "profile update failed")
		if errors.Is(err, repositories.ErrNotFound) {
			api.Fail(ctx, w, api.KindNotFound, "user not found")
			return
		}
		logger.Error("profile lookup failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "unable to load profile")
		return
	}

	if name := h.clean(form.value("name")); name != "" && name != user.Name {
		if _, err := h.Users.FindByName(ctx, name); err == nil {
			h.Uploads.Discard(ctx, form, "profile update rejected")
			api.Fail(ctx, w, api.KindConflict, "user name already exists")
			return
		} else if !errors.Is(err, repositories.ErrNotFound) {
			h.Uploads.Discard(ctx, form, "profile update failed")
			logger.Error("profile name lookup failed", "error", err)
			api.Fail(ctx, w, api.KindInternal, "unable to verify existing accounts")
			return
		}
		user.Name = name
	}

	if password := form.values.Get("password"); password != "" {
		hashed, err := auth.HashPassword(password)
		if err != nil {
			h.Uploads.Discard(ctx, form, "profile update failed")
			logger.Error("profile failed to hash password", "error", err)
			api.Fail(ctx, w, api.KindInternal, "failed to secure password")
			return
		}
		user.PasswordHash = hashed
	}

	if dob, err := parseDOB(form.value("dob")); err != nil {
		h.Uploads.Discard(ctx, form, "profile update rejected")
		api.Fail(ctx, w, api.KindBadRequest, "dob must be a date formatted as YYYY-MM-DD")
		return
	} else if dob != nil {
		user.DOB = dob
	}

	var replaced string
	if saved, ok := form.file("newProfilePicture"); ok {
		if user.HasCustomPicture() {
			replaced = user.ProfilePicture
		}
		user.ProfilePicture = saved.Name
	}

	user.UpdatedAt = h.now()
	if err := h.Users.Update(ctx, user); err != nil {
		h.Uploads.Discard(ctx, form, "profile update failed")
		switch {
		case errors.Is(err, repositories.ErrConflict):
			api.Fail(ctx, w, api.KindConflict, "user name already exists")
		case errors.Is(err, repositories.ErrNotFound):
			api.Fail(ctx, w, api.KindNotFound, "user not found")
		default:
			logger.Error("profile update failed", "error", err)
			api.Fail(ctx, w, api.KindInternal, "failed to update profile")
		}
		return
	}

	if replaced != "" {
		reapFiles(ctx, h.Uploads.Reaper, cleanup.Removal{Store: h.Pictures, Name: replaced, Reason: "profile picture replaced"})
	}

	logger.Info("profile updated")
	h.respondSession(w, r, user, http.StatusOK, "profile updated")
}

func (h AuthHandler) respondSession(w http.ResponseWriter, r *http.Request, user models.User, status int, message string) {
	ctx := r.Context()

	token, err := h.Tokens.Issue(auth.Identity{
		ID:             user.ID,
		Name:           user.Name,
		Role:           user.Role,
		ProfilePicture: user.ProfilePicture,
	})
	if err != nil {
		logging.FromContext(ctx).Error("failed to issue token", "error", err, "user_id", user.ID)
		api.Fail(ctx, w, api.KindInternal, "failed to create session")
		return
	}

	api.WriteJSON(ctx, w, status, sessionResponse{
		Result:         api.OK(message),
		Token:          token.Value,
		ExpiresAt:      token.ExpiresAt,
		UserRole:       user.Role,
		UserName:       user.Name,
		UserProfilePic: user.ProfilePicture,
	})
}

func (h AuthHandler) decodeLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body := http.MaxBytesReader(w, r.Body, maxFieldBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return loginRequest{}, classifyBodyError(errors.Join(errMalformedForm, err))
		}
		return req, nil
	}

	form, err := h.Uploads.Parse(w, r, nil)
	if err != nil {
		return loginRequest{}, err
	}
	req.Name = form.values.Get("name")
	req.Password = form.values.Get("password")
	return req, nil
}

// parseDOB reads an optional YYYY-MM-DD date; an empty value yields nil.
func parseDOB(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	dob, err := time.Parse(dobLayout, raw)
	if err != nil {
		return nil, err
	}
	return &dob, nil
}

func (h AuthHandler) clean(text string) string {
	if h.Sanitizer == nil {
		return strings.TrimSpace(text)
	}
	return h.Sanitizer.Clean(text)
}

func (h AuthHandler) record(outcome string) {
	if h.Recorder != nil {
		h.Recorder.RecordAuth(outcome)
	}
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}
